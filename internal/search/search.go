// Package search localizes treasure inside an area by repeated bisection.
package search

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Prober probes an area for treasure.
type Prober interface {
	Explore(ctx context.Context, area types.Area) (types.Explore, error)
}

// ResidualFunc receives a losing half that still reported treasure.
type ResidualFunc func(types.Explore)

// Split bisects area along its longer axis, or along Y when both extents
// are equal. The first half gets the floor of the extent, the second half
// the rest. Split must only be called on areas larger than 1x1.
func Split(area types.Area) (types.Area, types.Area) {
	if area.SizeY >= area.SizeX {
		half := area.SizeY / 2
		first := types.Area{PosX: area.PosX, PosY: area.PosY, SizeX: area.SizeX, SizeY: half}
		second := types.Area{PosX: area.PosX, PosY: area.PosY + half, SizeX: area.SizeX, SizeY: area.SizeY - half}
		return first, second
	}
	half := area.SizeX / 2
	first := types.Area{PosX: area.PosX, PosY: area.PosY, SizeX: half, SizeY: area.SizeY}
	second := types.Area{PosX: area.PosX + half, PosY: area.PosY, SizeX: area.SizeX - half, SizeY: area.SizeY}
	return first, second
}

// MaxSteps bounds the number of bisection steps needed to reduce area to a
// single cell.
func MaxSteps(area types.Area) int {
	return ceilLog2(area.SizeX) + ceilLog2(area.SizeY)
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Engine narrows areas down to single cells.
type Engine struct {
	prober   Prober
	residual ResidualFunc
}

// NewEngine creates an Engine. residual may be nil to discard losing halves.
func NewEngine(prober Prober, residual ResidualFunc) *Engine {
	if residual == nil {
		residual = func(types.Explore) {}
	}
	return &Engine{prober: prober, residual: residual}
}

// probe is one half's outcome. ok is false when the probe failed.
type probe struct {
	explore types.Explore
	ok      bool
	err     error
}

// Locate bisects area until a single cell remains and returns that cell with
// its last probed amount. A zero amount means the trail went cold.
//
// Transient probe failures are treated as empty halves. A malformed-request
// error aborts the search and is returned wrapped around types.ErrFatalRequest.
func (e *Engine) Locate(ctx context.Context, area types.Area) (types.Explore, error) {
	if err := area.Validate(); err != nil {
		return types.Explore{}, err
	}

	current := types.Explore{Area: area}
	for !current.Area.Unit() {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		first, second := Split(current.Area)
		a, b := e.probeBoth(ctx, first, second)

		for _, p := range []probe{a, b} {
			if errors.Is(p.err, types.ErrFatalRequest) {
				return current, fmt.Errorf("locate %s: %w", current.Area, p.err)
			}
		}

		current = e.choose(first, a, b)
	}
	return current, nil
}

// probeBoth probes the halves concurrently and waits for both.
func (e *Engine) probeBoth(ctx context.Context, first, second types.Area) (probe, probe) {
	var wg sync.WaitGroup
	var a, b probe
	wg.Add(2)
	go func() {
		defer wg.Done()
		a = e.probe(ctx, first)
	}()
	go func() {
		defer wg.Done()
		b = e.probe(ctx, second)
	}()
	wg.Wait()
	return a, b
}

func (e *Engine) probe(ctx context.Context, area types.Area) probe {
	exp, err := e.prober.Explore(ctx, area)
	if err != nil {
		return probe{err: err}
	}
	exp.Area = area
	return probe{explore: exp, ok: true}
}

// choose picks the half to descend into and hands the loser to the residual
// sink when it still holds treasure.
func (e *Engine) choose(first types.Area, a, b probe) types.Explore {
	switch {
	case a.ok && b.ok:
		if a.explore.Amount == 0 && b.explore.Amount == 0 {
			return types.Explore{Area: first}
		}
		if a.explore.Amount > b.explore.Amount {
			if b.explore.Amount > 0 {
				e.residual(b.explore)
			}
			return a.explore
		}
		if a.explore.Amount > 0 {
			e.residual(a.explore)
		}
		return b.explore
	case a.ok:
		return a.explore
	case b.ok:
		return b.explore
	default:
		return types.Explore{Area: first}
	}
}
