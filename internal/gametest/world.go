// Package gametest provides an in-memory game world that implements
// types.Service, plus an http.Handler serving the same world over the wire
// protocol. Tests use it to drive the pipeline end to end.
package gametest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Compile-time interface check.
var _ types.Service = (*World)(nil)

// Operation names used for fault injection and call counts.
const (
	OpExplore      = "explore"
	OpIssueLicense = "issueLicense"
	OpListLicenses = "listLicenses"
	OpDig          = "dig"
	OpCash         = "cash"
)

// StatusErr is returned by World methods for non-200 outcomes. It unwraps to
// the matching types sentinel, like the HTTP client's errors do.
type StatusErr struct {
	Op     string
	Status int
}

func (e *StatusErr) Error() string { return fmt.Sprintf("%s: status %d", e.Op, e.Status) }

func (e *StatusErr) Unwrap() error {
	switch e.Status {
	case http.StatusUnprocessableEntity:
		return types.ErrFatalRequest
	case http.StatusForbidden:
		return types.ErrPermitDenied
	case http.StatusNotFound:
		if e.Op == OpDig {
			return types.ErrNotFound
		}
	case http.StatusConflict:
		if e.Op == OpIssueLicense {
			return types.ErrTooManyLicenses
		}
	}
	return nil
}

type cell struct{ x, y int }

type token struct {
	depth  int
	cashed bool
}

// World is a deterministic game server. It is safe for concurrent use.
type World struct {
	mu sync.Mutex

	grid      types.Area
	treasures map[cell]map[int]int // cell -> depth -> count

	licenses  map[int64]*types.License
	nextID    int64
	maxActive int

	tokens    map[string]*token
	nextToken int

	coins     map[types.Coin]bool // issued coin -> spent
	nextCoin  types.Coin
	coinsPaid int

	faults map[string][]int
	calls  map[string]int
	digs   map[cell][]int
}

// NewWorld creates an empty world covering grid. At most maxActive
// non-exhausted licenses may exist at once (0 means 10).
func NewWorld(grid types.Area, maxActive int) *World {
	if maxActive <= 0 {
		maxActive = 10
	}
	return &World{
		grid:      grid,
		treasures: map[cell]map[int]int{},
		licenses:  map[int64]*types.License{},
		maxActive: maxActive,
		tokens:    map[string]*token{},
		coins:     map[types.Coin]bool{},
		faults:    map[string][]int{},
		calls:     map[string]int{},
		digs:      map[cell][]int{},
	}
}

// Place hides count treasures at (x, y) and depth.
func (w *World) Place(x, y, depth, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := cell{x, y}
	if w.treasures[c] == nil {
		w.treasures[c] = map[int]int{}
	}
	w.treasures[c][depth] += count
}

// Scatter hides n single treasures at pseudo-random cells and depths.
// It returns the placed total, which is always n.
func (w *World) Scatter(seed uint64, n int) int {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := 0; i < n; i++ {
		x := w.grid.PosX + r.IntN(w.grid.SizeX)
		y := w.grid.PosY + r.IntN(w.grid.SizeY)
		depth := types.MinDepth + r.IntN(types.MaxDepth)
		w.Place(x, y, depth, 1)
	}
	return n
}

// Fail makes the next calls of op answer with the given statuses, in order.
func (w *World) Fail(op string, statuses ...int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.faults[op] = append(w.faults[op], statuses...)
}

// Calls returns how many times op was invoked.
func (w *World) Calls(op string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[op]
}

// Remaining returns the number of treasures not yet dug up.
func (w *World) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, depths := range w.treasures {
		for _, n := range depths {
			total += n
		}
	}
	return total
}

// DigDepths returns the depths dug at (x, y) in call order.
func (w *World) DigDepths(x, y int) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.digs[cell{x, y}]...)
}

// Ledger returns coins issued and coins paid for licenses.
func (w *World) Ledger() (issued, paid int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.coins), w.coinsPaid
}

// Cashed returns how many tokens have been redeemed.
func (w *World) Cashed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, t := range w.tokens {
		if t.cashed {
			n++
		}
	}
	return n
}

// License returns a copy of the license with id.
func (w *World) License(id int64) (types.License, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.licenses[id]
	if !ok {
		return types.License{}, false
	}
	return *l, true
}

// enter counts the call and pops an injected fault. Callers hold w.mu.
func (w *World) enter(op string) error {
	w.calls[op]++
	if q := w.faults[op]; len(q) > 0 {
		status := q[0]
		w.faults[op] = q[1:]
		return &StatusErr{Op: op, Status: status}
	}
	return nil
}

// Explore implements types.Service.
func (w *World) Explore(ctx context.Context, area types.Area) (types.Explore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter(OpExplore); err != nil {
		return types.Explore{}, err
	}
	if area.Validate() != nil || !w.inGrid(area) {
		return types.Explore{}, &StatusErr{Op: OpExplore, Status: http.StatusUnprocessableEntity}
	}
	amount := 0
	for c, depths := range w.treasures {
		if area.Contains(c.x, c.y) {
			for _, n := range depths {
				amount += n
			}
		}
	}
	return types.Explore{Area: area, Amount: amount}, nil
}

// IssueLicense implements types.Service. More coins buy more digs.
func (w *World) IssueLicense(ctx context.Context, coins []types.Coin) (types.License, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter(OpIssueLicense); err != nil {
		return types.License{}, err
	}
	for _, c := range coins {
		spent, ok := w.coins[c]
		if !ok || spent {
			return types.License{}, &StatusErr{Op: OpIssueLicense, Status: http.StatusPaymentRequired}
		}
	}
	if w.activeLocked() >= w.maxActive {
		return types.License{}, &StatusErr{Op: OpIssueLicense, Status: http.StatusConflict}
	}
	for _, c := range coins {
		w.coins[c] = true
	}
	w.coinsPaid += len(coins)
	w.nextID++
	l := &types.License{ID: w.nextID, DigAllowed: allowance(len(coins))}
	w.licenses[l.ID] = l
	return *l, nil
}

func allowance(coins int) int {
	switch {
	case coins >= 21:
		return 50
	case coins >= 11:
		return 25
	case coins >= 6:
		return 15
	case coins >= 1:
		return 5
	default:
		return 3
	}
}

// ListLicenses implements types.Service.
func (w *World) ListLicenses(ctx context.Context) ([]types.License, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter(OpListLicenses); err != nil {
		return nil, err
	}
	out := make([]types.License, 0, len(w.licenses))
	for _, l := range w.licenses {
		if !l.Exhausted() {
			out = append(out, *l)
		}
	}
	return out, nil
}

// Dig implements types.Service. Every accepted dig uses the license, found
// or not.
func (w *World) Dig(ctx context.Context, req types.DigRequest) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter(OpDig); err != nil {
		return nil, err
	}
	l, ok := w.licenses[req.LicenseID]
	if !ok || l.Exhausted() {
		return nil, &StatusErr{Op: OpDig, Status: http.StatusForbidden}
	}
	if req.Validate() != nil || !w.grid.Contains(req.PosX, req.PosY) {
		return nil, &StatusErr{Op: OpDig, Status: http.StatusUnprocessableEntity}
	}
	l.DigUsed++

	c := cell{req.PosX, req.PosY}
	w.digs[c] = append(w.digs[c], req.Depth)
	n := w.treasures[c][req.Depth]
	if n == 0 {
		return nil, &StatusErr{Op: OpDig, Status: http.StatusNotFound}
	}
	delete(w.treasures[c], req.Depth)

	out := make([]string, n)
	for i := range out {
		w.nextToken++
		id := fmt.Sprintf("t%d-%d-%d-%d", req.PosX, req.PosY, req.Depth, w.nextToken)
		w.tokens[id] = &token{depth: req.Depth}
		out[i] = id
	}
	return out, nil
}

// Cash implements types.Service. A treasure pays one coin per depth level.
func (w *World) Cash(ctx context.Context, tok string) ([]types.Coin, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter(OpCash); err != nil {
		return nil, err
	}
	t, ok := w.tokens[tok]
	if !ok || t.cashed {
		return nil, &StatusErr{Op: OpCash, Status: http.StatusConflict}
	}
	t.cashed = true
	out := make([]types.Coin, t.depth)
	for i := range out {
		w.nextCoin++
		w.coins[w.nextCoin] = false
		out[i] = w.nextCoin
	}
	return out, nil
}

func (w *World) inGrid(a types.Area) bool {
	return a.PosX >= w.grid.PosX && a.PosY >= w.grid.PosY &&
		a.PosX+a.SizeX <= w.grid.PosX+w.grid.SizeX &&
		a.PosY+a.SizeY <= w.grid.PosY+w.grid.SizeY
}

func (w *World) activeLocked() int {
	n := 0
	for _, l := range w.licenses {
		if !l.Exhausted() {
			n++
		}
	}
	return n
}

// statusOf extracts the HTTP status of a World error.
func statusOf(err error) int {
	var se *StatusErr
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}
