package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/goldrush/internal/gametest"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

func TestSplitTilesArea(t *testing.T) {
	areas := []types.Area{
		{PosX: 0, PosY: 0, SizeX: 4, SizeY: 4},
		{PosX: 3, PosY: 7, SizeX: 5, SizeY: 1},
		{PosX: -2, PosY: 1, SizeX: 1, SizeY: 7},
		{PosX: 10, PosY: 10, SizeX: 125, SizeY: 125},
		{PosX: 0, PosY: 0, SizeX: 2, SizeY: 1},
		{PosX: 0, PosY: 0, SizeX: 6, SizeY: 9},
	}

	for _, area := range areas {
		t.Run(area.String(), func(t *testing.T) {
			a, b := Split(area)
			require.NoError(t, a.Validate())
			require.NoError(t, b.Validate())
			assert.False(t, a.Overlaps(b), "halves must not overlap")
			assert.Equal(t, area.Cells(), a.Cells()+b.Cells(), "halves must cover the area")

			for x := area.PosX; x < area.PosX+area.SizeX; x++ {
				for y := area.PosY; y < area.PosY+area.SizeY; y++ {
					assert.True(t, a.Contains(x, y) != b.Contains(x, y), "cell %d,%d in exactly one half", x, y)
				}
			}

			if a.SizeX == area.SizeX {
				assert.LessOrEqual(t, b.SizeY-a.SizeY, 1)
				assert.GreaterOrEqual(t, b.SizeY-a.SizeY, 0)
			} else {
				assert.Equal(t, area.SizeY, a.SizeY)
				assert.LessOrEqual(t, b.SizeX-a.SizeX, 1)
			}
		})
	}
}

func TestSplitAxis(t *testing.T) {
	a, b := Split(types.Area{SizeX: 4, SizeY: 4})
	assert.Equal(t, types.Area{PosX: 0, PosY: 0, SizeX: 4, SizeY: 2}, a, "ties split the Y axis")
	assert.Equal(t, types.Area{PosX: 0, PosY: 2, SizeX: 4, SizeY: 2}, b)

	a, b = Split(types.Area{SizeX: 5, SizeY: 2})
	assert.Equal(t, types.Area{PosX: 0, PosY: 0, SizeX: 2, SizeY: 2}, a)
	assert.Equal(t, types.Area{PosX: 2, PosY: 0, SizeX: 3, SizeY: 2}, b)
}

func TestSplitTerminates(t *testing.T) {
	tests := []struct {
		area types.Area
		want int
	}{
		{types.Area{SizeX: 16, SizeY: 16}, 8},
		{types.Area{SizeX: 1, SizeY: 1}, 0},
		{types.Area{SizeX: 125, SizeY: 125}, 14},
		{types.Area{SizeX: 3, SizeY: 1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.area.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, MaxSteps(tt.area))

			// Always descending into the larger half is the worst case.
			area := tt.area
			steps := 0
			for !area.Unit() {
				a, b := Split(area)
				area = b
				if a.Cells() > b.Cells() {
					area = a
				}
				steps++
				require.LessOrEqual(t, steps, tt.want)
			}
		})
	}
}

// scripted answers explores from a table keyed by area, zero otherwise.
type scripted struct {
	mu      sync.Mutex
	amounts map[types.Area]int
	fail    map[types.Area]error
	calls   []types.Area
}

func (s *scripted) Explore(ctx context.Context, area types.Area) (types.Explore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, area)
	if err := s.fail[area]; err != nil {
		return types.Explore{}, err
	}
	return types.Explore{Area: area, Amount: s.amounts[area]}, nil
}

func TestLocateDescendsIntoRicherHalf(t *testing.T) {
	w := gametest.NewWorld(types.Area{SizeX: 4, SizeY: 4}, 0)
	w.Place(1, 0, 1, 1) // {0,0,4,2} holds 1
	w.Place(2, 3, 1, 2) // {0,2,4,2} holds 2

	var residuals []types.Explore
	e := NewEngine(w, func(r types.Explore) { residuals = append(residuals, r) })

	got, err := e.Locate(context.Background(), types.Area{SizeX: 4, SizeY: 4})
	require.NoError(t, err)
	assert.True(t, got.Area.Unit())
	assert.Equal(t, types.Area{PosX: 2, PosY: 3, SizeX: 1, SizeY: 1}, got.Area)
	assert.Equal(t, 2, got.Amount)
	assert.True(t, types.Area{PosX: 0, PosY: 2, SizeX: 4, SizeY: 2}.Contains(got.Area.PosX, got.Area.PosY))

	require.NotEmpty(t, residuals)
	assert.Equal(t, types.Explore{Area: types.Area{PosX: 0, PosY: 0, SizeX: 4, SizeY: 2}, Amount: 1}, residuals[0])
	assert.LessOrEqual(t, w.Calls(gametest.OpExplore), 2*MaxSteps(types.Area{SizeX: 4, SizeY: 4}))
}

func TestLocateTieGoesToSecondHalf(t *testing.T) {
	p := &scripted{amounts: map[types.Area]int{
		{PosX: 0, PosY: 0, SizeX: 1, SizeY: 1}: 1,
		{PosX: 0, PosY: 1, SizeX: 1, SizeY: 1}: 1,
	}}
	var residuals []types.Explore
	e := NewEngine(p, func(r types.Explore) { residuals = append(residuals, r) })

	got, err := e.Locate(context.Background(), types.Area{SizeX: 1, SizeY: 2})
	require.NoError(t, err)
	assert.Equal(t, types.Area{PosX: 0, PosY: 1, SizeX: 1, SizeY: 1}, got.Area)
	assert.Equal(t, []types.Explore{{Area: types.Area{PosX: 0, PosY: 0, SizeX: 1, SizeY: 1}, Amount: 1}}, residuals)
}

func TestLocateDegradesOnFailures(t *testing.T) {
	transient := errors.New("timeout")
	tests := []struct {
		name       string
		prober     *scripted
		wantArea   types.Area
		wantAmount int
	}{
		{
			name:     "both halves empty take first half",
			prober:   &scripted{},
			wantArea: types.Area{PosX: 0, PosY: 0, SizeX: 1, SizeY: 1},
		},
		{
			name: "both halves fail take first half",
			prober: &scripted{fail: map[types.Area]error{
				{PosX: 0, PosY: 0, SizeX: 1, SizeY: 1}: transient,
				{PosX: 0, PosY: 1, SizeX: 1, SizeY: 1}: transient,
			}},
			wantArea: types.Area{PosX: 0, PosY: 0, SizeX: 1, SizeY: 1},
		},
		{
			name: "only second half answers",
			prober: &scripted{
				fail:    map[types.Area]error{{PosX: 0, PosY: 0, SizeX: 1, SizeY: 1}: transient},
				amounts: map[types.Area]int{{PosX: 0, PosY: 1, SizeX: 1, SizeY: 1}: 3},
			},
			wantArea:   types.Area{PosX: 0, PosY: 1, SizeX: 1, SizeY: 1},
			wantAmount: 3,
		},
		{
			name: "only first half answers even when empty",
			prober: &scripted{
				fail: map[types.Area]error{{PosX: 0, PosY: 1, SizeX: 1, SizeY: 1}: &gametest.StatusErr{Op: gametest.OpExplore, Status: http.StatusBadGateway}},
			},
			wantArea: types.Area{PosX: 0, PosY: 0, SizeX: 1, SizeY: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEngine(tt.prober, nil).Locate(context.Background(), types.Area{SizeX: 1, SizeY: 2})
			require.NoError(t, err)
			assert.Equal(t, tt.wantArea, got.Area)
			assert.Equal(t, tt.wantAmount, got.Amount)
		})
	}
}

func TestLocateAbortsOnFatalRequest(t *testing.T) {
	p := &scripted{fail: map[types.Area]error{
		{PosX: 0, PosY: 4, SizeX: 8, SizeY: 4}: fmt.Errorf("explore: %w", types.ErrFatalRequest),
	}}
	_, err := NewEngine(p, nil).Locate(context.Background(), types.Area{SizeX: 8, SizeY: 8})
	assert.ErrorIs(t, err, types.ErrFatalRequest)
	assert.Len(t, p.calls, 2, "no further probes after a fatal answer")
}

func TestLocateRejectsInvalidArea(t *testing.T) {
	_, err := NewEngine(&scripted{}, nil).Locate(context.Background(), types.Area{SizeX: 0, SizeY: 4})
	assert.ErrorIs(t, err, types.ErrInvalidArea)
}

func TestLocateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(&scripted{}, nil).Locate(ctx, types.Area{SizeX: 4, SizeY: 4})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocateFindsScatteredTreasure(t *testing.T) {
	grid := types.Area{SizeX: 64, SizeY: 64}
	w := gametest.NewWorld(grid, 0)
	w.Place(37, 12, 4, 1)

	got, err := NewEngine(w, nil).Locate(context.Background(), grid)
	require.NoError(t, err)
	assert.Equal(t, types.Area{PosX: 37, PosY: 12, SizeX: 1, SizeY: 1}, got.Area)
	assert.Equal(t, 1, got.Amount)
	assert.Equal(t, 2*MaxSteps(grid), w.Calls(gametest.OpExplore))
}
