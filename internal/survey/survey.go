// Package survey samples treasure density by probing single cells in
// concurrent batches and counting the hits per batch.
package survey

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// DefaultBatch is the number of probes in flight per batch.
const DefaultBatch = 100

// Prober probes an area for treasure.
type Prober interface {
	Explore(ctx context.Context, area types.Area) (types.Explore, error)
}

// Result summarises a survey.
type Result struct {
	// Batches holds the hit count of each complete or trailing batch.
	Batches []int
	Probed  int
	Hits    int
	// Amount totals the treasure reported by all hits.
	Amount int
	Errors int
}

// Density returns the share of probed cells holding treasure.
func (r Result) Density() float64 {
	if r.Probed == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Probed)
}

// Surveyor runs surveys.
type Surveyor struct {
	prober Prober
	batch  int
	log    logrus.FieldLogger
}

// New creates a Surveyor probing batch cells at a time.
func New(prober Prober, batch int, log logrus.FieldLogger) *Surveyor {
	if batch < 1 {
		batch = DefaultBatch
	}
	return &Surveyor{prober: prober, batch: batch, log: log}
}

// Run probes the cells of area column by column, at most limit of them
// (0 means all). A malformed-request error stops the survey and is
// returned with the partial result.
func (s *Surveyor) Run(ctx context.Context, area types.Area, limit int) (Result, error) {
	if err := area.Validate(); err != nil {
		return Result{}, err
	}
	total := area.Cells()
	if limit > 0 && limit < total {
		total = limit
	}

	var res Result
	cells := make([]types.Area, 0, s.batch)
	for i := 0; i < total; i++ {
		x := area.PosX + i/area.SizeY
		y := area.PosY + i%area.SizeY
		cells = append(cells, types.Area{PosX: x, PosY: y, SizeX: 1, SizeY: 1})
		if len(cells) < s.batch && i < total-1 {
			continue
		}
		if err := s.probeBatch(ctx, cells, &res); err != nil {
			return res, err
		}
		cells = cells[:0]
	}
	return res, nil
}

func (s *Surveyor) probeBatch(ctx context.Context, cells []types.Area, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	type outcome struct {
		amount int
		err    error
	}
	outcomes := make([]outcome, len(cells))
	var wg sync.WaitGroup
	for i, cell := range cells {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exp, err := s.prober.Explore(ctx, cell)
			outcomes[i] = outcome{amount: exp.Amount, err: err}
		}()
	}
	wg.Wait()

	hits := 0
	var fatal error
	for i, o := range outcomes {
		res.Probed++
		switch {
		case o.err == nil:
			if o.amount > 0 {
				hits++
				res.Amount += o.amount
			}
		case errors.Is(o.err, types.ErrFatalRequest):
			res.Errors++
			if fatal == nil {
				fatal = fmt.Errorf("probe %s: %w", cells[i], o.err)
			}
		default:
			res.Errors++
		}
	}
	res.Hits += hits
	res.Batches = append(res.Batches, hits)

	s.log.WithFields(logrus.Fields{"batch": len(res.Batches), "hits": hits, "probed": res.Probed}).Debug("survey batch")
	return fatal
}
