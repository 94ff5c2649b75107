// Package coordinator wires one prospecting pipeline per grid partition and
// drives it: scan the partition cell by cell, locate treasure in the hot
// cells, dig it up and cash it, funding licenses from the proceeds.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/goldrush/internal/backpressure"
	"github.com/mesh-intelligence/goldrush/internal/cash"
	"github.com/mesh-intelligence/goldrush/internal/config"
	"github.com/mesh-intelligence/goldrush/internal/dig"
	"github.com/mesh-intelligence/goldrush/internal/journal"
	"github.com/mesh-intelligence/goldrush/internal/ledger"
	"github.com/mesh-intelligence/goldrush/internal/logging"
	"github.com/mesh-intelligence/goldrush/internal/remote"
	"github.com/mesh-intelligence/goldrush/internal/search"
	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/internal/wallet"
	"github.com/mesh-intelligence/goldrush/internal/workqueue"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Search pool priorities. Fresh scan hits outrank residual halves; residuals
// rank smaller areas first.
const freshPriority = 0

func residualPriority(area types.Area) int { return -area.Cells() }

// Options carries collaborators shared by instances.
type Options struct {
	// Service replaces the HTTP client. It must be safe for concurrent use.
	Service types.Service
	Log     logrus.FieldLogger
}

// Instance is one partition's pipeline. Nothing in it is shared with other
// instances.
type Instance struct {
	id   int
	area types.Area
	cfg  config.Config
	log  *logrus.Entry

	svc       types.Service
	collector *stats.Collector
	rec       *stats.Recorder
	wallet    *wallet.Wallet
	ledger    *ledger.Ledger
	engine    *search.Engine
	search    *workqueue.Pool
	digs      *dig.Orchestrator
	cash      *cash.Queue
	gate      *backpressure.Controller
	journal   *journal.Journal

	scanned int
	located atomic.Int64
}

// NewInstance builds the pipeline for partition id of cfg's grid.
func NewInstance(id int, cfg config.Config, opts Options) (*Instance, error) {
	if err := cfg.ValidateGrid(); err != nil {
		return nil, err
	}
	parts := Partition(cfg.Grid(), cfg.PartsX, cfg.PartsY)
	if id < 0 || id >= len(parts) {
		return nil, fmt.Errorf("%w: %d of %d", config.ErrInstanceInvalid, id, len(parts))
	}
	policy, err := dig.ParsePolicy(cfg.FailedDigPolicy)
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(cfg.JournalPath, id)
	if err != nil {
		return nil, err
	}

	base := opts.Log
	if base == nil {
		base = logrus.StandardLogger()
	}

	in := &Instance{
		id:        id,
		area:      parts[id],
		cfg:       cfg,
		log:       logging.Instance(base, id, j.RunID()),
		collector: stats.NewCollector("", strconv.Itoa(id)),
		wallet:    wallet.New(),
		journal:   j,
	}
	in.rec = stats.NewRecorder(in.collector)

	in.svc = opts.Service
	if in.svc == nil {
		in.svc = remote.NewClient(remote.Config{
			BaseURL:   remote.BaseURL(cfg.Address, cfg.Port),
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.RequestTimeout,
		}, in.rec)
	}

	in.ledger = ledger.New(in.svc, in.wallet, ledger.Config{MaxLicenses: cfg.MaxLicenses}, in.log)
	in.search = workqueue.NewPool(cfg.SearchConcurrency)
	in.engine = search.NewEngine(in.svc, in.residual)
	in.gate = backpressure.New(in.search, cfg.MaxPendingDigs, in.log)

	in.cash = cash.New(cash.Config{
		Concurrency:     cfg.CashConcurrency,
		PrioritizeDepth: cfg.CashDepthPriority,
	}, in.svc, in.wallet, in.rec, in.log)
	in.cash.SetJournal(j)

	in.digs = dig.New(dig.Config{
		Concurrency:    cfg.DigConcurrency,
		ChargeNotFound: cfg.ChargeNotFound,
		FailedPolicy:   policy,
	}, in.svc, in.ledger, in.cash, in.rec, in.log)
	in.digs.SetJournal(j)
	in.digs.SetObserver(in.gate.Observe)

	return in, nil
}

// ID returns the partition index.
func (in *Instance) ID() int { return in.id }

// Area returns the partition this instance scans.
func (in *Instance) Area() types.Area { return in.area }

// Collector returns the instance's Prometheus collector.
func (in *Instance) Collector() *stats.Collector { return in.collector }

// Summary describes a finished or interrupted run.
type Summary struct {
	Instance int
	RunID    string
	Area     types.Area
	Scanned  int
	Located  int
	Finished int
	Cash     cash.Counts
	Balance  int
	Wallet   wallet.Totals
	Ledger   ledger.Stats
	Pauses   int
	Depths   []journal.DepthSummary
	Stats    stats.Snapshot
}

// Run scans the partition and returns once every located cell is dug and
// every treasure cashed, or when ctx is done. The journal is closed on
// return.
func (in *Instance) Run(ctx context.Context) (Summary, error) {
	defer in.journal.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	in.search.Start(runCtx)
	in.digs.Start(runCtx)
	in.cash.Start(runCtx)

	reporter := stats.NewReporter(in.rec, in.gauges, in.log, in.cfg.StatsInterval)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		reporter.Run(runCtx)
	}()

	in.log.WithField("area", in.area.String()).Info("run started")
	err := in.scan(runCtx)
	if err == nil {
		err = in.drain(runCtx)
	}

	stop()
	<-reported

	summary := in.summary()
	fields := logrus.Fields{
		"scanned": summary.Scanned, "located": summary.Located, "finished": summary.Finished,
		"cashed": summary.Cash.Cashed, "balance": summary.Balance,
	}
	if err != nil {
		in.log.WithFields(fields).WithError(err).Warn("run interrupted")
		return summary, err
	}
	in.log.WithFields(fields).Info("run finished")
	return summary, nil
}

// scan probes every cell of the partition in order, waiting at the
// backpressure gate before each probe.
func (in *Instance) scan(ctx context.Context) error {
	for _, cell := range Cells(in.area, in.cfg.Step) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.search.WaitResumed(ctx); err != nil {
			return err
		}
		exp, err := in.svc.Explore(ctx, cell)
		in.scanned++
		switch {
		case err == nil:
			if exp.Amount > 0 {
				exp.Area = cell
				in.searchCell(freshPriority, exp)
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, types.ErrFatalRequest):
			in.log.WithError(err).WithField("cell", cell.String()).Warn("scan probe rejected")
			if err := in.pause(ctx); err != nil {
				return err
			}
		default:
			in.log.WithError(err).WithField("cell", cell.String()).Debug("scan probe failed")
		}
	}
	return nil
}

// drain waits for search, then digs, then cashing.
func (in *Instance) drain(ctx context.Context) error {
	if err := in.search.Wait(ctx); err != nil {
		return err
	}
	if err := in.digs.Wait(ctx); err != nil {
		return err
	}
	return in.cash.Wait(ctx)
}

// searchCell queues a located-or-residual area for bisection.
func (in *Instance) searchCell(priority int, exp types.Explore) {
	in.search.Submit(priority, func(ctx context.Context) {
		if exp.Area.Unit() {
			in.found(exp)
			return
		}
		got, err := in.engine.Locate(ctx, exp.Area)
		if err != nil {
			if errors.Is(err, types.ErrFatalRequest) {
				in.log.WithError(err).Warn("locate rejected")
				_ = in.pause(ctx)
			}
			return
		}
		in.found(got)
	})
}

// found hands a located cell to the digs.
func (in *Instance) found(exp types.Explore) {
	if exp.Amount <= 0 {
		return
	}
	in.located.Add(1)
	in.digs.Submit(exp)
}

func (in *Instance) residual(exp types.Explore) {
	in.searchCell(residualPriority(exp.Area), exp)
}

func (in *Instance) pause(ctx context.Context) error {
	if in.cfg.FatalPause <= 0 {
		return nil
	}
	t := time.NewTimer(in.cfg.FatalPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// gauges reports queue lengths and refreshes the wallet and license gauges.
func (in *Instance) gauges() map[string]int {
	in.collector.SetWallet(in.wallet.Balance())
	in.collector.SetLicenses(len(in.ledger.Held()))
	return map[string]int{
		"search":  in.search.Len(),
		"handoff": in.digs.Handoff(),
		"dig":     in.digs.Pending(),
		"cash":    in.cash.Pending(),
	}
}

func (in *Instance) summary() Summary {
	s := Summary{
		Instance: in.id,
		RunID:    in.journal.RunID(),
		Area:     in.area,
		Scanned:  in.scanned,
		Located:  int(in.located.Load()),
		Finished: in.digs.Finished(),
		Cash:     in.cash.Counts(),
		Balance:  in.wallet.Balance(),
		Wallet:   in.wallet.Totals(),
		Ledger:   in.ledger.Stats(),
		Pauses:   in.gate.Pauses(),
		Stats:    in.rec.Snapshot(),
	}
	// The run context is gone by now; the journal is still open.
	if depths, err := in.journal.Summary(context.Background()); err == nil {
		s.Depths = depths
	}
	return s
}
