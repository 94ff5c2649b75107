// Package dig turns located cells into dig attempts at increasing depth.
//
// Each dig is one task on a priority pool keyed by depth, so deeper digs run
// first. A cell queues its next dig only after the previous one has settled,
// which keeps at most one dig per cell in flight and makes depths strictly
// increase.
package dig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/goldrush/internal/journal"
	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/internal/workqueue"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Digger is the part of the remote service that digs.
type Digger interface {
	Dig(ctx context.Context, req types.DigRequest) ([]string, error)
}

// Permits hands out and settles license reservations.
type Permits interface {
	Acquire(ctx context.Context) (int64, error)
	Done(id int64, charged bool)
	Invalidate(id int64)
}

// Sink receives treasures for cashing.
type Sink interface {
	Submit(t types.Treasure)
}

// Journal records dig attempts. It may be nil.
type Journal interface {
	RecordDig(ctx context.Context, d journal.Dig) error
}

// Observer is told the handoff and pending counts whenever they change.
type Observer func(handoff, pending int)

// Policy decides what happens to a cell after a 403 or 422 dig.
type Policy string

// Failed-dig policies.
const (
	// Deeper requeues the cell one depth deeper.
	Deeper Policy = "deeper"
	// Drop abandons the cell.
	Drop Policy = "drop"
)

// ErrUnknownPolicy is returned by ParsePolicy.
var ErrUnknownPolicy = errors.New("unknown failed dig policy")

// ParsePolicy parses a policy name. The empty string means Deeper.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", Deeper:
		return Deeper, nil
	case Drop:
		return Drop, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Config tunes an Orchestrator.
type Config struct {
	Concurrency int
	// ChargeNotFound settles a 404 as a used dig.
	ChargeNotFound bool
	FailedPolicy   Policy
}

// Orchestrator digs located cells. It is safe for concurrent use.
type Orchestrator struct {
	cfg     Config
	pool    *workqueue.Pool
	digger  Digger
	permits Permits
	sink    Sink
	rec     *stats.Recorder
	journal Journal
	log     logrus.FieldLogger

	// notifyMu orders observer calls so the last call sees the latest
	// counts.
	notifyMu sync.Mutex
	observe  Observer
	handoff  atomic.Int64
	done     atomic.Int64
}

// New creates an Orchestrator. Call Start before submitting work.
func New(cfg Config, digger Digger, permits Permits, sink Sink, rec *stats.Recorder, log logrus.FieldLogger) *Orchestrator {
	if cfg.FailedPolicy == "" {
		cfg.FailedPolicy = Deeper
	}
	if rec == nil {
		rec = stats.NewRecorder(nil)
	}
	return &Orchestrator{
		cfg:     cfg,
		pool:    workqueue.NewPool(cfg.Concurrency),
		digger:  digger,
		permits: permits,
		sink:    sink,
		rec:     rec,
		log:     log,
		observe: func(int, int) {},
	}
}

// SetJournal attaches a journal for dig records.
func (o *Orchestrator) SetJournal(j Journal) { o.journal = j }

// SetObserver installs the handoff/pending observer.
func (o *Orchestrator) SetObserver(fn Observer) {
	if fn != nil {
		o.observe = fn
	}
}

// Start launches the dig workers.
func (o *Orchestrator) Start(ctx context.Context) { o.pool.Start(ctx) }

// Wait blocks until every submitted cell is finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error { return o.pool.Wait(ctx) }

// Handoff returns the number of located cells whose first dig has not
// started.
func (o *Orchestrator) Handoff() int { return int(o.handoff.Load()) }

// Pending returns the number of queued dig tasks.
func (o *Orchestrator) Pending() int { return o.pool.Len() }

// Finished returns the number of cells completed or abandoned.
func (o *Orchestrator) Finished() int { return int(o.done.Load()) }

type job struct {
	posX, posY int
	remaining  int
	depth      int
	fresh      bool
}

// Submit hands off a located cell. Cells with nothing to find are ignored.
func (o *Orchestrator) Submit(e types.Explore) {
	if e.Amount <= 0 {
		return
	}
	o.handoff.Add(1)
	o.enqueue(job{posX: e.Area.PosX, posY: e.Area.PosY, remaining: e.Amount, depth: types.MinDepth, fresh: true})
}

func (o *Orchestrator) enqueue(j job) {
	o.pool.Submit(j.depth, func(ctx context.Context) { o.run(ctx, j) })
	o.notify()
}

func (o *Orchestrator) notify() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.observe(o.Handoff(), o.Pending())
}

func (o *Orchestrator) run(ctx context.Context, j job) {
	if j.fresh {
		j.fresh = false
		o.handoff.Add(-1)
		o.notify()
	}

	id, err := o.permits.Acquire(ctx)
	if err != nil {
		// Only cancellation ends an acquire.
		return
	}

	req := types.DigRequest{LicenseID: id, PosX: j.posX, PosY: j.posY, Depth: j.depth}
	tokens, err := o.digger.Dig(ctx, req)
	entry := journal.Dig{PosX: j.posX, PosY: j.posY, Depth: j.depth, LicenseID: id}
	log := o.log.WithFields(logrus.Fields{"x": j.posX, "y": j.posY, "depth": j.depth, "license": id})

	switch {
	case err == nil:
		o.permits.Done(id, true)
		o.rec.Dig(j.depth, len(tokens), true)
		entry.Outcome, entry.Tokens = journal.Found, len(tokens)
		for _, tok := range tokens {
			o.sink.Submit(types.Treasure{Token: tok, Depth: j.depth})
		}
		j.remaining -= len(tokens)
		o.record(ctx, entry)
		o.advance(j)

	case errors.Is(err, types.ErrNotFound):
		o.permits.Done(id, o.cfg.ChargeNotFound)
		o.rec.Dig(j.depth, 0, false)
		entry.Outcome = journal.NotFound
		o.record(ctx, entry)
		o.advance(j)

	case errors.Is(err, types.ErrPermitDenied):
		o.permits.Invalidate(id)
		log.Warn("license refused, dropping it")
		entry.Outcome = journal.Denied
		o.record(ctx, entry)
		o.failed(j)

	case errors.Is(err, types.ErrFatalRequest):
		o.permits.Done(id, false)
		log.WithError(err).Warn("dig rejected")
		entry.Outcome = journal.Rejected
		o.record(ctx, entry)
		o.failed(j)

	default:
		o.permits.Done(id, false)
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Debug("dig failed, retrying")
		entry.Outcome = journal.Transient
		o.record(ctx, entry)
		o.enqueue(j)
	}
}

// advance moves the cell one depth down, or finishes it.
func (o *Orchestrator) advance(j job) {
	j.depth++
	if j.remaining <= 0 || j.depth > types.MaxDepth {
		o.done.Add(1)
		o.notify()
		return
	}
	o.enqueue(j)
}

func (o *Orchestrator) failed(j job) {
	if o.cfg.FailedPolicy == Drop {
		o.done.Add(1)
		o.notify()
		return
	}
	o.advance(j)
}

func (o *Orchestrator) record(ctx context.Context, d journal.Dig) {
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordDig(ctx, d); err != nil {
		o.log.WithError(err).Debug("journal dig")
	}
}
