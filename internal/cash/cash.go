// Package cash redeems treasure tokens for coins and credits the wallet.
package cash

import (
	"context"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/goldrush/internal/journal"
	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/internal/workqueue"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// DefaultConcurrency bounds parallel cash calls.
const DefaultConcurrency = 10

// retryPriority sorts failed tokens behind everything else.
const retryPriority = math.MinInt

// Casher is the part of the remote service that redeems treasures.
type Casher interface {
	Cash(ctx context.Context, token string) ([]types.Coin, error)
}

// Wallet receives redeemed coins.
type Wallet interface {
	Credit(coins []types.Coin)
}

// Journal records cash attempts. It may be nil.
type Journal interface {
	RecordCash(ctx context.Context, c journal.Cash) error
}

// Config tunes a Queue.
type Config struct {
	Concurrency int
	// PrioritizeDepth cashes deeper treasures first.
	PrioritizeDepth bool
}

// Counts is a consistent view of token accounting.
// Produced == Cashed + Pending always holds.
type Counts struct {
	Produced int
	Cashed   int
	Pending  int
}

// Queue cashes every submitted treasure exactly once, retrying failures
// without limit.
type Queue struct {
	cfg     Config
	pool    *workqueue.Pool
	casher  Casher
	wallet  Wallet
	rec     *stats.Recorder
	journal Journal
	log     logrus.FieldLogger

	mu     sync.Mutex
	counts Counts
}

// New creates a Queue. Call Start before submitting work.
func New(cfg Config, casher Casher, wallet Wallet, rec *stats.Recorder, log logrus.FieldLogger) *Queue {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if rec == nil {
		rec = stats.NewRecorder(nil)
	}
	return &Queue{
		cfg:    cfg,
		pool:   workqueue.NewPool(cfg.Concurrency),
		casher: casher,
		wallet: wallet,
		rec:    rec,
		log:    log,
	}
}

// SetJournal attaches a journal for cash records.
func (q *Queue) SetJournal(j Journal) { q.journal = j }

// Start launches the cash workers.
func (q *Queue) Start(ctx context.Context) { q.pool.Start(ctx) }

// Wait blocks until every submitted treasure is cashed or ctx is done.
func (q *Queue) Wait(ctx context.Context) error { return q.pool.Wait(ctx) }

// Counts returns the token accounting.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts
}

// Pending returns the number of tokens not yet cashed.
func (q *Queue) Pending() int { return q.Counts().Pending }

// Submit queues a treasure for cashing.
func (q *Queue) Submit(t types.Treasure) {
	q.mu.Lock()
	q.counts.Produced++
	q.counts.Pending++
	q.mu.Unlock()

	q.push(q.priority(t), t)
}

func (q *Queue) priority(t types.Treasure) int {
	if q.cfg.PrioritizeDepth {
		return t.Depth
	}
	return 0
}

func (q *Queue) push(priority int, t types.Treasure) {
	q.pool.Submit(priority, func(ctx context.Context) { q.cash(ctx, t) })
}

func (q *Queue) cash(ctx context.Context, t types.Treasure) {
	coins, err := q.casher.Cash(ctx, t.Token)
	if err != nil {
		q.record(ctx, journal.Cash{Depth: t.Depth})
		if ctx.Err() != nil {
			return
		}
		q.log.WithError(err).WithField("depth", t.Depth).Debug("cash failed, requeued")
		q.push(retryPriority, t)
		return
	}

	q.wallet.Credit(coins)
	q.rec.Cash(t.Depth, len(coins))
	q.record(ctx, journal.Cash{Depth: t.Depth, Coins: len(coins), OK: true})

	q.mu.Lock()
	q.counts.Cashed++
	q.counts.Pending--
	q.mu.Unlock()
}

func (q *Queue) record(ctx context.Context, c journal.Cash) {
	if q.journal == nil {
		return
	}
	if err := q.journal.RecordCash(ctx, c); err != nil {
		q.log.WithError(err).Debug("journal cash")
	}
}
