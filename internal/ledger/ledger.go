// Package ledger keeps the licenses an instance holds and funds new ones
// from the wallet.
//
// Every dig reserves one use of a held license through Acquire, and settles
// it with Done or Invalidate once the server has answered. Reservation is the
// check-then-increment step: it happens under one lock, so a license whose
// uses are all reserved is never handed out.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/goldrush/internal/wallet"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Issuer is the part of the remote service that sells licenses.
type Issuer interface {
	IssueLicense(ctx context.Context, coins []types.Coin) (types.License, error)
	ListLicenses(ctx context.Context) ([]types.License, error)
}

// Defaults.
const (
	DefaultMaxLicenses = 2
	DefaultRetryDelay  = 50 * time.Millisecond
)

// errNoAdoptable means a 409 left nothing to adopt.
var errNoAdoptable = errors.New("no adoptable license")

// Config tunes a Ledger.
type Config struct {
	// MaxLicenses caps concurrently held valid licenses.
	MaxLicenses int
	// RetryDelay is the pause between failed funding attempts.
	RetryDelay time.Duration
}

// Stats are lifetime ledger counters.
type Stats struct {
	Issued      int
	Adopted     int
	Invalidated int
	Exhausted   int
	// BurnedCoins were sent with a funding call that failed.
	BurnedCoins int
}

type permit struct {
	id       int64
	allowed  int
	used     int
	inflight int
}

// Ledger is safe for concurrent use.
type Ledger struct {
	issuer Issuer
	wallet *wallet.Wallet
	log    logrus.FieldLogger
	cfg    Config

	mu      sync.Mutex
	permits []*permit
	stats   Stats
	// changed is closed and replaced whenever a permit is added, released
	// or dropped.
	changed chan struct{}

	// fundMu serializes funding so concurrent renewals never spend the same
	// coins or overshoot the cap.
	fundMu sync.Mutex
}

// New creates a Ledger funding licenses from w.
func New(issuer Issuer, w *wallet.Wallet, cfg Config, log logrus.FieldLogger) *Ledger {
	if cfg.MaxLicenses < 1 {
		cfg.MaxLicenses = DefaultMaxLicenses
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Ledger{
		issuer:  issuer,
		wallet:  w,
		log:     log,
		cfg:     cfg,
		changed: make(chan struct{}),
	}
}

// Acquire reserves one dig on a held license and returns its id, funding a
// new license when none has room. It blocks until a use is reserved or ctx
// is done.
func (l *Ledger) Acquire(ctx context.Context) (int64, error) {
	for {
		l.mu.Lock()
		if p := l.pickLocked(); p != nil {
			p.used++
			p.inflight++
			l.mu.Unlock()
			return p.id, nil
		}
		full := len(l.permits) >= l.cfg.MaxLicenses
		ch := l.changed
		l.mu.Unlock()

		if full {
			// Every held license is fully reserved; wait for a settle.
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-ch:
			}
			continue
		}

		err := l.renew(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		l.log.WithError(err).Debug("license renewal failed")
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ch:
		case <-time.After(l.cfg.RetryDelay):
		}
	}
}

// Done settles a reservation. An uncharged reservation gives its use back.
// A license with every use charged and nothing in flight is dropped.
func (l *Ledger) Done(id int64, charged bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, p := l.findLocked(id)
	if p == nil {
		return
	}
	p.inflight--
	if !charged {
		p.used--
	}
	if p.used >= p.allowed && p.inflight <= 0 {
		l.removeLocked(i)
		l.stats.Exhausted++
	}
	l.broadcastLocked()
}

// Invalidate drops a license the server refused, along with any
// reservations still in flight on it.
func (l *Ledger) Invalidate(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, p := l.findLocked(id)
	if p == nil {
		return
	}
	l.removeLocked(i)
	l.stats.Invalidated++
	l.broadcastLocked()
}

// Held returns the held licenses as the server would report them.
func (l *Ledger) Held() []types.License {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.License, len(l.permits))
	for i, p := range l.permits {
		out[i] = types.License{ID: p.id, DigAllowed: p.allowed, DigUsed: p.used}
	}
	return out
}

// Stats returns lifetime counters.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// renew funds one license, or adopts one after a conflict. It returns nil
// without calling the server when another caller already made room.
func (l *Ledger) renew(ctx context.Context) error {
	l.fundMu.Lock()
	defer l.fundMu.Unlock()

	l.mu.Lock()
	ready := l.pickLocked() != nil || len(l.permits) >= l.cfg.MaxLicenses
	l.mu.Unlock()
	if ready {
		return nil
	}

	coins := l.wallet.TakeBatch()
	lic, err := l.issuer.IssueLicense(ctx, coins)
	switch {
	case err == nil:
		l.log.WithFields(logrus.Fields{"license": lic.ID, "coins": len(coins), "digs": lic.DigAllowed}).Debug("license issued")
		l.add(lic, false)
		return nil
	case errors.Is(err, types.ErrTooManyLicenses):
		l.wallet.Refund(coins)
		return l.adopt(ctx)
	default:
		l.mu.Lock()
		l.stats.BurnedCoins += len(coins)
		l.mu.Unlock()
		return fmt.Errorf("issue license with %d coins: %w", len(coins), err)
	}
}

// adopt takes over the least-used active license the ledger does not hold.
func (l *Ledger) adopt(ctx context.Context) error {
	list, err := l.issuer.ListLicenses(ctx)
	if err != nil {
		return fmt.Errorf("list licenses: %w", err)
	}

	l.mu.Lock()
	var best *types.License
	for i := range list {
		cand := &list[i]
		if cand.Exhausted() {
			continue
		}
		if _, held := l.findLocked(cand.ID); held != nil {
			continue
		}
		if best == nil || cand.DigUsed < best.DigUsed {
			best = cand
		}
	}
	l.mu.Unlock()

	if best == nil {
		return errNoAdoptable
	}
	l.log.WithFields(logrus.Fields{"license": best.ID, "used": best.DigUsed, "allowed": best.DigAllowed}).Warn("adopting active license after conflict")
	l.add(*best, true)
	return nil
}

func (l *Ledger) add(lic types.License, adopted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lic.Exhausted() {
		return
	}
	if _, p := l.findLocked(lic.ID); p != nil {
		return
	}
	l.permits = append(l.permits, &permit{id: lic.ID, allowed: lic.DigAllowed, used: lic.DigUsed})
	if adopted {
		l.stats.Adopted++
	} else {
		l.stats.Issued++
	}
	l.broadcastLocked()
}

// pickLocked returns the oldest held license with an unreserved use.
func (l *Ledger) pickLocked() *permit {
	for _, p := range l.permits {
		if p.used < p.allowed {
			return p
		}
	}
	return nil
}

func (l *Ledger) findLocked(id int64) (int, *permit) {
	for i, p := range l.permits {
		if p.id == id {
			return i, p
		}
	}
	return -1, nil
}

func (l *Ledger) removeLocked(i int) {
	l.permits = append(l.permits[:i], l.permits[i+1:]...)
}

func (l *Ledger) broadcastLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}
