// Package stats keeps the Run Statistics of one instance: per-operation call
// counts and latencies keyed by HTTP status, dig and cash counters by depth,
// and a Prometheus collector mirroring them.
//
// Statistics are observability only; no decision in the pipeline reads them.
package stats

import (
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Op names a kind of remote call.
type Op string

// Remote operation kinds. Licenses are split by whether coins were paid.
const (
	OpExplore     Op = "explore"
	OpLicenseFree Op = "licenseFree"
	OpLicensePaid Op = "licensePaid"
	OpLicenseList Op = "licenseList"
	OpDig         Op = "dig"
	OpCash        Op = "cash"
)

// Ops lists every operation kind in reporting order.
var Ops = []Op{OpExplore, OpLicenseFree, OpLicensePaid, OpLicenseList, OpDig, OpCash}

// StatusTransport is recorded when a call produced no HTTP response.
const StatusTransport = 0

// CallStats counts outcomes of one operation kind.
type CallStats struct {
	Success int64                 `json:"success"`
	Errors  map[int]int64         `json:"errors,omitempty"`
	Time    map[int]time.Duration `json:"time,omitempty"`
}

func (c CallStats) clone() CallStats {
	return CallStats{Success: c.Success, Errors: maps.Clone(c.Errors), Time: maps.Clone(c.Time)}
}

// DepthStats counts dig and cash outcomes at one depth.
type DepthStats struct {
	Digs      int64 `json:"digs"`
	NotFound  int64 `json:"notFound"`
	Treasures int64 `json:"treasures"`
	Cashed    int64 `json:"cashed"`
	Coins     int64 `json:"coins"`
}

// Snapshot is a point-in-time copy of a Recorder.
type Snapshot struct {
	Calls   map[Op]CallStats
	Depths  []DepthStats // indexed by depth; index 0 unused
	Total   int64
	Errors  int64
	Elapsed time.Duration
	RPS     float64
}

// Recorder accumulates statistics. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	start     time.Time
	now       func() time.Time
	calls     map[Op]*CallStats
	depths    [types.MaxDepth + 1]DepthStats
	collector *Collector
}

// NewRecorder creates a Recorder. The collector may be nil.
func NewRecorder(collector *Collector) *Recorder {
	r := &Recorder{
		now:       time.Now,
		calls:     make(map[Op]*CallStats, len(Ops)),
		collector: collector,
	}
	r.start = r.now()
	for _, op := range Ops {
		r.calls[op] = &CallStats{Errors: map[int]int64{}, Time: map[int]time.Duration{}}
	}
	return r
}

// Collector returns the Prometheus collector, or nil.
func (r *Recorder) Collector() *Collector {
	return r.collector
}

// Call records one remote call of kind op that ended with status after d.
func (r *Recorder) Call(op Op, status int, d time.Duration) {
	r.mu.Lock()
	cs, ok := r.calls[op]
	if !ok {
		cs = &CallStats{Errors: map[int]int64{}, Time: map[int]time.Duration{}}
		r.calls[op] = cs
	}
	cs.Time[status] += d
	if status == http.StatusOK {
		cs.Success++
	} else {
		cs.Errors[status]++
	}
	r.mu.Unlock()

	r.collector.observeCall(op, status, d)
}

// Dig records a dig attempt at depth that returned tokens treasures.
func (r *Recorder) Dig(depth int, tokens int, found bool) {
	if depth < types.MinDepth || depth > types.MaxDepth {
		return
	}
	r.mu.Lock()
	d := &r.depths[depth]
	d.Digs++
	if found {
		d.Treasures += int64(tokens)
	} else {
		d.NotFound++
	}
	r.mu.Unlock()

	r.collector.observeDig(depth, tokens, found)
}

// Cash records a successful redemption of a treasure found at depth.
func (r *Recorder) Cash(depth int, coins int) {
	if depth >= types.MinDepth && depth <= types.MaxDepth {
		r.mu.Lock()
		r.depths[depth].Cashed++
		r.depths[depth].Coins += int64(coins)
		r.mu.Unlock()
	}
	r.collector.observeCash(coins)
}

// Snapshot returns a copy of the current statistics.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Calls:   make(map[Op]CallStats, len(r.calls)),
		Depths:  make([]DepthStats, len(r.depths)),
		Elapsed: r.now().Sub(r.start),
	}
	copy(s.Depths, r.depths[:])
	for op, cs := range r.calls {
		s.Calls[op] = cs.clone()
		s.Total += cs.Success
		for _, n := range cs.Errors {
			s.Total += n
			s.Errors += n
		}
	}
	if secs := s.Elapsed.Seconds(); secs >= 1 {
		s.RPS = float64(s.Total) / secs
	}
	return s
}
