package stats

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Gauges reports the current length of each named pipeline queue.
type Gauges func() map[string]int

// Reporter logs a Recorder snapshot on a timer, together with queue lengths,
// and pushes the lengths into the recorder's collector.
type Reporter struct {
	rec      *Recorder
	gauges   Gauges
	log      logrus.FieldLogger
	interval time.Duration
}

// NewReporter creates a Reporter. A nil gauges func reports no queues.
func NewReporter(rec *Recorder, gauges Gauges, log logrus.FieldLogger, interval time.Duration) *Reporter {
	if gauges == nil {
		gauges = func() map[string]int { return nil }
	}
	return &Reporter{rec: rec, gauges: gauges, log: log, interval: interval}
}

// Run reports every interval until ctx is done, then reports once more.
// A non-positive interval disables periodic reports.
func (r *Reporter) Run(ctx context.Context) {
	defer r.Report()
	if r.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs one snapshot.
func (r *Reporter) Report() {
	snap := r.rec.Snapshot()
	queues := r.gauges()
	for name, n := range queues {
		r.rec.Collector().SetQueue(name, n)
	}

	fields := logrus.Fields{
		"total":  snap.Total,
		"errors": snap.Errors,
		"rps":    int(snap.RPS),
	}
	for name, n := range queues {
		fields["q_"+name] = n
	}
	for _, op := range Ops {
		cs := snap.Calls[op]
		if cs.Success == 0 && len(cs.Errors) == 0 {
			continue
		}
		fields[string(op)] = cs
	}

	var digs, treasures, coins int64
	for _, d := range snap.Depths {
		digs += d.Digs
		treasures += d.Treasures
		coins += d.Coins
	}
	fields["digs"] = digs
	fields["treasures"] = treasures
	fields["coins"] = coins

	r.log.WithFields(fields).Info("client stats")
}
