package stats

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector mirrors a Recorder into a per-instance Prometheus registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	digs         *prometheus.CounterVec
	treasures    *prometheus.CounterVec
	coins        prometheus.Counter
	queues       *prometheus.GaugeVec
	wallet       prometheus.Gauge
	licenses     prometheus.Gauge
}

// NewCollector creates a collector whose series carry the instance label.
func NewCollector(namespace, instance string) *Collector {
	if namespace == "" {
		namespace = "goldrush"
	}
	labels := prometheus.Labels{"instance": instance}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "remote",
			Name:        "calls_total",
			Help:        "Remote calls by operation and HTTP status (0 = no response).",
			ConstLabels: labels,
		},
		[]string{"op", "status"},
	)

	c.callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "remote",
			Name:        "call_duration_seconds",
			Help:        "Latency of remote calls.",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			ConstLabels: labels,
		},
		[]string{"op"},
	)

	c.digs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "dig",
			Name:        "attempts_total",
			Help:        "Dig attempts by depth and outcome.",
			ConstLabels: labels,
		},
		[]string{"depth", "outcome"},
	)

	c.treasures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "dig",
			Name:        "treasures_total",
			Help:        "Treasure tokens found by depth.",
			ConstLabels: labels,
		},
		[]string{"depth"},
	)

	c.coins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cash",
			Name:        "coins_total",
			Help:        "Coins credited to the wallet.",
			ConstLabels: labels,
		},
	)

	c.queues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "queue_length",
			Help:        "Pending work per pipeline queue.",
			ConstLabels: labels,
		},
		[]string{"queue"},
	)

	c.wallet = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "wallet",
			Name:        "balance",
			Help:        "Unspent coins in the wallet.",
			ConstLabels: labels,
		},
	)

	c.licenses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "ledger",
			Name:        "licenses_held",
			Help:        "Valid licenses currently held.",
			ConstLabels: labels,
		},
	)

	c.registry.MustRegister(
		c.calls,
		c.callDuration,
		c.digs,
		c.treasures,
		c.coins,
		c.queues,
		c.wallet,
		c.licenses,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the given registries on one HTTP handler.
func Handler(collectors ...*Collector) http.Handler {
	gatherers := make(prometheus.Gatherers, 0, len(collectors))
	for _, c := range collectors {
		if c != nil {
			gatherers = append(gatherers, c.registry)
		}
	}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// SetQueue sets the length gauge of a named pipeline queue.
func (c *Collector) SetQueue(queue string, n int) {
	if c == nil {
		return
	}
	c.queues.WithLabelValues(queue).Set(float64(n))
}

// SetWallet sets the wallet balance gauge.
func (c *Collector) SetWallet(balance int) {
	if c == nil {
		return
	}
	c.wallet.Set(float64(balance))
}

// SetLicenses sets the held license gauge.
func (c *Collector) SetLicenses(n int) {
	if c == nil {
		return
	}
	c.licenses.Set(float64(n))
}

func (c *Collector) observeCall(op Op, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.calls.WithLabelValues(string(op), strconv.Itoa(status)).Inc()
	c.callDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

func (c *Collector) observeDig(depth, tokens int, found bool) {
	if c == nil {
		return
	}
	label := strconv.Itoa(depth)
	outcome := "not_found"
	if found {
		outcome = "found"
		c.treasures.WithLabelValues(label).Add(float64(tokens))
	}
	c.digs.WithLabelValues(label, outcome).Inc()
}

func (c *Collector) observeCash(coins int) {
	if c == nil {
		return
	}
	c.coins.Add(float64(coins))
}
