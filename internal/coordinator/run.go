package coordinator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/goldrush/internal/config"
	"github.com/mesh-intelligence/goldrush/internal/stats"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// Run runs the instance named by cfg.InstanceID.
func Run(ctx context.Context, cfg config.Config, opts Options) (Summary, error) {
	in, err := NewInstance(cfg.InstanceID, cfg, opts)
	if err != nil {
		return Summary{}, err
	}
	stop, err := serveMetrics(cfg.MetricsAddr, logOf(opts), in.Collector())
	if err != nil {
		return Summary{}, err
	}
	defer stop()
	return in.Run(ctx)
}

// RunAll runs every partition's instance in parallel and returns their
// summaries in partition order. Errors from all instances are joined.
func RunAll(ctx context.Context, cfg config.Config, opts Options) ([]Summary, error) {
	n := cfg.Instances()
	instances := make([]*Instance, n)
	collectors := make([]*stats.Collector, n)
	for id := range instances {
		in, err := NewInstance(id, cfg, opts)
		if err != nil {
			for _, prev := range instances[:id] {
				prev.journal.Close()
			}
			return nil, err
		}
		instances[id] = in
		collectors[id] = in.Collector()
	}

	stop, err := serveMetrics(cfg.MetricsAddr, logOf(opts), collectors...)
	if err != nil {
		for _, in := range instances {
			in.journal.Close()
		}
		return nil, err
	}
	defer stop()

	summaries := make([]Summary, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, in := range instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summaries[i], errs[i] = in.Run(ctx)
		}()
	}
	wg.Wait()
	return summaries, errors.Join(errs...)
}

func logOf(opts Options) logrus.FieldLogger {
	if opts.Log == nil {
		return logrus.StandardLogger()
	}
	return opts.Log
}

// serveMetrics exposes the collectors at addr/metrics until the returned
// stop func is called. An empty addr serves nothing.
func serveMetrics(addr string, log logrus.FieldLogger, collectors ...*stats.Collector) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", stats.Handler(collectors...))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
