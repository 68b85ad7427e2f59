package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "stabilizer"

// DefaultPath is where metrics are served.
const DefaultPath = "/metrics"

// Registry holds the exported metrics.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates a registry with Go runtime and process metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg}
}

// Counter registers a counter read from fn on every scrape.
func (r *Registry) Counter(subsystem, name, help string, fn func() float64) error {
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
	if err := r.reg.Register(c); err != nil {
		return fmt.Errorf("register %s_%s: %w", subsystem, name, err)
	}
	return nil
}

// Gauge registers a gauge read from fn on every scrape.
func (r *Registry) Gauge(subsystem, name, help string, fn func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
	if err := r.reg.Register(g); err != nil {
		return fmt.Errorf("register %s_%s: %w", subsystem, name, err)
	}
	return nil
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the HTTP handler serving the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve serves metrics and a health endpoint on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, r.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
