// Package telemetry exports benchmark progress as Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stormycloud/shabench/internal/stats"
)

const namespace = "shabench"

// Metrics implements bench.Observer and bench.Reporter. Each instance owns
// its registry so several runs can coexist in one process.
type Metrics struct {
	registry   *prometheus.Registry
	iterations prometheus.Counter
	hashes     prometheus.Counter
	latency    prometheus.Histogram
	retries    prometheus.Counter
	resets     prometheus.Counter
	rate       prometheus.Gauge
}

// New registers the benchmark metrics for one backend.
func New(backendName string) *Metrics {
	labels := prometheus.Labels{"backend": backendName}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "iterations_total",
			Help:        "Completed and validated benchmark iterations.",
			ConstLabels: labels,
		}),
		hashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "hashes_total",
			Help:        "SHA-256 digests computed in validated iterations.",
			ConstLabels: labels,
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "dispatch_seconds",
			Help:        "Compute time of one batch dispatch.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-5, 4, 12),
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "dispatch_retries_total",
			Help:        "Transient dispatch failures that were retried.",
			ConstLabels: labels,
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "session_resets_total",
			Help:        "Device sessions rebuilt after a failure.",
			ConstLabels: labels,
		}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "hash_rate",
			Help:        "Cumulative hashes per second at the last report.",
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(m.iterations, m.hashes, m.latency, m.retries, m.resets, m.rate)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Iteration records one validated dispatch.
func (m *Metrics) Iteration(hashes int, elapsed time.Duration) {
	m.iterations.Inc()
	m.hashes.Add(float64(hashes))
	m.latency.Observe(elapsed.Seconds())
}

// Retry records a retried dispatch failure.
func (m *Metrics) Retry(error) { m.retries.Inc() }

// Reset records a session rebuild.
func (m *Metrics) Reset() { m.resets.Inc() }

// Report updates the rate gauge.
func (m *Metrics) Report(_ string, s stats.Snapshot) { m.rate.Set(s.Rate) }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Serving metrics on http://%s/metrics", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
