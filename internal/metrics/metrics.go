// Package metrics exposes Prometheus counters for the ingest, digest and reminder paths.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-digest/internal/ingest"
)

type Metrics struct {
	registry  *prometheus.Registry
	messages  *prometheus.CounterVec
	digests   *prometheus.CounterVec
	reminders prometheus.Counter
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatdigest_messages_total",
			Help: "Incoming chat messages by ingest outcome.",
		}, []string{"outcome"}),
		digests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatdigest_digests_total",
			Help: "Digest attempts by result.",
		}, []string{"result"}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatdigest_reminders_scheduled_total",
			Help: "Reminders accepted for delivery.",
		}),
	}
	m.registry.MustRegister(m.messages, m.digests, m.reminders)
	return m
}

// Observe implements ingest.Counter.
func (m *Metrics) Observe(o ingest.Outcome) {
	m.messages.WithLabelValues(o.String()).Inc()
}

// DigestResult counts one digest attempt labelled by its result name.
func (m *Metrics) DigestResult(result string) {
	m.digests.WithLabelValues(result).Inc()
}

func (m *Metrics) ReminderScheduled() {
	m.reminders.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("📈 Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("❌ metrics server failed: %v", err)
	}
}
