package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"feedback-sync/internal/shared/eventbus"
	"feedback-sync/internal/shared/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedback_sync"

// Metrics holds the client core collectors. One instance per registry.
type Metrics struct {
	SnapshotsPublished prometheus.Counter
	RecordsDropped     *prometheus.CounterVec
	SubscriptionEvents *prometheus.CounterVec
	Submissions        *prometheus.CounterVec
	AuthAttempts       *prometheus.CounterVec
	SnapshotSize       prometheus.Gauge
	RemoteCallDuration *prometheus.HistogramVec
	RemoteCallTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Snapshots published to live query consumers",
		}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Documents dropped while applying delta batches",
		}, []string{"reason"}),
		SubscriptionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_events_total",
			Help:      "Live subscription lifecycle events",
		}, []string{"event"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Feedback submissions by outcome",
		}, []string{"outcome"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Authentication events by outcome",
		}, []string{"outcome"}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_records",
			Help:      "Records in the most recently published snapshot",
		}),
		RemoteCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Duration of calls to the remote store",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		RemoteCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_call_total",
			Help:      "Calls to the remote store",
		}, []string{"operation", "status"}),
	}

	registerer.MustRegister(
		m.SnapshotsPublished,
		m.RecordsDropped,
		m.SubscriptionEvents,
		m.Submissions,
		m.AuthAttempts,
		m.SnapshotSize,
		m.RemoteCallDuration,
		m.RemoteCallTotal,
	)
	return m
}

// Observe feeds the collectors from bus events. The returned function
// detaches every handler.
func (m *Metrics) Observe(bus eventbus.Bus) func() {
	count := func(c prometheus.Counter) eventbus.Handler {
		return func(ctx context.Context, event eventbus.Event) error {
			c.Inc()
			return nil
		}
	}

	unsubs := []func(){
		bus.Subscribe(eventbus.EventTypeSnapshotPublished, func(ctx context.Context, event eventbus.Event) error {
			m.SnapshotsPublished.Inc()
			if p, ok := event.Data().(eventbus.SnapshotPayload); ok {
				m.SnapshotSize.Set(float64(p.Size))
			}
			return nil
		}),
		bus.Subscribe(eventbus.EventTypeRecordDropped, func(ctx context.Context, event eventbus.Event) error {
			reason := "unknown"
			if p, ok := event.Data().(eventbus.RecordDroppedPayload); ok && p.Reason != "" {
				reason = p.Reason
			}
			m.RecordsDropped.WithLabelValues(reason).Inc()
			return nil
		}),
		bus.Subscribe(eventbus.EventTypeSubscriptionOpened, count(m.SubscriptionEvents.WithLabelValues("opened"))),
		bus.Subscribe(eventbus.EventTypeSubscriptionClosed, count(m.SubscriptionEvents.WithLabelValues("closed"))),
		bus.Subscribe(eventbus.EventTypeSubscriptionDegraded, count(m.SubscriptionEvents.WithLabelValues("degraded"))),
		bus.Subscribe(eventbus.EventTypeSubmissionStarted, count(m.Submissions.WithLabelValues("started"))),
		bus.Subscribe(eventbus.EventTypeSubmissionSucceeded, count(m.Submissions.WithLabelValues("succeeded"))),
		bus.Subscribe(eventbus.EventTypeSubmissionFailed, count(m.Submissions.WithLabelValues("failed"))),
		bus.Subscribe(eventbus.EventTypeAuthStarted, count(m.AuthAttempts.WithLabelValues("started"))),
		bus.Subscribe(eventbus.EventTypeAuthFailed, count(m.AuthAttempts.WithLabelValues("failed"))),
		bus.Subscribe(eventbus.EventTypeAuthRegistered, count(m.AuthAttempts.WithLabelValues("registered"))),
		bus.Subscribe(eventbus.EventTypeSessionSignedOut, count(m.AuthAttempts.WithLabelValues("signed_out"))),
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// ObserveRemoteCall records the duration and status of a remote store call.
// Safe on a nil receiver.
func (m *Metrics) ObserveRemoteCall(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RemoteCallDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	m.RemoteCallTotal.WithLabelValues(operation, status).Inc()
}

// StartServer serves /metrics for gatherer on addr until ctx is done.
func StartServer(ctx context.Context, log logger.Logger, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics: graceful shutdown failed: %v", err)
		}
	}()

	go func() {
		log.Infof("metrics: server started on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics: server stopped: %v", err)
		}
	}()
}
