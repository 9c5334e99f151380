package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/questdeck/questdeck/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ItemsProcessed    *prometheus.CounterVec
	ItemsFailed       *prometheus.CounterVec
	ProcessingLatency *prometheus.HistogramVec
	QueueDepth        *prometheus.GaugeVec
	ApprovalDecisions *prometheus.CounterVec
	ApprovalsPending  prometheus.Gauge
	ApprovalsExpired  prometheus.Counter
	ActiveSessions    prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_processed_total",
			Help: "Total number of queue items processed successfully.",
		}, []string{"topic"}),

		ItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_failed_total",
			Help: "Total number of queue items marked failed.",
		}, []string{"topic"}),

		ProcessingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queue_item_processing_seconds",
			Help:    "Processing latency from dequeue to completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of waiting items per topic.",
		}, []string{"topic"}),

		ApprovalDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Total number of DM decisions by kind.",
		}, []string{"kind"}),

		ApprovalsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "approvals_pending",
			Help: "Current number of items awaiting a DM decision.",
		}),

		ApprovalsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvals_expired_total",
			Help: "Total number of pending approvals dropped as stale.",
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of active play sessions.",
		}),
	}

	reg.MustRegister(
		m.ItemsProcessed,
		m.ItemsFailed,
		m.ProcessingLatency,
		m.QueueDepth,
		m.ApprovalDecisions,
		m.ApprovalsPending,
		m.ApprovalsExpired,
		m.ActiveSessions,
	)

	return m
}

// WorkerHooks returns the metric callbacks expected by the worker package.
// Centralises the prometheus observation calls so workers stay metrics-agnostic.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnProcessed: func(topic string, latency time.Duration) {
			m.ItemsProcessed.WithLabelValues(topic).Inc()
			m.ProcessingLatency.WithLabelValues(topic).Observe(latency.Seconds())
		},
		OnFailed: func(topic string) {
			m.ItemsFailed.WithLabelValues(topic).Inc()
		},
	}
}

// GaugeHooks returns the gauge callbacks refreshed by the maintenance sweep.
func (m *Metrics) GaugeHooks() worker.GaugeHooks {
	return worker.GaugeHooks{
		OnQueueDepth: func(topic string, depth int) {
			m.QueueDepth.WithLabelValues(topic).Set(float64(depth))
		},
		OnApprovalsPending: func(n int) {
			m.ApprovalsPending.Set(float64(n))
		},
		OnActiveSessions: func(n int) {
			m.ActiveSessions.Set(float64(n))
		},
	}
}

// DecisionHook returns the callback observed on every DM decision.
func (m *Metrics) DecisionHook() func(kind string) {
	return func(kind string) {
		m.ApprovalDecisions.WithLabelValues(kind).Inc()
	}
}

// ExpiryHook returns the callback observed when stale approvals are dropped.
func (m *Metrics) ExpiryHook() func(n int) {
	return func(n int) {
		m.ApprovalsExpired.Add(float64(n))
	}
}
