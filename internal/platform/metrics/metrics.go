package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the status engine.
type Metrics struct {
	Recalculations    *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	Overrides         prometheus.Counter
	OverridesCleared  prometheus.Counter
	ReceiptsConfirmed prometheus.Counter
	ReconcileRuns     *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	HTTPLatency       *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Recalculations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdesk_status_recalculations_total",
			Help: "Status recalculations by trigger classification and outcome.",
		}, []string{"trigger", "outcome"}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdesk_status_transitions_total",
			Help: "Actual status transitions by previous and new status.",
		}, []string{"from", "to"}),
		Overrides: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_status_overrides_total",
			Help: "Manual status overrides applied.",
		}),
		OverridesCleared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_status_overrides_cleared_total",
			Help: "Manual status overrides cleared.",
		}),
		ReceiptsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_warehouse_receipts_confirmed_total",
			Help: "Warehouse receipt confirmations recorded.",
		}),
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdesk_reconcile_shipments_total",
			Help: "Shipments handled by the reconcile job, by result.",
		}, []string{"result"}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "freightdesk_reconcile_duration_seconds",
			Help:    "Wall-clock duration of one reconcile batch.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "freightdesk_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveReconcile records one finished batch.
func (m *Metrics) ObserveReconcile(processed, updated, failed int, elapsed time.Duration) {
	m.ReconcileRuns.WithLabelValues("processed").Add(float64(processed))
	m.ReconcileRuns.WithLabelValues("updated").Add(float64(updated))
	m.ReconcileRuns.WithLabelValues("errors").Add(float64(failed))
	m.ReconcileDuration.Observe(elapsed.Seconds())
}
