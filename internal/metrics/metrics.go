// Package metrics holds the Prometheus collectors shared by the scheduler,
// evaluator and connectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "area"

var (
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Evaluation passes started.",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Wall time of one evaluation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	ActiveAreas = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_active_areas",
			Help:      "Active AREAs loaded by the last pass.",
		},
	)

	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "AREA evaluations by outcome.",
		},
		[]string{"outcome"},
	)

	ConnectorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_calls_total",
			Help:      "Trigger checks and effects by service and result.",
		},
		[]string{"service", "op", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_http_requests_total",
			Help:      "Outbound vendor API requests by service, method and result.",
		},
		[]string{"service", "method", "result"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access-token fetches by cache key and result.",
		},
		[]string{"key", "result"},
	)
)
