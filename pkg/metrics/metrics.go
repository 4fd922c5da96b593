package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsCreated counts hospital alerts by urgency (critical|urgent|normal).
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_alerts_created_total",
			Help: "Total number of blood alerts created",
		},
		[]string{"urgency"},
	)

	// ResponsesRecorded counts donor lifecycle actions (interested|accept|reject|hold|complete|unavailable).
	ResponsesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_donor_responses_total",
			Help: "Total number of donor response transitions",
		},
		[]string{"action"},
	)

	// Escalations counts alerts escalated after an exhausted replacement search.
	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifelink_alert_escalations_total",
			Help: "Total number of alerts escalated for manual intervention",
		},
	)

	// ActiveAlerts tracks alerts currently in an open status.
	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifelink_active_alerts",
			Help: "Number of alerts accepting donor responses",
		},
	)

	// RankingDuration measures full ranking passes over the eligible donor pool.
	RankingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifelink_ranking_duration_seconds",
			Help:    "Duration of donor ranking passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifelink_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
