package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptforge_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptforge_quota_reservations_total",
			Help: "Quota reservation outcomes (admitted, quota_denied, retry_denied).",
		},
		[]string{"outcome"},
	)

	QuotaRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptforge_quota_rollbacks_total",
			Help: "Total number of refunded reservations.",
		},
	)

	VersionsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptforge_versions_saved_total",
			Help: "Total number of versions saved, by type.",
		},
		[]string{"type"},
	)

	VersionsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptforge_versions_evicted_total",
			Help: "Total number of versions dropped by the retention cap.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaReservationsTotal,
		QuotaRollbacksTotal,
		VersionsSavedTotal,
		VersionsEvictedTotal,
	)
}
