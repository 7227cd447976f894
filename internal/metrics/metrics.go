package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	notificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyaltypulse_notifications_dispatched_total",
			Help: "Total dispatch attempts by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	tierTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyaltypulse_tier_transitions_total",
			Help: "Detected tier transitions by direction",
		},
		[]string{"direction"},
	)

	batchPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loyaltypulse_batch_pass_duration_seconds",
			Help:    "Duration of each daily batch pass",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"pass"},
	)

	customersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyaltypulse_customers_processed_total",
			Help: "Customers iterated per batch pass",
		},
		[]string{"pass"},
	)

	dedupSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyaltypulse_dedup_skips_total",
			Help: "Dispatches skipped because the (customer, event, date) slot was already claimed",
		},
	)

	throttleRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyaltypulse_throttle_rejections_total",
			Help: "Sends rejected by the outbound rate limiter",
		},
	)

	membershipSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyaltypulse_membership_syncs_total",
			Help: "Membership provider calls by operation and result",
		},
		[]string{"operation", "result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDispatch records one dispatch attempt outcome.
func RecordDispatch(eventType, outcome string) {
	notificationsDispatched.WithLabelValues(eventType, outcome).Inc()
}

// RecordTierTransition records a detected tier transition.
func RecordTierTransition(direction string) {
	tierTransitions.WithLabelValues(direction).Inc()
}

// RecordPassDuration records how long a batch pass took.
func RecordPassDuration(pass string, d time.Duration) {
	batchPassDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// RecordCustomerProcessed counts one customer iterated in a pass.
func RecordCustomerProcessed(pass string) {
	customersProcessed.WithLabelValues(pass).Inc()
}

// RecordDedupSkip records a dispatch skipped by the dedup guard.
func RecordDedupSkip() {
	dedupSkips.Inc()
}

// RecordThrottleRejection records a send rejected by the rate limiter.
func RecordThrottleRejection() {
	throttleRejections.Inc()
}

// RecordMembershipSync records a membership provider call.
func RecordMembershipSync(operation, result string) {
	membershipSyncs.WithLabelValues(operation, result).Inc()
}
