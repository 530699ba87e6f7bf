package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservly",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservly",
			Name:      "reservations_created_total",
			Help:      "Successfully created reservations.",
		},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservly",
			Name:      "slot_conflicts_total",
			Help:      "Booking attempts rejected by the overlap check.",
		},
	)

	policyRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservly",
			Name:      "policy_rejections_total",
			Help:      "Booking requests rejected by policy, by reason.",
		},
		[]string{"reason"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservly",
			Name:      "sync_tasks_total",
			Help:      "Sync queue task outcomes.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			slotConflicts,
			policyRejections,
			syncTasks,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncReservationCreated counts a committed booking.
func IncReservationCreated() {
	reservationsCreated.Inc()
}

// IncSlotConflict counts a booking lost to the overlap check.
func IncSlotConflict() {
	slotConflicts.Inc()
}

// IncPolicyRejection counts a policy rejection by reason code.
func IncPolicyRejection(reason string) {
	policyRejections.WithLabelValues(reason).Inc()
}

// IncSyncTask counts a sync queue outcome: enqueued, succeeded, failed, dead.
func IncSyncTask(outcome string) {
	syncTasks.WithLabelValues(outcome).Inc()
}
