package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "consultation_booking"

var (
	once sync.Once

	holdAcquire = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_acquire_total",
			Help:      "Hold acquisition attempts by result.",
		},
		[]string{"result"},
	)

	holdRelease = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_release_total",
			Help:      "Hold releases by reason.",
		},
		[]string{"reason"},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transition_total",
			Help:      "Booking status transitions by target status.",
		},
		[]string{"status"},
	)

	paymentCallback = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Payment gateway callbacks by event kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	orphanPayment = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_payment_total",
			Help:      "Successful payments that could not confirm their booking.",
		},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Sweeper runs by result.",
		},
		[]string{"result"},
	)

	sweepItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Rows changed by the sweeper by action.",
		},
		[]string{"action"},
	)

	notification = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_total",
			Help:      "Confirmation notifications by audience and result.",
		},
		[]string{"audience", "result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(holdAcquire, holdRelease, bookingTransition, paymentCallback,
			orphanPayment, sweepRuns, sweepItems, notification)
	})
}

func IncHoldAcquire(result string) {
	holdAcquire.WithLabelValues(result).Inc()
}

func IncHoldRelease(reason string) {
	holdRelease.WithLabelValues(reason).Inc()
}

func IncBookingTransition(status string) {
	bookingTransition.WithLabelValues(status).Inc()
}

func IncPaymentCallback(kind, outcome string) {
	paymentCallback.WithLabelValues(kind, outcome).Inc()
}

func IncOrphanPayment() {
	orphanPayment.Inc()
}

func IncSweepRun(result string) {
	sweepRuns.WithLabelValues(result).Inc()
}

func AddSweepItems(action string, n int64) {
	if n > 0 {
		sweepItems.WithLabelValues(action).Add(float64(n))
	}
}

func IncNotification(audience, result string) {
	notification.WithLabelValues(audience, result).Inc()
}
