package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gamezone_pos"

var (
	once sync.Once

	backendRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of backend REST calls by endpoint and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of local API requests by route.",
		},
		[]string{"route"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created by payment method.",
		},
		[]string{"payment"},
	)

	bookingStopped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_stopped_total",
			Help:      "Count of stopped bookings by stop mode.",
		},
		[]string{"mode"},
	)

	extensionConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extension_confirmed_total",
			Help:      "Count of confirmed time extensions.",
		},
	)

	snacksConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snacks_confirmed_total",
			Help:      "Count of confirmed snack additions.",
		},
	)

	couponResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_applications_total",
			Help:      "Count of coupon applications by result.",
		},
		[]string{"result"},
	)

	lowTimeAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_low_time_total",
			Help:      "Count of low-time alerts fired by booking timers.",
		},
	)

	activeTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timers_active",
			Help:      "Number of mounted booking countdowns.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			backendRequests,
			httpRequests,
			bookingCreated,
			bookingStopped,
			extensionConfirmed,
			snacksConfirmed,
			couponResults,
			lowTimeAlerts,
			activeTimers,
		)
	})
}

func ObserveBackendRequest(endpoint, status string, d time.Duration) {
	backendRequests.WithLabelValues(endpoint, status).Observe(d.Seconds())
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func IncBookingCreated(payment string) {
	bookingCreated.WithLabelValues(payment).Inc()
}

func IncBookingStopped(mode string) {
	bookingStopped.WithLabelValues(mode).Inc()
}

func IncExtensionConfirmed() {
	extensionConfirmed.Inc()
}

func IncSnacksConfirmed() {
	snacksConfirmed.Inc()
}

func IncCoupon(result string) {
	couponResults.WithLabelValues(result).Inc()
}

func IncLowTime() {
	lowTimeAlerts.Inc()
}

func SetActiveTimers(n int) {
	activeTimers.Set(float64(n))
}
