package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking and notification flows.
type BookingMetrics struct {
	decisionsTotal      *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	sweepTotal          *prometheus.CounterVec
	paymentsTotal       *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "decisions_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notifier invocations by result",
		}, []string{"notifier", "event_type", "status"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "query_seconds",
			Help:      "Latency of availability queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		sweepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "worker",
			Name:      "sweep_items_total",
			Help:      "Items processed by background sweeps",
		}, []string{"sweep", "status"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "payments",
			Name:      "transitions_total",
			Help:      "Payment status transitions",
		}, []string{"provider", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisionsTotal, m.notificationsTotal, m.availabilityLatency, m.sweepTotal, m.paymentsTotal)
	return m
}

func (m *BookingMetrics) ObserveDecision(operation, outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveNotification(notifier, eventType, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(notifier, eventType, status).Inc()
}

func (m *BookingMetrics) ObserveAvailability(query string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLatency.WithLabelValues(query).Observe(seconds)
}

func (m *BookingMetrics) ObserveSweep(sweep, status string) {
	if m == nil {
		return
	}
	m.sweepTotal.WithLabelValues(sweep, status).Inc()
}

func (m *BookingMetrics) ObservePayment(provider, status string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(provider, status).Inc()
}
