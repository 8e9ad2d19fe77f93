package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	capacityConflicts prometheus.Counter
	closuresTotal     prometheus.Counter
	autoRejectedTotal prometheus.Counter
	resolveLatency    prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking requests by outcome (accepted or rejection reason)",
		}, []string{"outcome"}),
		capacityConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "capacity_conflicts_total",
			Help:      "Bookings that lost the per-date capacity race",
		}),
		closuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "closures_total",
			Help:      "Closure cascades executed",
		}),
		autoRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "closure_auto_rejected_total",
			Help:      "Appointments auto-rejected by closure cascades",
		}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "resolve_latency_seconds",
			Help:      "Latency of per-date availability resolution",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.capacityConflicts, m.closuresTotal, m.autoRejectedTotal, m.resolveLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCapacityConflict() {
	if m == nil {
		return
	}
	m.capacityConflicts.Inc()
}

func (m *BookingMetrics) ObserveClosure(autoRejected int) {
	if m == nil {
		return
	}
	m.closuresTotal.Inc()
	m.autoRejectedTotal.Add(float64(autoRejected))
}

func (m *BookingMetrics) ObserveResolveLatency(seconds float64) {
	if m == nil {
		return
	}
	m.resolveLatency.Observe(seconds)
}
