package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the admission registry.
type Metrics struct {
	Admissions         prometheus.Counter
	DuplicateRegisters prometheus.Counter
	CapacityRejections prometheus.Counter
	Members            prometheus.Gauge
	Capacity           prometheus.Gauge
	RegisterLatency    prometheus.Histogram
	StoreErrors        *prometheus.CounterVec
}

// New registers admission metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Admissions: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_admissions_total",
			Help: "Identities newly admitted to the whitelist",
		}),
		DuplicateRegisters: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_duplicate_registrations_total",
			Help: "Register calls from identities that were already members",
		}),
		CapacityRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_capacity_rejections_total",
			Help: "Register calls refused because the whitelist was full",
		}),
		Members: f.NewGauge(prometheus.GaugeOpts{
			Name: "whitelist_members",
			Help: "Current number of whitelisted identities",
		}),
		Capacity: f.NewGauge(prometheus.GaugeOpts{
			Name: "whitelist_capacity",
			Help: "Maximum number of whitelisted identities",
		}),
		RegisterLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whitelist_register_duration_seconds",
			Help:    "Latency of register calls including the store round trip",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_store_errors_total",
			Help: "Unexpected store failures by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementAdmissions() {
	m.Admissions.Inc()
}

func (m *Metrics) IncrementDuplicateRegisters() {
	m.DuplicateRegisters.Inc()
}

func (m *Metrics) IncrementCapacityRejections() {
	m.CapacityRejections.Inc()
}

func (m *Metrics) IncrementStoreErrors(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// SetRegistry publishes the registry size gauges.
func (m *Metrics) SetRegistry(count, capacity int) {
	m.Members.Set(float64(count))
	m.Capacity.Set(float64(capacity))
}

func (m *Metrics) ObserveRegisterLatency(seconds float64) {
	m.RegisterLatency.Observe(seconds)
}
