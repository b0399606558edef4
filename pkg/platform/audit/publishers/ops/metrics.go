package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit delivery.
type Metrics struct {
	Published             *prometheus.CounterVec
	Sampled               prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	DeliveryFailures      prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers audit delivery metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_audit_published_total",
			Help: "Total number of audit events delivered to the sink, by category",
		}, []string{"category"}),
		Sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_audit_sampled_total",
			Help: "Total number of operational audit events dropped by sampling",
		}),
		CircuitBreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_audit_circuit_breaker_dropped_total",
			Help: "Total number of audit events dropped while the circuit breaker was open",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_audit_delivery_failures_total",
			Help: "Total number of failed audit deliveries",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "whitelist_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncPublished(category string) {
	m.Published.WithLabelValues(category).Inc()
}

func (m *Metrics) IncSampled() {
	m.Sampled.Inc()
}

func (m *Metrics) IncCircuitBreakerDropped() {
	m.CircuitBreakerDropped.Inc()
}

func (m *Metrics) IncDeliveryFailures() {
	m.DeliveryFailures.Inc()
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
