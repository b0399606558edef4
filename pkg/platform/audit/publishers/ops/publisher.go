// Package ops delivers audit events to an external sink without letting sink
// trouble reach the request path.
package ops

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "whitelist/pkg/platform/audit"
)

// Publisher stamps events and forwards them to a Sink. Failures are logged and
// counted, never returned to the caller; a circuit breaker drops events while
// the sink is unhealthy.
type Publisher struct {
	sink    audit.Sink
	breaker *CircuitBreaker
	sampler *Sampler
	metrics *Metrics
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) { p.breaker = cb }
}

// WithSampler enables sampling of operations-category events.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) { p.sampler = s }
}

// WithTimeout bounds a single delivery attempt.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.timeout = d }
}

func NewPublisher(sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:    sink,
		breaker: NewCircuitBreaker(5, 30*time.Second),
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit delivers event. It always returns nil so audit delivery cannot fail an
// admission that has already been applied.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if event.Category == audit.CategoryOperations && p.sampler != nil && !p.sampler.Keep(event.Action) {
		if p.metrics != nil {
			p.metrics.IncSampled()
		}
		return nil
	}

	if !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncCircuitBreakerDropped()
		}
		return nil
	}

	// delivery must survive request cancellation
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.sink.Append(deliverCtx, event); err != nil {
		opened := p.breaker.RecordFailure()
		p.logger.WarnContext(ctx, "audit delivery failed",
			"error", err,
			"action", event.Action,
			"event_id", event.ID,
			"circuit_open", opened,
		)
		if p.metrics != nil {
			p.metrics.IncDeliveryFailures()
			p.metrics.SetCircuitBreakerState(opened)
		}
		return nil
	}

	p.breaker.RecordSuccess()
	if p.metrics != nil {
		p.metrics.IncPublished(string(event.Category))
		p.metrics.SetCircuitBreakerState(false)
	}
	return nil
}
