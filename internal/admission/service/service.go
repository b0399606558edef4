// Package service implements the whitelist registry: a capacity-bounded,
// append-only set of identities.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"whitelist/internal/admission/metrics"
	"whitelist/internal/admission/models"
	"whitelist/internal/admission/ports"
	id "whitelist/pkg/domain"
	dErrors "whitelist/pkg/domain-errors"
	audit "whitelist/pkg/platform/audit"
	"whitelist/pkg/platform/sentinel"
	"whitelist/pkg/requestcontext"
)

// MaxLookupBatch bounds a single Membership call.
const MaxLookupBatch = 100

const tracerName = "whitelist/internal/admission/service"

// Service is the admission registry. It trusts the caller identity it is
// handed; authenticating that identity is the session layer's job.
type Service struct {
	store          ports.Store
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(store ports.Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Deploy creates the registry with capacity. Calling it again with the same
// capacity is a no-op; a different capacity is a conflict because capacity is
// fixed at creation.
func (s *Service) Deploy(ctx context.Context, capacity int) (models.Registry, error) {
	ctx, span := s.tracer.Start(ctx, "admission.Deploy", trace.WithAttributes(
		attribute.Int("whitelist.capacity", capacity),
	))
	defer span.End()

	if err := models.ValidateCapacity(capacity); err != nil {
		return models.Registry{}, s.fail(span, err)
	}

	now := requestcontext.Now(ctx)
	reg, created, err := s.store.Init(ctx, capacity, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return reg, s.fail(span, dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("whitelist already deployed with capacity %d", reg.Capacity)))
		}
		return models.Registry{}, s.fail(span, s.storeErr("init", err, "failed to deploy whitelist"))
	}

	if s.metrics != nil {
		s.metrics.SetRegistry(reg.Count, reg.Capacity)
	}
	if created {
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRegistryDeployed,
			"capacity", reg.Capacity,
		)
	} else {
		s.logger.InfoContext(ctx, "whitelist already deployed",
			"capacity", reg.Capacity,
			"count", reg.Count,
			"created_at", reg.CreatedAt,
		)
	}
	return reg, nil
}

// Register admits caller. Registering an existing member succeeds without
// consuming a slot; a new identity is refused with capacity_exceeded once the
// registry is full.
func (s *Service) Register(ctx context.Context, caller id.Identity) (models.Admission, error) {
	ctx, span := s.tracer.Start(ctx, "admission.Register")
	defer span.End()
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveRegisterLatency(time.Since(start).Seconds())
		}
	}()

	if caller.IsNil() {
		return models.Admission{}, s.fail(span, dErrors.New(dErrors.CodeUnauthorized, "a connected identity is required"))
	}
	span.SetAttributes(attribute.String("whitelist.identity", caller.String()))

	adm, err := s.store.Admit(ctx, caller, requestcontext.Now(ctx))
	if err != nil {
		return models.Admission{}, s.fail(span, s.registerErr(ctx, caller, err))
	}

	span.SetAttributes(
		attribute.Bool("whitelist.created", adm.Created),
		attribute.Int("whitelist.count", adm.Count),
	)
	if !adm.Created {
		if s.metrics != nil {
			s.metrics.IncrementDuplicateRegisters()
		}
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventMemberAlreadyRegistered,
			"identity", caller,
			"seq", adm.Member.Seq,
			"count", adm.Count,
		)
		return adm, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementAdmissions()
		s.metrics.Members.Set(float64(adm.Count))
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventMemberAdmitted,
		"identity", caller,
		"seq", adm.Member.Seq,
		"count", adm.Count,
	)
	return adm, nil
}

func (s *Service) registerErr(ctx context.Context, caller id.Identity, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrCapacityReached):
		if s.metrics != nil {
			s.metrics.IncrementCapacityRejections()
		}
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventAdmissionRejected,
			"identity", caller,
			"reason", string(dErrors.CodeCapacityExceeded),
		)
		return dErrors.New(dErrors.CodeCapacityExceeded, "more addresses can't be added, limit reached")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "whitelist has not been deployed")
	default:
		return s.storeErr("admit", err, "failed to register")
	}
}

// IsMember reports whether identity has been admitted.
func (s *Service) IsMember(ctx context.Context, identity id.Identity) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "admission.IsMember")
	defer span.End()

	if identity.IsNil() {
		return false, s.fail(span, dErrors.New(dErrors.CodeInvalidInput, "identity is required"))
	}
	span.SetAttributes(attribute.String("whitelist.identity", identity.String()))

	ok, err := s.store.IsMember(ctx, identity)
	if err != nil {
		return false, s.fail(span, s.storeErr("is_member", err, "failed to check membership"))
	}
	return ok, nil
}

// Count returns the number of admitted identities.
func (s *Service) Count(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "admission.Count")
	defer span.End()

	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, s.fail(span, s.readErr("count", err))
	}
	return n, nil
}

// Registry returns capacity and size.
func (s *Service) Registry(ctx context.Context) (models.Registry, error) {
	ctx, span := s.tracer.Start(ctx, "admission.Registry")
	defer span.End()

	reg, err := s.store.Registry(ctx)
	if err != nil {
		return models.Registry{}, s.fail(span, s.readErr("registry", err))
	}
	return reg, nil
}

// Status is the registry as seen by caller. An empty caller yields Joined=false.
func (s *Service) Status(ctx context.Context, caller id.Identity) (models.Status, error) {
	ctx, span := s.tracer.Start(ctx, "admission.Status")
	defer span.End()

	reg, err := s.store.Registry(ctx)
	if err != nil {
		return models.Status{}, s.fail(span, s.readErr("registry", err))
	}
	if caller.IsNil() {
		return models.NewStatus(reg, false), nil
	}

	joined, err := s.store.IsMember(ctx, caller)
	if err != nil {
		return models.Status{}, s.fail(span, s.storeErr("is_member", err, "failed to check membership"))
	}
	return models.NewStatus(reg, joined), nil
}

// Membership checks several identities at once. Duplicates collapse; at most
// MaxLookupBatch distinct identities are accepted.
func (s *Service) Membership(ctx context.Context, identities []id.Identity) (map[id.Identity]bool, error) {
	ctx, span := s.tracer.Start(ctx, "admission.Membership")
	defer span.End()

	unique := dedupe(identities)
	span.SetAttributes(attribute.Int("whitelist.batch_size", len(unique)))
	if len(unique) > MaxLookupBatch {
		return nil, s.fail(span, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("at most %d identities per lookup", MaxLookupBatch)))
	}
	if len(unique) == 0 {
		return map[id.Identity]bool{}, nil
	}

	out, err := s.store.Members(ctx, unique)
	if err != nil {
		return nil, s.fail(span, s.storeErr("members", err, "failed to check membership"))
	}
	return out, nil
}

func dedupe(identities []id.Identity) []id.Identity {
	seen := make(map[id.Identity]struct{}, len(identities))
	out := make([]id.Identity, 0, len(identities))
	for _, identity := range identities {
		if identity.IsNil() {
			continue
		}
		if _, ok := seen[identity]; ok {
			continue
		}
		seen[identity] = struct{}{}
		out = append(out, identity)
	}
	return out
}

func (s *Service) readErr(operation string, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "whitelist has not been deployed")
	}
	return s.storeErr(operation, err, "failed to read whitelist")
}

func (s *Service) storeErr(operation string, err error, msg string) error {
	if s.metrics != nil {
		s.metrics.IncrementStoreErrors(operation)
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "whitelist store unavailable")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
