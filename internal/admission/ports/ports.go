// Package ports declares what the admission service needs from the outside.
package ports

import (
	"context"
	"log/slog"
	"time"

	"whitelist/internal/admission/models"
	"whitelist/pkg/attrs"
	id "whitelist/pkg/domain"
	audit "whitelist/pkg/platform/audit"
	"whitelist/pkg/requestcontext"
)

// Store persists the registry. Implementations return sentinel errors:
// ErrNotFound before Init, ErrConflict when Init is asked to change capacity,
// ErrCapacityReached when Admit finds no free slot.
//
// Admit is the single serialization point: the membership check, the capacity
// check and the insert happen atomically, so concurrent callers can never push
// the member count past capacity.
type Store interface {
	// Init creates the registry once and reports whether this call created it.
	// Re-initialising with the same capacity is a no-op.
	Init(ctx context.Context, capacity int, now time.Time) (reg models.Registry, created bool, err error)
	Registry(ctx context.Context) (models.Registry, error)
	Admit(ctx context.Context, identity id.Identity, now time.Time) (models.Admission, error)
	IsMember(ctx context.Context, identity id.Identity) (bool, error)
	Count(ctx context.Context) (int, error)
	// Members reports membership for each identity; absent identities map to false.
	Members(ctx context.Context, identities []id.Identity) (map[id.Identity]bool, error)
}

// AuditPublisher receives audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit line and forwards it to publisher when one is
// configured. Recognised attrs: identity, reason, count, capacity.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}

	args := append(attrList, "event", string(event), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	_ = publisher.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		Action:    string(event),
		Subject:   attrs.ExtractString(attrList, "identity"),
		Reason:    attrs.ExtractString(attrList, "reason"),
		RequestID: requestID,
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Count:     attrs.ExtractInt(attrList, "count"),
		Capacity:  attrs.ExtractInt(attrList, "capacity"),
	})
}
