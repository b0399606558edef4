package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategoryCompliance covers events that change who is on the whitelist.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers refused or suspicious attempts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Action    string
	Subject   string // identity the action was about
	Reason    string
	RequestID string
	ClientIP  string
	UserAgent string
	Count     int // registry size after the action
	Capacity  int
}

type AuditEvent string

const (
	EventRegistryDeployed        AuditEvent = "registry_deployed"
	EventMemberAdmitted          AuditEvent = "member_admitted"
	EventMemberAlreadyRegistered AuditEvent = "member_already_registered"
	EventAdmissionRejected       AuditEvent = "admission_rejected"
	EventWrongNetwork            AuditEvent = "wrong_network"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistryDeployed: CategoryCompliance,
	EventMemberAdmitted:   CategoryCompliance,

	EventAdmissionRejected: CategorySecurity,
	EventWrongNetwork:      CategorySecurity,

	EventMemberAlreadyRegistered: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
