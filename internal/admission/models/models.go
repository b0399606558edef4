// Package models holds the whitelist registry's domain types.
package models

import (
	"time"

	id "whitelist/pkg/domain"
	dErrors "whitelist/pkg/domain-errors"
)

// Registry is the singleton whitelist: a fixed capacity and the number of
// identities admitted so far. Count never exceeds Capacity and never decreases.
type Registry struct {
	Capacity  int
	Count     int
	CreatedAt time.Time
}

// Remaining returns how many slots are still open.
func (r Registry) Remaining() int {
	return max(r.Capacity-r.Count, 0)
}

// Full reports whether a new identity would be rejected.
func (r Registry) Full() bool {
	return r.Count >= r.Capacity
}

// Member is an admitted identity. Seq is its 1-based admission order.
type Member struct {
	Identity   id.Identity
	Seq        int
	AdmittedAt time.Time
}

// Admission is the outcome of a successful register call. Created is false when
// the identity was already a member; Count is the registry size afterwards.
type Admission struct {
	Member  Member
	Created bool
	Count   int
}

// Status is the registry as seen by one caller.
type Status struct {
	Capacity  int
	Count     int
	Remaining int
	Joined    bool
}

// NewStatus builds the caller view of reg.
func NewStatus(reg Registry, joined bool) Status {
	return Status{
		Capacity:  reg.Capacity,
		Count:     reg.Count,
		Remaining: reg.Remaining(),
		Joined:    joined,
	}
}

// ValidateCapacity rejects capacities the registry cannot be created with.
func ValidateCapacity(capacity int) error {
	if capacity <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "capacity must be a positive integer")
	}
	return nil
}
