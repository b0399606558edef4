package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store (e.g. registry not deployed)
// - ErrConflict: write contradicts stored state (e.g. capacity redefinition)
// - ErrCapacityReached: admission refused because the registry is full
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrCapacityReached = errors.New("capacity reached")
	ErrUnavailable     = errors.New("unavailable")
)
