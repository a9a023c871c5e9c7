package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: uniqueness constraint hit (slug, order number, fingerprint)
// - ErrExpired: entity past its validity window
// - ErrInvalidState: entity in wrong state for requested transition
// - ErrQuotaExhausted: capacity pool has no remaining slots
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrExpired        = errors.New("expired")
	ErrInvalidState   = errors.New("invalid state")
	ErrQuotaExhausted = errors.New("quota exhausted")
)
