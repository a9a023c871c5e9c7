// Package store persists invitations, including the two capacity counters.
// Reservation is a conditional increment at the storage layer so two
// concurrent registrations can never both take the last slot.
package store

import (
	"context"
	"time"

	"fete/internal/invitation/models"
	id "fete/pkg/domain"
)

type Store interface {
	// Create inserts an invitation. A duplicate slug or order returns
	// sentinel.ErrConflict.
	Create(ctx context.Context, inv *models.Invitation) error

	FindByOrderID(ctx context.Context, orderID id.OrderID) (*models.Invitation, error)
	FindBySlug(ctx context.Context, slug string) (*models.Invitation, error)

	// Execute atomically loads, validates, mutates, and persists one
	// invitation, holding a lock across the whole unit.
	Execute(ctx context.Context, invitationID id.InvitationID, validate func(*models.Invitation) error, mutate func(*models.Invitation)) (*models.Invitation, error)

	// ReserveSlot increments the pool counter iff the invitation is active
	// and the pool has a free slot. Returns sentinel.ErrQuotaExhausted when
	// full and sentinel.ErrInvalidState when inactive. Check-then-increment
	// is one conditional write, never a read followed by a blind write.
	ReserveSlot(ctx context.Context, invitationID id.InvitationID, pool models.Pool, now time.Time) error

	// ExpireLapsed persists the lazy-expiry flip for every active invitation
	// whose window has passed. Idempotent; returns the number flipped.
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)
}
