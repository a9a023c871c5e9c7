// Package store persists guests. The composite unique index on
// (invitation_id, device_fingerprint) is the anti-fraud guarantee and lives
// at the storage layer: two concurrent requests racing past the duplicate
// check still cannot both insert.
package store

import (
	"context"
	"time"

	"fete/internal/guest/models"
	id "fete/pkg/domain"
)

type Store interface {
	// Create inserts a guest. A duplicate (invitation, fingerprint) pair
	// returns sentinel.ErrConflict.
	Create(ctx context.Context, guest *models.Guest) error

	// FindByFingerprint is the primary duplicate check.
	FindByFingerprint(ctx context.Context, invitationID id.InvitationID, deviceFingerprint string) (*models.Guest, error)

	// FindRecentByNetwork is the backup duplicate check: any guest under the
	// invitation with the same IP and user-agent hash first seen at or after
	// since. Catches fingerprint rotation from private browsing.
	FindRecentByNetwork(ctx context.Context, invitationID id.InvitationID, ipAddress, userAgentHash string, since time.Time) (*models.Guest, error)

	// ListByInvitation returns every guest for analytics and admin views.
	ListByInvitation(ctx context.Context, invitationID id.InvitationID) ([]*models.Guest, error)
}
