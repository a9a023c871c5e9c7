package models

import (
	"strings"
	"time"

	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
)

// Guest is one registered visitor under an invitation.
//
// Invariants:
//   - (InvitationID, DeviceFingerprint) is unique; the store enforces it with
//     a composite unique index, not just application logic.
//   - A guest row is never hard-deleted while its invitation exists; repeat
//     visits return the existing row unchanged.
type Guest struct {
	ID                id.GuestID      `json:"id"`
	InvitationID      id.InvitationID `json:"invitation_id"`
	DisplayName       string          `json:"display_name"`
	DeviceFingerprint string          `json:"-"`
	IPAddress         string          `json:"-"`
	UserAgentHash     string          `json:"-"`
	// IsTestSlot records which capacity pool this guest consumed.
	IsTestSlot  bool      `json:"is_test_slot"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

const maxDisplayNameLen = 80

// New validates and constructs a guest record.
func New(guestID id.GuestID, invitationID id.InvitationID, displayName, deviceFingerprint, ipAddress, userAgentHash string, isTestSlot bool, now time.Time) (*Guest, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "display name is required")
	}
	if len(displayName) > maxDisplayNameLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "display name must be %d characters or less", maxDisplayNameLen)
	}
	if invitationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guest requires an invitation")
	}
	if deviceFingerprint == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guest requires a device fingerprint")
	}
	return &Guest{
		ID:                guestID,
		InvitationID:      invitationID,
		DisplayName:       displayName,
		DeviceFingerprint: deviceFingerprint,
		IPAddress:         ipAddress,
		UserAgentHash:     userAgentHash,
		IsTestSlot:        isTestSlot,
		FirstSeenAt:       now,
	}, nil
}
