// Package domain defines typed identifiers shared across modules.
//
// IDs are distinct uuid-backed types so an OrderID can never be passed where
// an InvitationID is expected. Parsing happens once at trust boundaries; the
// rest of the codebase works with validated values.
package domain

import (
	"github.com/google/uuid"

	dErrors "fete/pkg/domain-errors"
)

type (
	// UserID identifies a purchaser account.
	UserID uuid.UUID

	// AdminID identifies an operator acting on the approval queue.
	AdminID uuid.UUID

	// OrderID identifies a purchase order.
	OrderID uuid.UUID

	// InvitationID identifies the invitation linked 1:1 to an approved order.
	InvitationID uuid.UUID

	// GuestID identifies a registered guest.
	GuestID uuid.UUID

	// TemplateID identifies a catalog template referenced by an order.
	TemplateID uuid.UUID
)

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id AdminID) String() string      { return uuid.UUID(id).String() }
func (id OrderID) String() string      { return uuid.UUID(id).String() }
func (id InvitationID) String() string { return uuid.UUID(id).String() }
func (id GuestID) String() string      { return uuid.UUID(id).String() }
func (id TemplateID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AdminID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id InvitationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id GuestID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a fresh random purchaser ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewAdminID returns a fresh random admin ID.
func NewAdminID() AdminID { return AdminID(uuid.New()) }

// NewTemplateID returns a fresh random template ID.
func NewTemplateID() TemplateID { return TemplateID(uuid.New()) }

// NewOrderID returns a fresh random order ID.
func NewOrderID() OrderID { return OrderID(uuid.New()) }

// NewInvitationID returns a fresh random invitation ID.
func NewInvitationID() InvitationID { return InvitationID(uuid.New()) }

// NewGuestID returns a fresh random guest ID.
func NewGuestID() GuestID { return GuestID(uuid.New()) }

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid uuid")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil uuid")
	}
	return parsed, nil
}

// ParseUserID validates and converts a raw string into a UserID.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseAdminID validates and converts a raw string into an AdminID.
func ParseAdminID(raw string) (AdminID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return AdminID{}, err
	}
	return AdminID(parsed), nil
}

// ParseOrderID validates and converts a raw string into an OrderID.
func ParseOrderID(raw string) (OrderID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return OrderID{}, err
	}
	return OrderID(parsed), nil
}

// ParseInvitationID validates and converts a raw string into an InvitationID.
func ParseInvitationID(raw string) (InvitationID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return InvitationID{}, err
	}
	return InvitationID(parsed), nil
}

// ParseGuestID validates and converts a raw string into a GuestID.
func ParseGuestID(raw string) (GuestID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return GuestID{}, err
	}
	return GuestID(parsed), nil
}

// ParseTemplateID validates and converts a raw string into a TemplateID.
func ParseTemplateID(raw string) (TemplateID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return TemplateID{}, err
	}
	return TemplateID(parsed), nil
}
