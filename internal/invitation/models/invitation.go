package models

import (
	"time"

	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
)

// Pool names one of the two independent capacity counters.
type Pool string

const (
	PoolStandard Pool = "standard"
	PoolTest     Pool = "test"
)

// Invitation is the guest-facing aggregate, 1:1 with an approved order.
//
// Invariants:
//   - IsActive implies ExpiresAt is set, and was in the future when set.
//   - StandardUsed <= GrantedStandardCapacity and TestUsed <=
//     GrantedTestCapacity at all times; the store enforces this with check
//     constraints and conditional increments.
//   - Expiry is evaluated lazily against the clock on every read; the stored
//     IsActive flag never overrides a past ExpiresAt.
type Invitation struct {
	ID       id.InvitationID `json:"id"`
	OrderID  id.OrderID      `json:"order_id"`
	Slug     string          `json:"slug"`
	IsActive bool            `json:"is_active"`
	// ExpiresAt is set exactly once, at activation: approval time plus the
	// configured validity window. It deliberately does not count from
	// purchase time.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	GrantedStandardCapacity int `json:"granted_standard_capacity"`
	GrantedTestCapacity     int `json:"granted_test_capacity"`
	StandardUsed            int `json:"standard_used"`
	TestUsed                int `json:"test_used"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a pending (inactive) invitation for an approved order.
func New(invitationID id.InvitationID, orderID id.OrderID, slug string, standardCap, testCap int, now time.Time) (*Invitation, error) {
	if orderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation requires an order")
	}
	if slug == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation requires a slug")
	}
	if standardCap < 0 || testCap < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "capacities must not be negative")
	}
	return &Invitation{
		ID:                      invitationID,
		OrderID:                 orderID,
		Slug:                    slug,
		GrantedStandardCapacity: standardCap,
		GrantedTestCapacity:     testCap,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

// Activate flips the invitation active and stamps the expiry window counted
// from now. It can succeed exactly once.
func (inv *Invitation) Activate(now time.Time, validityWindow time.Duration) error {
	if inv.IsActive || inv.ExpiresAt != nil {
		return dErrors.New(dErrors.CodeInvalidTransition, "invitation is already activated")
	}
	if validityWindow <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "validity window must be positive")
	}
	expires := now.Add(validityWindow)
	inv.IsActive = true
	inv.ExpiresAt = &expires
	inv.UpdatedAt = now
	return nil
}

// IsExpired reports the lazily evaluated expiry state. A past ExpiresAt wins
// regardless of the stored IsActive flag.
func (inv *Invitation) IsExpired(now time.Time) bool {
	return inv.ExpiresAt != nil && now.After(*inv.ExpiresAt)
}

// CheckAvailable guards every guest-facing operation. It distinguishes a
// never-activated invitation from an expired one so clients can message each
// case; slugs that were deactivated by expiry report expired even if the
// stored flag was never flipped.
func (inv *Invitation) CheckAvailable(now time.Time) error {
	if inv.IsExpired(now) {
		return dErrors.New(dErrors.CodeExpired, "invitation has expired")
	}
	if !inv.IsActive {
		return dErrors.New(dErrors.CodeNotYetActive, "invitation is not active yet")
	}
	return nil
}

// Remaining returns the free slots in a pool.
func (inv *Invitation) Remaining(pool Pool) int {
	if pool == PoolTest {
		return inv.GrantedTestCapacity - inv.TestUsed
	}
	return inv.GrantedStandardCapacity - inv.StandardUsed
}

// ApplyCapacityGrant mirrors an order-level grant onto the invitation.
func (inv *Invitation) ApplyCapacityGrant(extraStandard, extraTest int, now time.Time) error {
	if extraStandard < 0 || extraTest < 0 {
		return dErrors.New(dErrors.CodeValidation, "capacity grants must not be negative")
	}
	inv.GrantedStandardCapacity += extraStandard
	inv.GrantedTestCapacity += extraTest
	inv.UpdatedAt = now
	return nil
}
