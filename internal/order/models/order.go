package models

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingPayment  Status = "pending_payment"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
)

// transitions is the single source of truth for the state machine. Every
// transition in the system goes through CanTransitionTo; stores additionally
// compare-and-swap on the expected current status so concurrent callers
// cannot both win.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingPayment, StatusExpired, StatusCancelled},
	StatusPendingPayment:  {StatusPendingApproval, StatusExpired, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusExpired, StatusCancelled},
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is the aggregate root for a purchase.
//
// Invariants:
//   - Status moves only along the transition table above; terminal states
//     accept nothing.
//   - Granted capacities only increase, and only via an admin grant.
//   - ApprovedAt/ApprovedBy are set exactly when status becomes approved.
//   - Orders are never deleted; the row is the audit trail.
type Order struct {
	ID          id.OrderID    `json:"id"`
	OrderNumber string        `json:"order_number"`
	UserID      id.UserID     `json:"user_id"`
	PlanCode    PlanCode      `json:"plan_code"`
	TemplateID  id.TemplateID `json:"template_id"`
	AmountCents int64         `json:"amount_cents"`
	Status      Status        `json:"status"`

	GrantedStandardCapacity int `json:"granted_standard_capacity"`
	GrantedTestCapacity     int `json:"granted_test_capacity"`

	PaymentReference string      `json:"payment_reference,omitempty"`
	RejectionReason  string      `json:"rejection_reason,omitempty"`
	ApprovedAt       *time.Time  `json:"approved_at,omitempty"`
	ApprovedBy       *id.AdminID `json:"approved_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrder creates a draft order, copying capacities from the plan.
func NewOrder(orderID id.OrderID, userID id.UserID, plan Plan, templateID id.TemplateID, now time.Time) (*Order, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "order requires a purchaser")
	}
	if templateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "order requires a template")
	}
	number, err := NewOrderNumber(now)
	if err != nil {
		return nil, err
	}
	return &Order{
		ID:                      orderID,
		OrderNumber:             number,
		UserID:                  userID,
		PlanCode:                plan.Code,
		TemplateID:              templateID,
		AmountCents:             plan.AmountCents,
		Status:                  StatusDraft,
		GrantedStandardCapacity: plan.StandardCapacity,
		GrantedTestCapacity:     plan.TestCapacity,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

// NewOrderNumber generates a human-readable, globally unique order number.
// The random suffix makes collisions negligible; the store's unique
// constraint is the backstop.
func NewOrderNumber(now time.Time) (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate order number")
	}
	var suffix strings.Builder
	for _, b := range buf {
		suffix.WriteByte(alphabet[int(b)%len(alphabet)])
	}
	return fmt.Sprintf("FET-%s-%s", now.UTC().Format("20060102"), suffix.String()), nil
}

func (o *Order) canTransition(next Status) error {
	if !o.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"order %s cannot move from %s to %s", o.OrderNumber, o.Status, next)
	}
	return nil
}

// CanConfirmPayment checks the pending_payment -> pending_approval transition.
func (o *Order) CanConfirmPayment() error {
	return o.canTransition(StatusPendingApproval)
}

// ApplyPaymentConfirmed records the verified payment and advances the order
// to the approval queue. Call CanConfirmPayment first.
func (o *Order) ApplyPaymentConfirmed(paymentReference string, now time.Time) {
	o.Status = StatusPendingApproval
	o.PaymentReference = paymentReference
	o.UpdatedAt = now
}

// CanSubmitForPayment checks the draft -> pending_payment transition.
func (o *Order) CanSubmitForPayment() error {
	return o.canTransition(StatusPendingPayment)
}

// ApplySubmittedForPayment advances a draft once a payment intent exists.
func (o *Order) ApplySubmittedForPayment(now time.Time) {
	o.Status = StatusPendingPayment
	o.UpdatedAt = now
}

// CanApprove checks the pending_approval -> approved transition.
func (o *Order) CanApprove() error {
	return o.canTransition(StatusApproved)
}

// ApplyApproval stamps the approving admin and time. Call CanApprove first.
func (o *Order) ApplyApproval(adminID id.AdminID, now time.Time) {
	o.Status = StatusApproved
	o.ApprovedAt = &now
	o.ApprovedBy = &adminID
	o.UpdatedAt = now
}

// CanReject checks the pending_approval -> rejected transition.
func (o *Order) CanReject() error {
	return o.canTransition(StatusRejected)
}

// ApplyRejection records the required reason. Call CanReject first.
func (o *Order) ApplyRejection(reason string, now time.Time) {
	o.Status = StatusRejected
	o.RejectionReason = reason
	o.UpdatedAt = now
}

// CanCancel checks that the order is still cancellable.
func (o *Order) CanCancel() error {
	return o.canTransition(StatusCancelled)
}

// ApplyCancellation transitions to cancelled.
func (o *Order) ApplyCancellation(now time.Time) {
	o.Status = StatusCancelled
	o.UpdatedAt = now
}

// CanExpire checks that the order can time out.
func (o *Order) CanExpire() error {
	return o.canTransition(StatusExpired)
}

// ApplyExpiry transitions to expired.
func (o *Order) ApplyExpiry(now time.Time) {
	o.Status = StatusExpired
	o.UpdatedAt = now
}

// ApplyCapacityGrant increases granted capacities. Grants are monotonic: a
// negative extra is rejected, so capacities can never fall below used counts.
func (o *Order) ApplyCapacityGrant(extraStandard, extraTest int, now time.Time) error {
	if extraStandard < 0 || extraTest < 0 {
		return dErrors.New(dErrors.CodeValidation, "capacity grants must not be negative")
	}
	if extraStandard == 0 && extraTest == 0 {
		return dErrors.New(dErrors.CodeValidation, "capacity grant must increase at least one pool")
	}
	o.GrantedStandardCapacity += extraStandard
	o.GrantedTestCapacity += extraTest
	o.UpdatedAt = now
	return nil
}
