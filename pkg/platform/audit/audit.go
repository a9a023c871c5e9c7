// Package audit defines the audit event model shared by services and
// publishers. Events are emitted from domain logic to capture key actions.
// Keep the model transport-agnostic so sinks can fan out.
package audit

import (
	"context"
	"log/slog"
	"time"

	id "fete/pkg/domain"
	"fete/pkg/requestcontext"
)

// Event captures a security- or compliance-relevant action.
type Event struct {
	Timestamp    time.Time       `json:"timestamp"`
	Action       string          `json:"action"`
	OrderID      id.OrderID      `json:"order_id,omitempty"`
	InvitationID id.InvitationID `json:"invitation_id,omitempty"`
	// ActorID tracks who performed the action: an admin for approval-queue
	// operations, a purchaser for order creation, empty for guest flows.
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string `json:"request_id,omitempty"`
}

// Audit event actions.
const (
	EventOrderCreated          = "order_created"
	EventOrderPaymentConfirmed = "order_payment_confirmed"
	EventOrderApproved         = "order_approved"
	EventOrderRejected         = "order_rejected"
	EventOrderCancelled        = "order_cancelled"
	EventOrderExpired          = "order_expired"
	EventCapacityGranted       = "capacity_granted"
	EventInvitationActivated   = "invitation_activated"
	EventInvitationExpired     = "invitation_expired"
	EventGuestRegistered       = "guest_registered"
	EventDuplicateGuestReturn  = "duplicate_guest_return"
	EventQuotaExceeded         = "quota_exceeded"
)

// Publisher emits audit events for security-relevant operations.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Log is a shared helper for emitting audit events across services. It logs
// to the structured logger and the publisher when either is configured, and
// never fails the business operation.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, event Event, attrs ...any) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}

	if logger != nil {
		args := append(attrs, "event", event.Action, "log_type", "audit")
		if event.RequestID != "" {
			args = append(args, "request_id", event.RequestID)
		}
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
