// Package service orchestrates the order lifecycle. Transition rules live in
// the models; this layer owns plan locking, the approval transaction that
// activates the invitation, and error translation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	invmodels "fete/internal/invitation/models"
	invstore "fete/internal/invitation/store"
	"fete/internal/invitation/slug"
	"fete/internal/order/models"
	"fete/internal/order/store"
	"fete/internal/platform/metrics"
	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
	"fete/pkg/platform/audit"
	"fete/pkg/platform/sentinel"
	"fete/pkg/platform/tx"
	"fete/pkg/requestcontext"
)

// slugAttempts bounds regeneration when a fresh slug collides. With 128 bits
// of entropy a second collision in a row means something is broken, not
// unlucky.
const slugAttempts = 3

type Service struct {
	orders      store.Store
	invitations invstore.Store
	runner      tx.Runner

	validityWindow  time.Duration
	paymentDeadline time.Duration

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(orders store.Store, invitations invstore.Store, runner tx.Runner, validityWindow, paymentDeadline time.Duration, opts ...Option) (*Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if invitations == nil {
		return nil, fmt.Errorf("invitation store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if validityWindow <= 0 {
		return nil, fmt.Errorf("validity window must be positive")
	}

	s := &Service{
		orders:          orders,
		invitations:     invitations,
		runner:          runner,
		validityWindow:  validityWindow,
		paymentDeadline: paymentDeadline,
		tracer:          otel.Tracer("fete/order"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates the plan-lock rule and persists a draft order.
//
// Plan lock: a purchaser who already holds an approved order for plan X may
// only create further orders for plan X. Checked here, before any state
// transition, because it is a business rule on creation rather than a
// state-machine edge.
func (s *Service) Create(ctx context.Context, userID id.UserID, planCode models.PlanCode, templateID id.TemplateID) (*models.Order, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "purchaser id is required")
	}

	plan, err := models.PlanByCode(planCode)
	if err != nil {
		return nil, err
	}

	lockedPlan, locked, err := s.orders.ApprovedPlan(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check plan lock")
	}
	if locked && lockedPlan != planCode {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"purchaser is locked to plan %q by a previously approved order", lockedPlan)
	}

	now := requestcontext.Now(ctx)

	var order *models.Order
	for attempt := 0; ; attempt++ {
		o, err := models.NewOrder(id.NewOrderID(), userID, plan, templateID, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
			}
			return nil, err
		}

		err = s.orders.Create(ctx, o)
		if err == nil {
			order = o
			break
		}
		// Order-number collision; vanishingly rare, retry with a fresh one.
		if errors.Is(err, sentinel.ErrConflict) && attempt < 2 {
			continue
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "order number collision")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create order")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  audit.EventOrderCreated,
		OrderID: order.ID,
		ActorID: userID.String(),
	}, "order_number", order.OrderNumber, "plan", order.PlanCode)
	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}
	return order, nil
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, translateOrderErr(err)
	}
	return order, nil
}

// SubmitForPayment advances a draft once the payment collaborator has created
// a payment intent.
func (s *Service) SubmitForPayment(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	now := requestcontext.Now(ctx)
	order, err := s.orders.Execute(ctx, orderID,
		func(o *models.Order) error { return o.CanSubmitForPayment() },
		func(o *models.Order) { o.ApplySubmittedForPayment(now) },
	)
	if err != nil {
		return nil, translateOrderErr(err)
	}
	return order, nil
}

// ConfirmPayment advances a paid order into the approval queue. The caller
// has already verified the payment callback's authenticity; this core trusts
// the transition call, not the raw payment payload.
func (s *Service) ConfirmPayment(ctx context.Context, orderID id.OrderID, paymentReference string) (*models.Order, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "payment reference is required")
	}

	now := requestcontext.Now(ctx)
	order, err := s.orders.Execute(ctx, orderID,
		func(o *models.Order) error { return o.CanConfirmPayment() },
		func(o *models.Order) { o.ApplyPaymentConfirmed(paymentReference, now) },
	)
	if err != nil {
		return nil, translateOrderErr(err)
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  audit.EventOrderPaymentConfirmed,
		OrderID: order.ID,
	}, "payment_reference", paymentReference)
	return order, nil
}

// Approve transitions a pending-approval order to approved and activates its
// invitation in the same transaction. An order can never end up approved with
// its invitation missing or inactive: both writes commit or neither does.
//
// Concurrent approvals serialize on the order row; exactly one caller wins
// and the loser gets InvalidTransition from the transition check.
func (s *Service) Approve(ctx context.Context, orderID id.OrderID, adminID id.AdminID) (*invmodels.Invitation, error) {
	ctx, span := s.tracer.Start(ctx, "order.approve",
		trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer span.End()

	if adminID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "admin id is required")
	}

	now := requestcontext.Now(ctx)
	var invitation *invmodels.Invitation

	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Execute(txCtx, orderID,
			func(o *models.Order) error { return o.CanApprove() },
			func(o *models.Order) { o.ApplyApproval(adminID, now) },
		)
		if err != nil {
			return translateOrderErr(err)
		}

		inv, err := s.activateInvitation(txCtx, order, now)
		if err != nil {
			return err
		}
		invitation = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:       audit.EventOrderApproved,
		OrderID:      orderID,
		InvitationID: invitation.ID,
		ActorID:      adminID.String(),
	})
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:       audit.EventInvitationActivated,
		OrderID:      orderID,
		InvitationID: invitation.ID,
	}, "expires_at", invitation.ExpiresAt)
	if s.metrics != nil {
		s.metrics.OrdersApproved.Inc()
	}
	return invitation, nil
}

// activateInvitation creates and activates the invitation for a just-approved
// order, regenerating the slug on the (vanishingly rare) unique collision.
// The expiry window counts from approval time, not purchase time.
func (s *Service) activateInvitation(ctx context.Context, order *models.Order, now time.Time) (*invmodels.Invitation, error) {
	for attempt := 0; attempt < slugAttempts; attempt++ {
		publicSlug, err := slug.New()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate slug")
		}

		inv, err := invmodels.New(id.NewInvitationID(), order.ID, publicSlug,
			order.GrantedStandardCapacity, order.GrantedTestCapacity, now)
		if err != nil {
			return nil, err
		}
		if err := inv.Activate(now, s.validityWindow); err != nil {
			return nil, err
		}

		if err := s.invitations.Create(ctx, inv); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create invitation")
		}
		return inv, nil
	}
	return nil, dErrors.New(dErrors.CodeInternal, "could not generate a unique slug")
}

// Reject transitions a pending-approval order to rejected. The reason is
// required; it is the only record of why the purchase was refused.
func (s *Service) Reject(ctx context.Context, orderID id.OrderID, adminID id.AdminID, reason string) (*models.Order, error) {
	if adminID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "admin id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}

	now := requestcontext.Now(ctx)
	order, err := s.orders.Execute(ctx, orderID,
		func(o *models.Order) error { return o.CanReject() },
		func(o *models.Order) { o.ApplyRejection(reason, now) },
	)
	if err != nil {
		return nil, translateOrderErr(err)
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  audit.EventOrderRejected,
		OrderID: order.ID,
		ActorID: adminID.String(),
		Reason:  reason,
	})
	if s.metrics != nil {
		s.metrics.OrdersRejected.Inc()
	}
	return order, nil
}

// Cancel transitions any non-terminal order to cancelled.
func (s *Service) Cancel(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	now := requestcontext.Now(ctx)
	order, err := s.orders.Execute(ctx, orderID,
		func(o *models.Order) error { return o.CanCancel() },
		func(o *models.Order) { o.ApplyCancellation(now) },
	)
	if err != nil {
		return nil, translateOrderErr(err)
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  audit.EventOrderCancelled,
		OrderID: order.ID,
	})
	return order, nil
}

// GrantCapacity increases the granted pools on the order and mirrors the
// grant onto the invitation when one exists. Grants are monotonic increases;
// used counters are untouched, so the quota invariant cannot break.
func (s *Service) GrantCapacity(ctx context.Context, orderID id.OrderID, adminID id.AdminID, extraStandard, extraTest int) (*models.Order, error) {
	if adminID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "admin id is required")
	}

	now := requestcontext.Now(ctx)
	var order *models.Order

	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		var grantErr error
		o, err := s.orders.Execute(txCtx, orderID,
			func(o *models.Order) error {
				cp := *o
				return cp.ApplyCapacityGrant(extraStandard, extraTest, now)
			},
			func(o *models.Order) {
				grantErr = o.ApplyCapacityGrant(extraStandard, extraTest, now)
			},
		)
		if err != nil {
			return translateOrderErr(err)
		}
		if grantErr != nil {
			return grantErr
		}
		order = o

		inv, err := s.invitations.FindByOrderID(txCtx, orderID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// Not yet approved; the grant lands on the invitation at
				// activation via the order's capacities.
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load invitation")
		}

		_, err = s.invitations.Execute(txCtx, inv.ID,
			func(*invmodels.Invitation) error { return nil },
			func(i *invmodels.Invitation) { _ = i.ApplyCapacityGrant(extraStandard, extraTest, now) },
		)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mirror capacity grant")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  audit.EventCapacityGranted,
		OrderID: orderID,
		ActorID: adminID.String(),
	}, "extra_standard", extraStandard, "extra_test", extraTest)
	return order, nil
}

// ExpireStale times out every order stuck before approval longer than the
// payment deadline. Idempotent; safe to call from a periodic job.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	cutoff := now.Add(-s.paymentDeadline)

	flipped, err := s.orders.ExpireStale(ctx, cutoff, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire stale orders")
	}
	if flipped > 0 {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: audit.EventOrderExpired,
		}, "count", flipped)
	}
	return flipped, nil
}

func translateOrderErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "order was modified concurrently")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "order operation failed")
}
