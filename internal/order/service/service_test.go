package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	invstore "fete/internal/invitation/store"
	"fete/internal/order/models"
	orderstore "fete/internal/order/store"
	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
	"fete/pkg/platform/audit"
	"fete/pkg/platform/audit/publisher"
	"fete/pkg/platform/tx"
	"fete/pkg/requestcontext"
)

const (
	testValidityWindow  = 90 * 24 * time.Hour
	testPaymentDeadline = 72 * time.Hour
)

type OrderServiceSuite struct {
	suite.Suite

	orders      *orderstore.MemoryStore
	invitations *invstore.MemoryStore
	events      *publisher.MemoryPublisher
	service     *Service

	ctx context.Context
	now time.Time
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	s.orders = orderstore.NewMemory()
	s.invitations = invstore.NewMemory()
	s.events = publisher.NewMemory()

	svc, err := New(s.orders, s.invitations, tx.NewMemoryRunner(),
		testValidityWindow, testPaymentDeadline,
		WithAuditPublisher(s.events),
	)
	s.Require().NoError(err)
	s.service = svc

	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *OrderServiceSuite) newUser() id.UserID {
	return id.NewUserID()
}

func (s *OrderServiceSuite) newAdmin() id.AdminID {
	return id.NewAdminID()
}

func (s *OrderServiceSuite) createPendingApproval(userID id.UserID, plan models.PlanCode) *models.Order {
	order, err := s.service.Create(s.ctx, userID, plan, id.NewTemplateID())
	s.Require().NoError(err)
	_, err = s.service.SubmitForPayment(s.ctx, order.ID)
	s.Require().NoError(err)
	_, err = s.service.ConfirmPayment(s.ctx, order.ID, "pay_"+order.OrderNumber)
	s.Require().NoError(err)
	return order
}

func (s *OrderServiceSuite) TestCreate() {
	s.Run("creates a draft with plan capacities", func() {
		order, err := s.service.Create(s.ctx, s.newUser(), models.PlanClassic, id.NewTemplateID())
		s.Require().NoError(err)

		s.Equal(models.StatusDraft, order.Status)
		s.Equal(150, order.GrantedStandardCapacity)
		s.Equal(10, order.GrantedTestCapacity)
		s.Len(s.events.ByAction(audit.EventOrderCreated), 1)
	})

	s.Run("rejects an unknown plan", func() {
		_, err := s.service.Create(s.ctx, s.newUser(), "platinum", id.NewTemplateID())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a missing purchaser", func() {
		_, err := s.service.Create(s.ctx, id.UserID{}, models.PlanClassic, id.NewTemplateID())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *OrderServiceSuite) TestCreatePlanLock() {
	userID := s.newUser()

	order := s.createPendingApproval(userID, models.PlanClassic)
	_, err := s.service.Approve(s.ctx, order.ID, s.newAdmin())
	s.Require().NoError(err)

	s.Run("a different plan is refused after approval", func() {
		_, err := s.service.Create(s.ctx, userID, models.PlanPremium, id.NewTemplateID())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("the locked plan remains available", func() {
		_, err := s.service.Create(s.ctx, userID, models.PlanClassic, id.NewTemplateID())
		s.NoError(err)
	})

	s.Run("other purchasers are unaffected", func() {
		_, err := s.service.Create(s.ctx, s.newUser(), models.PlanPremium, id.NewTemplateID())
		s.NoError(err)
	})
}

func (s *OrderServiceSuite) TestApprove() {
	s.Run("activates the invitation with the order's capacities", func() {
		order := s.createPendingApproval(s.newUser(), models.PlanStarter)

		invitation, err := s.service.Approve(s.ctx, order.ID, s.newAdmin())
		s.Require().NoError(err)

		s.True(invitation.IsActive)
		s.Require().NotNil(invitation.ExpiresAt)
		s.Equal(s.now.Add(testValidityWindow), *invitation.ExpiresAt)
		s.Equal(50, invitation.GrantedStandardCapacity)
		s.Equal(5, invitation.GrantedTestCapacity)

		stored, err := s.invitations.FindByOrderID(s.ctx, order.ID)
		s.Require().NoError(err)
		s.Equal(invitation.Slug, stored.Slug)

		approved, err := s.service.Get(s.ctx, order.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
	})

	s.Run("refuses an order that skipped payment", func() {
		order, err := s.service.Create(s.ctx, s.newUser(), models.PlanStarter, id.NewTemplateID())
		s.Require().NoError(err)

		_, err = s.service.Approve(s.ctx, order.ID, s.newAdmin())
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("unknown order", func() {
		_, err := s.service.Approve(s.ctx, id.NewOrderID(), s.newAdmin())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// Two admins approving the same order at once: exactly one wins, and only one
// invitation exists afterwards.
func (s *OrderServiceSuite) TestApproveConcurrent() {
	order := s.createPendingApproval(s.newUser(), models.PlanClassic)

	const racers = 2
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.Approve(s.ctx, order.ID, s.newAdmin())
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case dErrors.HasCode(err, dErrors.CodeInvalidTransition):
			losses++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, wins)
	s.Equal(1, losses)

	_, err := s.invitations.FindByOrderID(s.ctx, order.ID)
	s.NoError(err)
}

func (s *OrderServiceSuite) TestReject() {
	s.Run("records the reason", func() {
		order := s.createPendingApproval(s.newUser(), models.PlanClassic)

		rejected, err := s.service.Reject(s.ctx, order.ID, s.newAdmin(), "chargeback risk")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
		s.Equal("chargeback risk", rejected.RejectionReason)

		events := s.events.ByAction(audit.EventOrderRejected)
		s.Require().Len(events, 1)
		s.Equal("chargeback risk", events[0].Reason)
	})

	s.Run("requires a reason", func() {
		order := s.createPendingApproval(s.newUser(), models.PlanClassic)
		_, err := s.service.Reject(s.ctx, order.ID, s.newAdmin(), "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejected orders never activate an invitation", func() {
		order := s.createPendingApproval(s.newUser(), models.PlanClassic)
		_, err := s.service.Reject(s.ctx, order.ID, s.newAdmin(), "fraud")
		s.Require().NoError(err)

		_, err = s.service.Approve(s.ctx, order.ID, s.newAdmin())
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		_, err = s.invitations.FindByOrderID(s.ctx, order.ID)
		s.Error(err)
	})
}

func (s *OrderServiceSuite) TestConfirmPayment() {
	order, err := s.service.Create(s.ctx, s.newUser(), models.PlanStarter, id.NewTemplateID())
	s.Require().NoError(err)
	_, err = s.service.SubmitForPayment(s.ctx, order.ID)
	s.Require().NoError(err)

	s.Run("requires a payment reference", func() {
		_, err := s.service.ConfirmPayment(s.ctx, order.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("advances to pending approval", func() {
		confirmed, err := s.service.ConfirmPayment(s.ctx, order.ID, "pay_123")
		s.Require().NoError(err)
		s.Equal(models.StatusPendingApproval, confirmed.Status)
	})

	s.Run("a second confirmation is refused", func() {
		_, err := s.service.ConfirmPayment(s.ctx, order.ID, "pay_456")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *OrderServiceSuite) TestGrantCapacity() {
	s.Run("mirrors onto the active invitation", func() {
		order := s.createPendingApproval(s.newUser(), models.PlanStarter)
		_, err := s.service.Approve(s.ctx, order.ID, s.newAdmin())
		s.Require().NoError(err)

		granted, err := s.service.GrantCapacity(s.ctx, order.ID, s.newAdmin(), 25, 5)
		s.Require().NoError(err)
		s.Equal(75, granted.GrantedStandardCapacity)
		s.Equal(10, granted.GrantedTestCapacity)

		inv, err := s.invitations.FindByOrderID(s.ctx, order.ID)
		s.Require().NoError(err)
		s.Equal(75, inv.GrantedStandardCapacity)
		s.Equal(10, inv.GrantedTestCapacity)
	})

	s.Run("before approval the grant lands at activation", func() {
		order := s.createPendingApproval(s.newUser(), models.PlanStarter)

		_, err := s.service.GrantCapacity(s.ctx, order.ID, s.newAdmin(), 10, 0)
		s.Require().NoError(err)

		invitation, err := s.service.Approve(s.ctx, order.ID, s.newAdmin())
		s.Require().NoError(err)
		s.Equal(60, invitation.GrantedStandardCapacity)
	})

	s.Run("rejects a no-op grant", func() {
		order := s.createPendingApproval(s.newUser(), models.PlanStarter)
		_, err := s.service.GrantCapacity(s.ctx, order.ID, s.newAdmin(), 0, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *OrderServiceSuite) TestExpireStale() {
	past := requestcontext.WithTime(context.Background(), s.now.Add(-testPaymentDeadline-time.Hour))

	stale, err := s.service.Create(past, s.newUser(), models.PlanStarter, id.NewTemplateID())
	s.Require().NoError(err)

	fresh := s.createPendingApproval(s.newUser(), models.PlanStarter)
	approvedOrder := s.createPendingApproval(s.newUser(), models.PlanStarter)
	_, err = s.service.Approve(s.ctx, approvedOrder.ID, s.newAdmin())
	s.Require().NoError(err)

	flipped, err := s.service.ExpireStale(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, flipped)

	expired, err := s.service.Get(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, expired.Status)

	untouched, err := s.service.Get(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingApproval, untouched.Status)

	still, err := s.service.Get(s.ctx, approvedOrder.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, still.Status)

	s.Run("sweep is idempotent", func() {
		flipped, err := s.service.ExpireStale(s.ctx)
		s.Require().NoError(err)
		s.Zero(flipped)
	})
}

func (s *OrderServiceSuite) TestCancel() {
	order := s.createPendingApproval(s.newUser(), models.PlanClassic)

	cancelled, err := s.service.Cancel(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.Status)

	_, err = s.service.Approve(s.ctx, order.ID, s.newAdmin())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}
