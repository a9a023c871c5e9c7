package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"fete/internal/guest/fingerprint"
	gueststore "fete/internal/guest/store"
	invmodels "fete/internal/invitation/models"
	invstore "fete/internal/invitation/store"
	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
	"fete/pkg/platform/audit"
	"fete/pkg/platform/audit/publisher"
	"fete/pkg/platform/tx"
	"fete/pkg/requestcontext"
)

const (
	testWindow    = 90 * 24 * time.Hour
	testDupWindow = 30 * 24 * time.Hour
)

type GuestServiceSuite struct {
	suite.Suite

	invitations *invstore.MemoryStore
	guests      *gueststore.MemoryStore
	events      *publisher.MemoryPublisher
	service     *Service

	ctx context.Context
	now time.Time
}

func TestGuestServiceSuite(t *testing.T) {
	suite.Run(t, new(GuestServiceSuite))
}

func (s *GuestServiceSuite) SetupTest() {
	s.invitations = invstore.NewMemory()
	s.guests = gueststore.NewMemory()
	s.events = publisher.NewMemory()

	svc, err := New(s.invitations, s.guests, fingerprint.New("test-salt"),
		tx.NewMemoryRunner(), testDupWindow,
		WithAuditPublisher(s.events),
	)
	s.Require().NoError(err)
	s.service = svc

	s.now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *GuestServiceSuite) seedInvitation(slug string, standardCap, testCap int, active bool) *invmodels.Invitation {
	inv, err := invmodels.New(id.NewInvitationID(), id.NewOrderID(), slug, standardCap, testCap, s.now)
	s.Require().NoError(err)
	if active {
		s.Require().NoError(inv.Activate(s.now, testWindow))
	}
	s.Require().NoError(s.invitations.Create(s.ctx, inv))
	return inv
}

func registration(name, device, ip string) Registration {
	return Registration{
		DisplayName: name,
		IPAddress:   ip,
		Signals: fingerprint.Signals{
			UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36",
			ScreenResolution:      "1920x1080",
			TimezoneOffsetMinutes: -120,
			Languages:             []string{"en-US"},
			CanvasHash:            device,
		},
	}
}

func (s *GuestServiceSuite) TestRegister() {
	s.Run("first visit consumes a standard slot", func() {
		s.seedInvitation("party", 10, 2, true)

		result, err := s.service.Register(s.ctx, "party", registration("Ada", "device-a", "10.0.0.1"))
		s.Require().NoError(err)

		s.False(result.Duplicate)
		s.Equal("Ada", result.Guest.DisplayName)
		s.False(result.Guest.IsTestSlot)

		inv, err := s.invitations.FindBySlug(s.ctx, "party")
		s.Require().NoError(err)
		s.Equal(1, inv.StandardUsed)
		s.Zero(inv.TestUsed)
		s.Len(s.events.ByAction(audit.EventGuestRegistered), 1)
	})

	s.Run("test slot draws from the test pool", func() {
		s.seedInvitation("rehearsal", 10, 2, true)

		reg := registration("Host", "device-h", "10.0.0.9")
		reg.IsTestSlot = true
		result, err := s.service.Register(s.ctx, "rehearsal", reg)
		s.Require().NoError(err)
		s.True(result.Guest.IsTestSlot)

		inv, err := s.invitations.FindBySlug(s.ctx, "rehearsal")
		s.Require().NoError(err)
		s.Zero(inv.StandardUsed)
		s.Equal(1, inv.TestUsed)
	})

	s.Run("unknown slug", func() {
		_, err := s.service.Register(s.ctx, "nope", registration("Ada", "device-a", "10.0.0.1"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("pending invitation", func() {
		s.seedInvitation("not-yet", 10, 2, false)
		_, err := s.service.Register(s.ctx, "not-yet", registration("Ada", "device-a", "10.0.0.1"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotYetActive))
	})

	s.Run("lapsed invitation is refused lazily", func() {
		s.seedInvitation("old-party", 10, 2, true)

		late := requestcontext.WithTime(context.Background(), s.now.Add(testWindow+time.Hour))
		_, err := s.service.Register(late, "old-party", registration("Ada", "device-a", "10.0.0.1"))
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("display name is required", func() {
		s.seedInvitation("strict", 10, 2, true)
		_, err := s.service.Register(s.ctx, "strict", registration("  ", "device-a", "10.0.0.1"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *GuestServiceSuite) TestRegisterDuplicateGuard() {
	s.Run("repeat fingerprint returns the original without consuming a slot", func() {
		s.seedInvitation("party", 10, 2, true)

		first, err := s.service.Register(s.ctx, "party", registration("Ada", "device-a", "10.0.0.1"))
		s.Require().NoError(err)

		again, err := s.service.Register(s.ctx, "party", registration("Renamed Ada", "device-a", "10.0.0.1"))
		s.Require().NoError(err)

		s.True(again.Duplicate)
		s.Equal("fingerprint", again.Tier)
		s.Equal(first.Guest.ID, again.Guest.ID)
		s.Equal("Ada", again.Guest.DisplayName, "stored record wins over the new payload")

		inv, err := s.invitations.FindBySlug(s.ctx, "party")
		s.Require().NoError(err)
		s.Equal(1, inv.StandardUsed)
		s.Len(s.events.ByAction(audit.EventDuplicateGuestReturn), 1)
	})

	s.Run("rotated entropy with the same network identity hits the backup tier", func() {
		s.seedInvitation("gala", 10, 2, true)

		first, err := s.service.Register(s.ctx, "gala", registration("Ada", "device-a", "10.0.0.1"))
		s.Require().NoError(err)

		// Private browsing: canvas hash rotates, IP and browser stay.
		again, err := s.service.Register(s.ctx, "gala", registration("Ada", "rotated-canvas", "10.0.0.1"))
		s.Require().NoError(err)

		s.True(again.Duplicate)
		s.Equal("network", again.Tier)
		s.Equal(first.Guest.ID, again.Guest.ID)
	})

	s.Run("the same network identity outside the window registers fresh", func() {
		s.seedInvitation("reunion", 10, 2, true)

		_, err := s.service.Register(s.ctx, "reunion", registration("Ada", "device-a", "10.0.0.1"))
		s.Require().NoError(err)

		later := requestcontext.WithTime(context.Background(), s.now.Add(testDupWindow+time.Hour))
		result, err := s.service.Register(later, "reunion", registration("Ada", "rotated-canvas", "10.0.0.1"))
		s.Require().NoError(err)
		s.False(result.Duplicate)
	})

	s.Run("a different device on the same network registers fresh", func() {
		s.seedInvitation("family", 10, 2, true)

		_, err := s.service.Register(s.ctx, "family", registration("Ada", "device-a", "10.0.0.1"))
		s.Require().NoError(err)

		reg := registration("Grace", "device-b", "10.0.0.1")
		reg.Signals.UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
		result, err := s.service.Register(s.ctx, "family", reg)
		s.Require().NoError(err)
		s.False(result.Duplicate)

		inv, err := s.invitations.FindBySlug(s.ctx, "family")
		s.Require().NoError(err)
		s.Equal(2, inv.StandardUsed)
	})
}

// N devices race for K remaining slots: exactly K succeed, the rest get a
// quota error, and the used counter never exceeds the cap.
func (s *GuestServiceSuite) TestRegisterConcurrentQuota() {
	const (
		capacity = 2
		racers   = 5
	)
	inv := s.seedInvitation("packed", capacity, 0, true)

	results := make([]error, racers)
	var g errgroup.Group
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			reg := registration(fmt.Sprintf("Guest %d", i), fmt.Sprintf("device-%d", i), fmt.Sprintf("10.0.1.%d", i))
			_, err := s.service.Register(s.ctx, "packed", reg)
			results[i] = err
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	var wins, quotaErrs int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case dErrors.HasCode(err, dErrors.CodeQuotaExceeded):
			quotaErrs++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(capacity, wins)
	s.Equal(racers-capacity, quotaErrs)

	stored, err := s.invitations.FindBySlug(s.ctx, "packed")
	s.Require().NoError(err)
	s.Equal(capacity, stored.StandardUsed)

	guests, err := s.guests.ListByInvitation(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Len(guests, capacity)
}

// The same device racing against itself must end up with exactly one row and
// one consumed slot, whichever request wins.
func (s *GuestServiceSuite) TestRegisterConcurrentSameDevice() {
	inv := s.seedInvitation("solo", 10, 0, true)

	const racers = 4
	var g errgroup.Group
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			_, err := s.service.Register(s.ctx, "solo", registration("Ada", "device-a", "10.0.0.1"))
			return err
		})
	}
	s.Require().NoError(g.Wait())

	stored, err := s.invitations.FindBySlug(s.ctx, "solo")
	s.Require().NoError(err)
	s.Equal(1, stored.StandardUsed)

	guests, err := s.guests.ListByInvitation(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Len(guests, 1)
}

func (s *GuestServiceSuite) TestRegisterQuotaPoolsAreIndependent() {
	s.seedInvitation("mixed", 1, 1, true)

	_, err := s.service.Register(s.ctx, "mixed", registration("Ada", "device-a", "10.0.0.1"))
	s.Require().NoError(err)

	_, err = s.service.Register(s.ctx, "mixed", registration("Grace", "device-b", "10.0.0.2"))
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))

	reg := registration("Host", "device-c", "10.0.0.3")
	reg.IsTestSlot = true
	result, err := s.service.Register(s.ctx, "mixed", reg)
	s.Require().NoError(err)
	s.True(result.Guest.IsTestSlot)

	s.Len(s.events.ByAction(audit.EventQuotaExceeded), 1)
}

func (s *GuestServiceSuite) TestListByInvitation() {
	inv := s.seedInvitation("roster", 10, 2, true)

	// Distinct IPs so the backup duplicate tier does not fold them together.
	for i := 0; i < 3; i++ {
		_, err := s.service.Register(s.ctx, "roster",
			registration(fmt.Sprintf("Guest %d", i), fmt.Sprintf("device-%d", i), fmt.Sprintf("10.0.2.%d", i)))
		s.Require().NoError(err)
	}

	guests, err := s.service.ListByInvitation(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Len(guests, 3)
}
