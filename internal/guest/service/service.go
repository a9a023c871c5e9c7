// Package service implements guest registration: availability guard,
// two-tier duplicate detection, and atomic slot reservation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fete/internal/guest/fingerprint"
	"fete/internal/guest/models"
	"fete/internal/guest/store"
	invmodels "fete/internal/invitation/models"
	invstore "fete/internal/invitation/store"
	"fete/internal/platform/metrics"
	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
	"fete/pkg/platform/audit"
	"fete/pkg/platform/sentinel"
	"fete/pkg/platform/tx"
	"fete/pkg/requestcontext"
)

// registerAttempts bounds retries when two first visits from the same device
// race: the loser's insert hits the unique index, and the retry finds the
// winner's row and returns it idempotently.
const registerAttempts = 3

// Duplicate tiers reported in results, logs, and metrics.
const (
	tierFingerprint = "fingerprint"
	tierNetwork     = "network"
)

type Service struct {
	invitations invstore.Store
	guests      store.Store
	engine      *fingerprint.Engine
	runner      tx.Runner

	duplicateWindow time.Duration

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

func New(invitations invstore.Store, guests store.Store, engine *fingerprint.Engine, runner tx.Runner, duplicateWindow time.Duration, opts ...Option) (*Service, error) {
	if invitations == nil {
		return nil, fmt.Errorf("invitation store is required")
	}
	if guests == nil {
		return nil, fmt.Errorf("guest store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("fingerprint engine is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if duplicateWindow <= 0 {
		return nil, fmt.Errorf("duplicate window must be positive")
	}

	s := &Service{
		invitations:     invitations,
		guests:          guests,
		engine:          engine,
		runner:          runner,
		duplicateWindow: duplicateWindow,
		tracer:          otel.Tracer("fete/guest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registration is the input for one registration attempt. Signals come from
// the client; IPAddress comes from the connection, never the payload.
type Registration struct {
	DisplayName string
	Signals     fingerprint.Signals
	IPAddress   string
	IsTestSlot  bool
}

// Result reports the guest and whether this visit was a duplicate return.
// Duplicate returns carry the original registration unchanged; no slot is
// consumed and no row is written.
type Result struct {
	Guest     *models.Guest
	Duplicate bool
	// Tier is "fingerprint" or "network" on duplicates, empty otherwise.
	Tier string
}

// Register handles a visit to a public invitation slug.
//
// Happy path: availability check, duplicate checks, conditional slot
// reservation, and the guest insert, all inside one transaction. A repeat
// visit short-circuits at either duplicate tier and returns the existing
// guest with success semantics; the client cannot distinguish a first visit
// from a return except by the returned record's FirstSeenAt.
func (s *Service) Register(ctx context.Context, slug string, reg Registration) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "guest.register",
		trace.WithAttributes(attribute.Bool("test_slot", reg.IsTestSlot)))
	defer span.End()

	if slug == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "slug is required")
	}

	deviceFingerprint := s.engine.Compute(reg.Signals)
	userAgentHash := s.engine.HashUserAgent(reg.Signals.UserAgent)

	var (
		result *Result
		err    error
	)
	for attempt := 0; attempt < registerAttempts; attempt++ {
		result, err = s.register(ctx, slug, reg, deviceFingerprint, userAgentHash)
		if err != nil && dErrors.HasCode(err, dErrors.CodeConflict) {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.report(ctx, result)
	return result, nil
}

func (s *Service) register(ctx context.Context, slug string, reg Registration, deviceFingerprint, userAgentHash string) (*Result, error) {
	now := requestcontext.Now(ctx)
	var result *Result

	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.invitations.FindBySlug(txCtx, slug)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "invitation not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load invitation")
		}
		if err := inv.CheckAvailable(now); err != nil {
			return err
		}

		// Primary duplicate tier: exact fingerprint match.
		existing, err := s.guests.FindByFingerprint(txCtx, inv.ID, deviceFingerprint)
		if err == nil {
			result = &Result{Guest: existing, Duplicate: true, Tier: tierFingerprint}
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "fingerprint lookup failed")
		}

		// Backup tier: same IP and user agent seen recently. Catches private
		// browsing and cleared storage, where entropy signals rotate but the
		// network identity does not.
		since := now.Add(-s.duplicateWindow)
		existing, err = s.guests.FindRecentByNetwork(txCtx, inv.ID, reg.IPAddress, userAgentHash, since)
		if err == nil {
			result = &Result{Guest: existing, Duplicate: true, Tier: tierNetwork}
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "network lookup failed")
		}

		pool := invmodels.PoolStandard
		if reg.IsTestSlot {
			pool = invmodels.PoolTest
		}
		if err := s.invitations.ReserveSlot(txCtx, inv.ID, pool, now); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrQuotaExhausted):
				if s.metrics != nil {
					s.metrics.QuotaExhaustions.WithLabelValues(string(pool)).Inc()
				}
				audit.Log(txCtx, s.logger, s.auditPublisher, audit.Event{
					Action:       audit.EventQuotaExceeded,
					InvitationID: inv.ID,
				}, "pool", string(pool))
				return dErrors.Newf(dErrors.CodeQuotaExceeded, "no %s slots remaining", pool)
			case errors.Is(err, sentinel.ErrInvalidState):
				// Lost a race with expiry; re-derive the precise reason.
				if refreshed, ferr := s.invitations.FindBySlug(txCtx, slug); ferr == nil {
					if aerr := refreshed.CheckAvailable(now); aerr != nil {
						return aerr
					}
				}
				return dErrors.New(dErrors.CodeExpired, "invitation is no longer active")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve slot")
		}

		guest, err := models.New(id.NewGuestID(), inv.ID, reg.DisplayName,
			deviceFingerprint, reg.IPAddress, userAgentHash, reg.IsTestSlot, now)
		if err != nil {
			return err
		}
		if err := s.guests.Create(txCtx, guest); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "concurrent registration from the same device")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create guest")
		}
		result = &Result{Guest: guest}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) report(ctx context.Context, result *Result) {
	if result.Duplicate {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action:       audit.EventDuplicateGuestReturn,
			InvitationID: result.Guest.InvitationID,
		}, "tier", result.Tier)
		if s.metrics != nil {
			s.metrics.DuplicateReturns.WithLabelValues(result.Tier).Inc()
		}
		return
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:       audit.EventGuestRegistered,
		InvitationID: result.Guest.InvitationID,
	}, "test_slot", result.Guest.IsTestSlot)
	if s.metrics != nil {
		s.metrics.GuestsRegistered.Inc()
	}
}

// ListByInvitation returns every guest under an invitation for admin views.
func (s *Service) ListByInvitation(ctx context.Context, invitationID id.InvitationID) ([]*models.Guest, error) {
	guests, err := s.guests.ListByInvitation(ctx, invitationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list guests")
	}
	return guests, nil
}
