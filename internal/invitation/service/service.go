// Package service exposes the guest-facing invitation surface: slug lookup
// with lazy expiry, and the periodic job that persists expiry flips.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fete/internal/invitation/models"
	"fete/internal/invitation/store"
	"fete/internal/platform/metrics"
	dErrors "fete/pkg/domain-errors"
	"fete/pkg/platform/audit"
	"fete/pkg/platform/sentinel"
	"fete/pkg/requestcontext"
)

type Service struct {
	invitations store.Store

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
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

func New(invitations store.Store, opts ...Option) (*Service, error) {
	if invitations == nil {
		return nil, fmt.Errorf("invitation store is required")
	}
	s := &Service{invitations: invitations}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PublicView is the slug-facing projection of an invitation. It exposes
// remaining counts but never the order, purchaser, or internal ids.
type PublicView struct {
	Slug              string     `json:"slug"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	StandardRemaining int        `json:"standard_remaining"`
	TestRemaining     int        `json:"test_remaining"`
}

// GetBySlug resolves a public slug, applying lazy expiry: a stored-active
// invitation whose window has passed reports expired even before the periodic
// job flips the row. Unknown slugs and pending invitations both map to coded
// errors so the transport can choose its status codes.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*PublicView, error) {
	if slug == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "slug is required")
	}

	inv, err := s.invitations.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invitation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load invitation")
	}

	now := requestcontext.Now(ctx)
	if err := inv.CheckAvailable(now); err != nil {
		return nil, err
	}

	return &PublicView{
		Slug:              inv.Slug,
		ExpiresAt:         inv.ExpiresAt,
		StandardRemaining: inv.Remaining(models.PoolStandard),
		TestRemaining:     inv.Remaining(models.PoolTest),
	}, nil
}

// ExpireLapsed persists the lazy-expiry flip for every invitation whose
// window has passed. Idempotent; the periodic job calls it on a timer.
func (s *Service) ExpireLapsed(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	flipped, err := s.invitations.ExpireLapsed(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire invitations")
	}
	if flipped > 0 {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: audit.EventInvitationExpired,
		}, "count", flipped)
		if s.metrics != nil {
			s.metrics.InvitationsExpired.Add(float64(flipped))
		}
	}
	return flipped, nil
}
