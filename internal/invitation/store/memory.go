package store

import (
	"context"
	"sync"
	"time"

	"fete/internal/invitation/models"
	id "fete/pkg/domain"
	"fete/pkg/platform/sentinel"
)

// MemoryStore mirrors the Postgres constraints (unique slug, unique order,
// capped counters) for unit tests.
type MemoryStore struct {
	mu          sync.RWMutex
	invitations map[id.InvitationID]*models.Invitation
	bySlug      map[string]id.InvitationID
	byOrder     map[id.OrderID]id.InvitationID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		invitations: make(map[id.InvitationID]*models.Invitation),
		bySlug:      make(map[string]id.InvitationID),
		byOrder:     make(map[id.OrderID]id.InvitationID),
	}
}

func (s *MemoryStore) Create(_ context.Context, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySlug[inv.Slug]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byOrder[inv.OrderID]; exists {
		return sentinel.ErrConflict
	}
	cp := *inv
	s.invitations[inv.ID] = &cp
	s.bySlug[inv.Slug] = inv.ID
	s.byOrder[inv.OrderID] = inv.ID
	return nil
}

func (s *MemoryStore) FindByOrderID(_ context.Context, orderID id.OrderID) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invID, ok := s.byOrder[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.invitations[invID]
	return &cp, nil
}

func (s *MemoryStore) FindBySlug(_ context.Context, slug string) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invID, ok := s.bySlug[slug]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.invitations[invID]
	return &cp, nil
}

func (s *MemoryStore) Execute(_ context.Context, invitationID id.InvitationID, validate func(*models.Invitation) error, mutate func(*models.Invitation)) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[invitationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(inv); err != nil {
		return nil, err
	}
	mutate(inv)
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) ReserveSlot(_ context.Context, invitationID id.InvitationID, pool models.Pool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[invitationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !inv.IsActive {
		return sentinel.ErrInvalidState
	}
	if inv.Remaining(pool) <= 0 {
		return sentinel.ErrQuotaExhausted
	}
	if pool == models.PoolTest {
		inv.TestUsed++
	} else {
		inv.StandardUsed++
	}
	inv.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ExpireLapsed(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for _, inv := range s.invitations {
		if inv.IsActive && inv.IsExpired(now) {
			inv.IsActive = false
			inv.UpdatedAt = now
			flipped++
		}
	}
	return flipped, nil
}
