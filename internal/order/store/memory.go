package store

import (
	"context"
	"sync"
	"time"

	"fete/internal/order/models"
	id "fete/pkg/domain"
	"fete/pkg/platform/sentinel"
)

// MemoryStore keeps orders in a map. It mirrors every constraint the
// Postgres store enforces so unit tests exercise the same semantics.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[id.OrderID]*models.Order
}

func NewMemory() *MemoryStore {
	return &MemoryStore{orders: make(map[id.OrderID]*models.Order)}
}

func (s *MemoryStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orders {
		if existing.OrderNumber == order.OrderNumber {
			return sentinel.ErrConflict
		}
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, orderID id.OrderID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *MemoryStore) ApprovedPlan(_ context.Context, userID id.UserID) (models.PlanCode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var earliest *models.Order
	for _, order := range s.orders {
		if order.UserID != userID || order.Status != models.StatusApproved {
			continue
		}
		if earliest == nil || order.CreatedAt.Before(earliest.CreatedAt) {
			earliest = order
		}
	}
	if earliest == nil {
		return "", false, nil
	}
	return earliest.PlanCode, true, nil
}

func (s *MemoryStore) Execute(_ context.Context, orderID id.OrderID, validate func(*models.Order) error, mutate func(*models.Order)) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(order); err != nil {
		return nil, err
	}
	mutate(order)
	cp := *order
	return &cp, nil
}

func (s *MemoryStore) ExpireStale(_ context.Context, cutoff, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for _, order := range s.orders {
		if order.Status.IsTerminal() || !order.CreatedAt.Before(cutoff) {
			continue
		}
		order.ApplyExpiry(now)
		flipped++
	}
	return flipped, nil
}
