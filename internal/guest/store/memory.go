package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fete/internal/guest/models"
	id "fete/pkg/domain"
	"fete/pkg/platform/sentinel"
)

type fingerprintKey struct {
	invitationID      id.InvitationID
	deviceFingerprint string
}

// MemoryStore mirrors the composite unique constraint for unit tests.
type MemoryStore struct {
	mu            sync.RWMutex
	guests        map[id.GuestID]*models.Guest
	byFingerprint map[fingerprintKey]id.GuestID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		guests:        make(map[id.GuestID]*models.Guest),
		byFingerprint: make(map[fingerprintKey]id.GuestID),
	}
}

func (s *MemoryStore) Create(_ context.Context, guest *models.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fingerprintKey{guest.InvitationID, guest.DeviceFingerprint}
	if _, exists := s.byFingerprint[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *guest
	s.guests[guest.ID] = &cp
	s.byFingerprint[key] = guest.ID
	return nil
}

func (s *MemoryStore) FindByFingerprint(_ context.Context, invitationID id.InvitationID, deviceFingerprint string) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guestID, ok := s.byFingerprint[fingerprintKey{invitationID, deviceFingerprint}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.guests[guestID]
	return &cp, nil
}

func (s *MemoryStore) FindRecentByNetwork(_ context.Context, invitationID id.InvitationID, ipAddress, userAgentHash string, since time.Time) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.Guest
	for _, guest := range s.guests {
		if guest.InvitationID != invitationID || guest.IPAddress != ipAddress || guest.UserAgentHash != userAgentHash {
			continue
		}
		if guest.FirstSeenAt.Before(since) {
			continue
		}
		if newest == nil || guest.FirstSeenAt.After(newest.FirstSeenAt) {
			newest = guest
		}
	}
	if newest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *MemoryStore) ListByInvitation(_ context.Context, invitationID id.InvitationID) ([]*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Guest
	for _, guest := range s.guests {
		if guest.InvitationID == invitationID {
			cp := *guest
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return out, nil
}
