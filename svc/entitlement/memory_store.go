package entitlement

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemoryStore returns a Store backed by a map. Profiles are copied in and out.
func NewMemoryStore(profiles ...Profile) Store {
	s := &memoryStore{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	return s
}

func (s *memoryStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (s *memoryStore) SaveProfile(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[p.UserID] = *p
	return nil
}

func (s *memoryStore) UpdateEntitlement(_ context.Context, userID string, status Status, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	p.SubscriptionStatus = status
	p.IsSubscriptionActive = active
	p.SubscriptionLastUpdated = &at
	p.UpdatedAt = at
	s.profiles[userID] = p
	return nil
}

func (s *memoryStore) ListProfiles(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Profile) int { return cmp.Compare(a.UserID, b.UserID) })
	return out, nil
}
