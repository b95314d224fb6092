package billing

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	events map[uuid.UUID]*Event
	byKey  map[string]uuid.UUID // provider event id -> event id
}

func NewMemoryStore() Store {
	return &memoryStore{
		subs:   make(map[uuid.UUID]*Subscription),
		events: make(map[uuid.UUID]*Event),
		byKey:  make(map[string]uuid.UUID),
	}
}

func (m *memoryStore) CreateSubscription(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.subs {
		if existing.UserID == s.UserID || existing.ProviderSubscriptionID == s.ProviderSubscriptionID {
			return ErrSubscriptionExists
		}
	}
	m.subs[s.ID] = s.clone()
	return nil
}

func (m *memoryStore) GetSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.clone(), nil
}

func (m *memoryStore) GetSubscriptionByUser(_ context.Context, userID string) (*Subscription, error) {
	return m.find(func(s *Subscription) bool { return s.UserID == userID })
}

func (m *memoryStore) FindByProviderRef(_ context.Context, ref string) (*Subscription, error) {
	if s, err := m.find(func(s *Subscription) bool { return s.ProviderSubscriptionID == ref }); err == nil {
		return s, nil
	}
	return m.find(func(s *Subscription) bool { return s.PreapprovalID != "" && s.PreapprovalID == ref })
}

func (m *memoryStore) find(match func(*Subscription) bool) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.subs {
		if match(s) {
			return s.clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *memoryStore) SaveSubscription(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(s)
}

func (m *memoryStore) saveLocked(s *Subscription) error {
	existing, ok := m.subs[s.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if existing.ProviderSubscriptionID != s.ProviderSubscriptionID {
		return ErrProviderIDImmutable
	}
	m.subs[s.ID] = s.clone()
	return nil
}

func (m *memoryStore) SyncStatus(_ context.Context, id uuid.UUID, observed, status Status, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[id]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if s.Status != observed {
		return false, nil
	}
	s.Status = status
	s.ProviderUpdatedAt = &at
	s.LastSyncedAt = &at
	if status.Terminal() {
		s.NextPaymentDate = nil
	}
	return true, nil
}

func (m *memoryStore) MarkSynced(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.LastSyncedAt = &at
	return nil
}

func (m *memoryStore) ListStale(_ context.Context, before time.Time, statuses []Status) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Subscription
	for _, s := range m.subs {
		if !slices.Contains(statuses, s.Status) {
			continue
		}
		if s.LastSyncedAt == nil || s.LastSyncedAt.Before(before) {
			out = append(out, *s.clone())
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *memoryStore) ListRenewalsDue(_ context.Context, from, to time.Time) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Subscription
	for _, s := range m.subs {
		if s.Status != StatusActive || s.NextPaymentDate == nil {
			continue
		}
		if next := *s.NextPaymentDate; !next.Before(from) && !next.After(to) {
			out = append(out, *s.clone())
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int { return a.NextPaymentDate.Compare(*b.NextPaymentDate) })
	return out, nil
}

func (m *memoryStore) RecordEvent(_ context.Context, e *Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[e.ProviderEventID]; ok {
		*e = *cloneEvent(m.events[id])
		return false, nil
	}
	if _, ok := m.subs[e.SubscriptionID]; !ok {
		return false, ErrSubscriptionNotFound
	}
	m.events[e.ID] = cloneEvent(e)
	m.byKey[e.ProviderEventID] = e.ID
	return true, nil
}

func (m *memoryStore) GetEvent(_ context.Context, id uuid.UUID) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return cloneEvent(e), nil
}

func (m *memoryStore) CompleteEvent(_ context.Context, s *Subscription, eventID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	if e.Processed {
		return ErrEventProcessed
	}
	if err := m.saveLocked(s); err != nil {
		return err
	}
	markProcessed(e, at)
	return nil
}

func (m *memoryStore) MarkEventProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if !e.Processed {
		markProcessed(e, at)
	}
	return nil
}

func (m *memoryStore) MarkEventFailed(_ context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if e.Processed {
		return ErrEventProcessed
	}
	e.ErrorMessage = &msg
	return nil
}

func (m *memoryStore) ListFailedEvents(_ context.Context, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if !e.Processed && e.ErrorMessage != nil {
			out = append(out, *cloneEvent(e))
		}
	}
	slices.SortFunc(out, func(a, b Event) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func markProcessed(e *Event, at time.Time) {
	e.Processed = true
	e.ProcessedAt = &at
	e.ErrorMessage = nil
}

func cloneEvent(e *Event) *Event {
	cp := *e
	cp.Payload = bytes.Clone(e.Payload)
	cp.ProcessedAt = clonePtr(e.ProcessedAt)
	cp.ErrorMessage = clonePtr(e.ErrorMessage)
	return &cp
}
