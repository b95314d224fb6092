package coupon

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.Mutex
	coupons map[string]*Coupon
}

func NewMemoryStore() Store {
	return &memoryStore{coupons: make(map[string]*Coupon)}
}

func (s *memoryStore) Create(_ context.Context, c *Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coupons[c.Code]; ok {
		return ErrDuplicateCode
	}
	cp := *c
	s.coupons[c.Code] = &cp
	return nil
}

func (s *memoryStore) GetByCode(_ context.Context, code string) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[code]
	if !ok {
		return nil, ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) Redeem(_ context.Context, code, userID string, now time.Time) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[code]
	if !ok || !c.ValidAt(now) {
		return nil, ErrCouponNotFound
	}
	c.IsUsed = true
	c.UsedAt = &now
	c.UsedBy = &userID

	cp := *c
	return &cp, nil
}

func (s *memoryStore) Release(_ context.Context, code, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[code]
	if !ok || !c.IsUsed || c.UsedBy == nil || *c.UsedBy != userID {
		return ErrCouponNotFound
	}
	c.IsUsed = false
	c.UsedAt = nil
	c.UsedBy = nil
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Coupon) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}
