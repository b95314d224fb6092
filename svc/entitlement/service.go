package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/avuweb/membership/pkg/logger"
)

// Service is the single place entitlement flags change. Subscription
// processing, reconciliation and coupon redemption all go through it.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("entitlement"))
	return s
}

func (s *Service) Enable(ctx context.Context, userID string) error {
	if err := s.store.UpdateEntitlement(ctx, userID, StatusActive, true, s.now().UTC()); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "entitlement enabled", logger.UserID(userID))
	return nil
}

// Disable revokes access for socios. Empresa accounts keep access and only
// get their timestamp refreshed.
func (s *Service) Disable(ctx context.Context, userID string) error {
	return s.revoke(ctx, userID, StatusInactive)
}

// MarkCancelled is Disable with the cancelled status recorded for socios.
func (s *Service) MarkCancelled(ctx context.Context, userID string) error {
	return s.revoke(ctx, userID, StatusCancelled)
}

func (s *Service) revoke(ctx context.Context, userID string, status Status) error {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if p.IsEmpresa() {
		if err := s.store.UpdateEntitlement(ctx, userID, StatusActive, true, now); err != nil {
			return err
		}
		s.log.InfoContext(ctx, "entitlement kept for business account", logger.UserID(userID))
		return nil
	}

	if err := s.store.UpdateEntitlement(ctx, userID, status, false, now); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "entitlement disabled", logger.UserID(userID), logger.Status(string(status)))
	return nil
}

// CanViewContent is false without error for unknown users.
func (s *Service) CanViewContent(ctx context.Context, userID string) (bool, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.CanViewContent(), nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.store.GetProfile(ctx, userID)
}

// CreateProfile registers a profile with no subscription. An existing
// profile for the same user is replaced.
func (s *Service) CreateProfile(ctx context.Context, p Profile) (*Profile, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return nil, ErrEmptyUserID
	}
	if !p.UserType.Valid() {
		return nil, ErrInvalidUserType
	}

	now := s.now().UTC()
	if p.SubscriptionStatus == "" {
		p.SubscriptionStatus = StatusNoSubscription
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := s.store.SaveProfile(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) ListProfiles(ctx context.Context) ([]Profile, error) {
	return s.store.ListProfiles(ctx)
}
