package coupon

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avuweb/membership/pkg/logger"
)

// Enabler grants content access after a successful redemption.
type Enabler interface {
	Enable(ctx context.Context, userID string) error
}

type Service struct {
	store   Store
	enabler Enabler
	log     *slog.Logger
	now     func() time.Time
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

func NewService(store Store, enabler Enabler, opts ...Option) *Service {
	s := &Service{store: store, enabler: enabler, log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("coupon"))
	return s
}

type CreateParams struct {
	CreatedBy        string
	ExpiresAt        time.Time
	MonthsOfValidity int
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*Coupon, error) {
	now := s.now().UTC()
	if !p.ExpiresAt.After(now) {
		return nil, ErrInvalidExpiry
	}
	if p.MonthsOfValidity <= 0 {
		p.MonthsOfValidity = DefaultMonthsOfValidity
	}

	c := &Coupon{
		ID:               uuid.New(),
		Code:             GenerateCode(),
		ExpiresAt:        p.ExpiresAt.UTC(),
		MonthsOfValidity: p.MonthsOfValidity,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "coupon created", slog.String("coupon_id", c.ID.String()), slog.Time("expires_at", c.ExpiresAt))
	return c, nil
}

// Redeem validates and consumes code for userID, then enables the user.
// Failures are ErrCouponNotFound, ErrCouponAlreadyUsed or ErrCouponExpired.
// When enabling fails the redemption is released and ErrEnableFailed is
// returned.
func (s *Service) Redeem(ctx context.Context, code, userID string) (*Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	now := s.now().UTC()
	c, err := s.store.Redeem(ctx, code, userID, now)
	if errors.Is(err, ErrCouponNotFound) {
		return nil, s.classify(ctx, code)
	}
	if err != nil {
		return nil, err
	}

	if err := s.enabler.Enable(ctx, userID); err != nil {
		s.log.ErrorContext(ctx, "enable failed after coupon redemption", logger.UserID(userID), logger.Error(err))
		if rerr := s.store.Release(context.WithoutCancel(ctx), code, userID); rerr != nil {
			s.log.ErrorContext(ctx, "failed to release coupon", logger.UserID(userID), logger.Error(rerr))
			return nil, errors.Join(ErrEnableFailed, err, rerr)
		}
		return nil, errors.Join(ErrEnableFailed, err)
	}

	s.log.InfoContext(ctx, "coupon redeemed", logger.UserID(userID), slog.String("coupon_id", c.ID.String()))
	return c, nil
}

// classify explains why a redemption matched no row.
func (s *Service) classify(ctx context.Context, code string) error {
	c, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if c.IsUsed {
		return ErrCouponAlreadyUsed
	}
	return ErrCouponExpired
}

func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.store.List(ctx)
}
