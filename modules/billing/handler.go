package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/pkg/mercadopago"
	billingsvc "github.com/avuweb/membership/svc/billing"
	"github.com/avuweb/membership/svc/coupon"
)

// Billing is implemented by billingsvc.Service.
type Billing interface {
	Ingest(ctx context.Context, n billingsvc.Notification) (billingsvc.IngestResult, error)
	Start(ctx context.Context, p billingsvc.StartParams) (*billingsvc.Subscription, *mercadopago.Preference, error)
	Cancel(ctx context.Context, userID string) (*billingsvc.Subscription, error)
	Payments(ctx context.Context, userID string) ([]mercadopago.Payment, error)
	SubscriptionForUser(ctx context.Context, userID string) (*billingsvc.Subscription, error)
}

// Gate is implemented by entitlement.Service.
type Gate interface {
	CanViewContent(ctx context.Context, userID string) (bool, error)
}

// Redeemer is implemented by coupon.Service.
type Redeemer interface {
	Redeem(ctx context.Context, code, userID string) (*coupon.Coupon, error)
}

// Handler serves the billing HTTP surface.
type Handler struct {
	cfg     Config
	billing Billing
	gate    Gate
	coupons Redeemer
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(cfg Config, billing Billing, gate Gate, coupons Redeemer, opts ...Option) *Handler {
	h := &Handler{
		cfg:     cfg,
		billing: billing,
		gate:    gate,
		coupons: coupons,
		log:     logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cfg.WebhookMaxBody <= 0 {
		h.cfg.WebhookMaxBody = 1 << 20
	}
	h.log = h.log.With(logger.Component("http"))
	return h
}
