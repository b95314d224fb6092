package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avuweb/membership/pkg/eventbus"
	"github.com/avuweb/membership/pkg/logger"
)

const (
	RenewalsTaskName  = "billing.renewals"
	RoutingRenewalDue = "billing.renewal.upcoming"
	renewalsLeaseKey  = "billing:renewals"
)

// RenewalNotice is published for each active subscription charged soon.
type RenewalNotice struct {
	SubscriptionID  string    `json:"subscription_id"`
	UserID          string    `json:"user_id"`
	Amount          int64     `json:"amount"`
	Frequency       string    `json:"frequency"`
	NextPaymentDate time.Time `json:"next_payment_date"`
}

// Renewals announces upcoming charges within the configured window.
type Renewals struct {
	store     Store
	publisher eventbus.Publisher
	locker    Locker
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

type RenewalsOption func(*Renewals)

func WithRenewalsLogger(l *slog.Logger) RenewalsOption {
	return func(r *Renewals) {
		if l != nil {
			r.log = l
		}
	}
}

func WithRenewalsClock(now func() time.Time) RenewalsOption {
	return func(r *Renewals) {
		if now != nil {
			r.now = now
		}
	}
}

func WithRenewalsLocker(l Locker) RenewalsOption {
	return func(r *Renewals) {
		if l != nil {
			r.locker = l
		}
	}
}

func WithRenewalsConfig(cfg Config) RenewalsOption {
	return func(r *Renewals) { r.cfg = cfg }
}

func NewRenewals(store Store, publisher eventbus.Publisher, opts ...RenewalsOption) *Renewals {
	r := &Renewals{
		store:     store,
		publisher: publisher,
		locker:    NewLocalLocker(),
		cfg:       DefaultConfig(),
		log:       logger.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.publisher == nil {
		r.publisher = eventbus.NewNoopPublisher(r.log)
	}
	r.log = r.log.With(logger.Component("renewals"))
	return r
}

// Run publishes one notice per due subscription and returns how many were
// sent. It returns zero without error when another replica holds the lease,
// and stops early once the lease is lost.
func (r *Renewals) Run(ctx context.Context) (int, error) {
	lease, ok, err := r.locker.TryAcquire(ctx, renewalsLeaseKey, r.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("acquire renewals lease: %w", err)
	}
	if !ok {
		r.log.InfoContext(ctx, "renewals check already running elsewhere")
		return 0, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.WarnContext(ctx, "failed to release renewals lease", logger.Error(err))
		}
	}()

	now := r.now().UTC()
	due, err := r.store.ListRenewalsDue(ctx, now, now.Add(r.cfg.RenewalWindow))
	if err != nil {
		return 0, fmt.Errorf("list renewals: %w", err)
	}

	sent := 0
	for _, sub := range due {
		notice := RenewalNotice{
			SubscriptionID:  sub.ID.String(),
			UserID:          sub.UserID,
			Amount:          sub.Amount,
			Frequency:       string(sub.Frequency),
			NextPaymentDate: *sub.NextPaymentDate,
		}
		if err := r.publisher.Publish(ctx, RoutingRenewalDue, notice); err != nil {
			r.log.WarnContext(ctx, "failed to publish renewal notice",
				logger.SubscriptionID(sub.ID), logger.Error(err))
		} else {
			r.log.InfoContext(ctx, "upcoming payment",
				logger.SubscriptionID(sub.ID),
				logger.UserID(sub.UserID),
				slog.Time("next_payment_date", *sub.NextPaymentDate),
			)
			sent++
		}
		if err := lease.Extend(ctx); err != nil {
			return sent, fmt.Errorf("extend renewals lease: %w", err)
		}
	}
	return sent, nil
}

// Handle adapts Run to a periodic queue handler.
func (r *Renewals) Handle(ctx context.Context) error {
	_, err := r.Run(ctx)
	return err
}
