package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/svc/entitlement"
)

const (
	ReconcileTaskName = "billing.reconcile"
	reconcileLeaseKey = "billing:reconcile"
)

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Skipped bool // lease held elsewhere
	Checked int
	Drifted int
	Failed  int
}

// Reconciler corrects drift between stale local subscriptions and the
// provider. Only one replica sweeps at a time.
type Reconciler struct {
	store        Store
	provider     Provider
	entitlements Entitlements
	locker       Locker
	cfg          Config
	log          *slog.Logger
	now          func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLocker(l Locker) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
	}
}

func WithReconcilerConfig(cfg Config) ReconcilerOption {
	return func(r *Reconciler) { r.cfg = cfg }
}

func NewReconciler(store Store, provider Provider, entitlements Entitlements, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:        store,
		provider:     provider,
		entitlements: entitlements,
		locker:       NewLocalLocker(),
		cfg:          DefaultConfig(),
		log:          logger.Discard(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("reconciler"))
	return r
}

// Run performs one sweep. Per-subscription failures are logged and counted,
// never returned. The lease is extended after every subscription and the
// sweep stops once it is lost.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	lease, ok, err := r.locker.TryAcquire(ctx, reconcileLeaseKey, r.cfg.LeaseTTL)
	if err != nil {
		return report, fmt.Errorf("acquire reconcile lease: %w", err)
	}
	if !ok {
		r.log.InfoContext(ctx, "reconciliation already running elsewhere")
		report.Skipped = true
		return report, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.WarnContext(ctx, "failed to release reconcile lease", logger.Error(err))
		}
	}()

	start := r.now()
	stale, err := r.store.ListStale(ctx, start.Add(-r.cfg.StaleAfter), []Status{StatusActive, StatusPending})
	if err != nil {
		return report, fmt.Errorf("list stale subscriptions: %w", err)
	}

	r.log.InfoContext(ctx, "starting reconciliation", slog.Int("stale", len(stale)))
	for i := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		drifted, err := r.reconcileOne(ctx, &stale[i])
		if err != nil {
			report.Failed++
			r.log.WarnContext(ctx, "failed to sync subscription",
				logger.SubscriptionID(stale[i].ID), logger.Error(err))
		} else if drifted {
			report.Drifted++
		}
		if err := lease.Extend(ctx); err != nil {
			return report, fmt.Errorf("extend reconcile lease: %w", err)
		}
	}

	r.log.InfoContext(ctx, "reconciliation finished",
		slog.Int("checked", report.Checked),
		slog.Int("drifted", report.Drifted),
		slog.Int("failed", report.Failed),
		logger.Duration(r.now().Sub(start)),
	)
	return report, nil
}

// Handle adapts Run to a periodic queue handler.
func (r *Reconciler) Handle(ctx context.Context) error {
	_, err := r.Run(ctx)
	return err
}

// reconcileOne re-reads the row after the provider call so events processed
// during the fetch are never overwritten.
func (r *Reconciler) reconcileOne(ctx context.Context, sub *Subscription) (bool, error) {
	remote, err := r.provider.GetSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return false, err
	}

	current, err := r.store.GetSubscription(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	if current.Status != StatusActive && current.Status != StatusPending {
		r.log.DebugContext(ctx, "subscription changed during sync",
			logger.SubscriptionID(sub.ID), logger.Status(current.Status.String()))
		return false, nil
	}

	now := r.now().UTC()
	remoteStatus := LedgerStatusFromProvider(remote.Status)
	if remoteStatus == StatusUnknown {
		r.log.WarnContext(ctx, "provider reported unknown status",
			logger.SubscriptionID(sub.ID), logger.Status(remote.Status))
	}
	if remoteStatus == StatusUnknown || remoteStatus == current.Status {
		return false, r.store.MarkSynced(ctx, sub.ID, now)
	}

	if err := r.applyEffect(ctx, current.UserID, remoteStatus); err != nil {
		return false, err
	}
	moved, err := r.store.SyncStatus(ctx, sub.ID, current.Status, remoteStatus, now)
	if err != nil {
		return false, err
	}
	if !moved {
		// An event won the race; entitlement follows whatever it wrote.
		latest, err := r.store.GetSubscription(ctx, sub.ID)
		if err != nil {
			return false, err
		}
		r.log.InfoContext(ctx, "subscription changed during sync",
			logger.SubscriptionID(sub.ID), logger.Status(latest.Status.String()))
		return false, r.applyEffect(ctx, latest.UserID, latest.Status)
	}

	r.log.InfoContext(ctx, "corrected subscription drift",
		logger.SubscriptionID(sub.ID),
		slog.String("from", current.Status.String()),
		slog.String("to", remoteStatus.String()),
	)
	return true, nil
}

func (r *Reconciler) applyEffect(ctx context.Context, userID string, status Status) error {
	err := runEffect(ctx, r.entitlements, userID, effectForStatus(status))
	if errors.Is(err, entitlement.ErrProfileNotFound) {
		r.log.ErrorContext(ctx, "profile not found for entitlement change", logger.UserID(userID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("entitlement: %w", err)
	}
	return nil
}

// effectForStatus enables only for active; every other status revokes.
func effectForStatus(s Status) Effect {
	switch s {
	case StatusActive:
		return EffectEnable
	case StatusCancelled:
		return EffectCancel
	default:
		return EffectDisable
	}
}
