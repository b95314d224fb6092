package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists the subscription ledger and its event log.
type Store interface {
	// CreateSubscription fails with ErrSubscriptionExists when the user or
	// provider id is already taken.
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error)
	// FindByProviderRef matches the provider subscription id first, then the
	// preapproval id.
	FindByProviderRef(ctx context.Context, ref string) (*Subscription, error)
	// SaveSubscription fails with ErrProviderIDImmutable when the stored
	// provider id differs.
	SaveSubscription(ctx context.Context, s *Subscription) error
	// SyncStatus moves the subscription from observed to status and stamps the
	// sync time, leaving payment fields alone. It reports false without
	// writing when the stored status is no longer observed.
	SyncStatus(ctx context.Context, id uuid.UUID, observed, status Status, at time.Time) (bool, error)
	// MarkSynced stamps last_synced_at only.
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListStale returns subscriptions in statuses never synced or last synced before.
	ListStale(ctx context.Context, before time.Time, statuses []Status) ([]Subscription, error)
	// ListRenewalsDue returns active subscriptions whose next payment is in [from, to].
	ListRenewalsDue(ctx context.Context, from, to time.Time) ([]Subscription, error)

	// RecordEvent inserts e unless its ProviderEventID exists. On conflict e
	// is overwritten with the stored row and created is false.
	RecordEvent(ctx context.Context, e *Event) (created bool, err error)
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	// CompleteEvent saves s and marks the event processed in one step.
	CompleteEvent(ctx context.Context, s *Subscription, eventID uuid.UUID, at time.Time) error
	MarkEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkEventFailed records msg on an unprocessed event.
	MarkEventFailed(ctx context.Context, id uuid.UUID, msg string) error
	// ListFailedEvents returns unprocessed events carrying an error, newest first.
	ListFailedEvents(ctx context.Context, limit int) ([]Event, error)
}
