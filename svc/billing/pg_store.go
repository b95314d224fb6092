package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avuweb/membership/pkg/pg"
)

const subscriptionColumns = `id, user_id, provider_subscription_id, COALESCE(preapproval_id, ''), status,
	payment_frequency, amount, last_payment_date, next_payment_date, failed_payment_count,
	last_synced_at, provider_updated_at, last_event_at, created_at`

const eventColumns = `id, subscription_id, provider_event_id, event_type, payload, processed,
	processed_at, error_message, created_at`

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store over the subscriptions and
// subscription_events tables.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, provider_subscription_id, preapproval_id, status,
			payment_frequency, amount, last_payment_date, next_payment_date, failed_payment_count,
			last_synced_at, provider_updated_at, last_event_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sub.ID, sub.UserID, sub.ProviderSubscriptionID, sub.PreapprovalID, sub.Status,
		sub.Frequency, sub.Amount, sub.LastPaymentDate, sub.NextPaymentDate, sub.FailedPaymentCount,
		sub.LastSyncedAt, sub.ProviderUpdatedAt, sub.LastEventAt, sub.CreatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrSubscriptionExists
	}
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *pgStore) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (s *pgStore) GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error) {
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
}

func (s *pgStore) FindByProviderRef(ctx context.Context, ref string) (*Subscription, error) {
	return s.getOne(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE provider_subscription_id = $1 OR preapproval_id = $1
		ORDER BY (provider_subscription_id = $1) DESC
		LIMIT 1`, ref)
}

func (s *pgStore) getOne(ctx context.Context, query string, args ...any) (*Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, args...))
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *pgStore) SaveSubscription(ctx context.Context, sub *Subscription) error {
	return saveSubscription(ctx, s.pool, sub)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveSubscription(ctx context.Context, db execer, sub *Subscription) error {
	tag, err := db.Exec(ctx, `
		UPDATE subscriptions SET
			preapproval_id = NULLIF($3, ''),
			status = $4,
			payment_frequency = $5,
			amount = $6,
			last_payment_date = $7,
			next_payment_date = $8,
			failed_payment_count = $9,
			last_synced_at = $10,
			provider_updated_at = $11,
			last_event_at = $12
		WHERE id = $1 AND provider_subscription_id = $2`,
		sub.ID, sub.ProviderSubscriptionID, sub.PreapprovalID, sub.Status, sub.Frequency, sub.Amount,
		sub.LastPaymentDate, sub.NextPaymentDate, sub.FailedPaymentCount, sub.LastSyncedAt, sub.ProviderUpdatedAt,
		sub.LastEventAt,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderIDImmutable
	}
	return nil
}

func (s *pgStore) SyncStatus(ctx context.Context, id uuid.UUID, observed, status Status, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			status = $3,
			provider_updated_at = $4,
			last_synced_at = $4,
			next_payment_date = CASE WHEN $5 THEN NULL ELSE next_payment_date END
		WHERE id = $1 AND status = $2`,
		id, observed, status, at, status.Terminal(),
	)
	if err != nil {
		return false, fmt.Errorf("sync subscription status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgStore) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE subscriptions SET last_synced_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark subscription synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *pgStore) ListStale(ctx context.Context, before time.Time, statuses []Status) ([]Subscription, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = ANY($1) AND (last_synced_at IS NULL OR last_synced_at < $2)
		ORDER BY created_at`, names, before)
}

func (s *pgStore) ListRenewalsDue(ctx context.Context, from, to time.Time) ([]Subscription, error) {
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'active' AND next_payment_date BETWEEN $1 AND $2
		ORDER BY next_payment_date`, from, to)
}

func (s *pgStore) list(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Subscription, error) {
		sub, err := scanSubscription(row)
		if err != nil {
			return Subscription{}, err
		}
		return *sub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// RecordEvent relies on the unique provider_event_id: ON CONFLICT DO NOTHING
// returns no row, and the existing one is read back.
func (s *pgStore) RecordEvent(ctx context.Context, e *Event) (bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscription_events (id, subscription_id, provider_event_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_event_id) DO NOTHING
		RETURNING id`,
		e.ID, e.SubscriptionID, e.ProviderEventID, e.EventType, []byte(e.Payload), e.CreatedAt,
	).Scan(&id)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if pg.IsForeignKeyViolationError(err) {
			return false, ErrSubscriptionNotFound
		}
		return false, fmt.Errorf("record event: %w", err)
	}

	existing, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM subscription_events WHERE provider_event_id = $1`, e.ProviderEventID))
	if err != nil {
		return false, fmt.Errorf("read existing event: %w", err)
	}
	*e = *existing
	return false, nil
}

func (s *pgStore) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM subscription_events WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *pgStore) CompleteEvent(ctx context.Context, sub *Subscription, eventID uuid.UUID, at time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE subscription_events SET processed = TRUE, processed_at = $2, error_message = NULL
			WHERE id = $1 AND NOT processed`, eventID, at)
		if err != nil {
			return fmt.Errorf("mark event processed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrEventProcessed
		}
		return saveSubscription(ctx, tx, sub)
	})
}

func (s *pgStore) MarkEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscription_events SET processed = TRUE, processed_at = COALESCE(processed_at, $2), error_message = NULL
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *pgStore) MarkEventFailed(ctx context.Context, id uuid.UUID, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscription_events SET error_message = $2 WHERE id = $1 AND NOT processed`, id, msg)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventProcessed
	}
	return nil
}

func (s *pgStore) ListFailedEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM subscription_events
		WHERE NOT processed AND error_message IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		e, err := scanEvent(row)
		if err != nil {
			return Event{}, err
		}
		return *e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list failed events: %w", err)
	}
	return events, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ProviderSubscriptionID, &sub.PreapprovalID, &sub.Status,
		&sub.Frequency, &sub.Amount, &sub.LastPaymentDate, &sub.NextPaymentDate, &sub.FailedPaymentCount,
		&sub.LastSyncedAt, &sub.ProviderUpdatedAt, &sub.LastEventAt, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		e       Event
		payload []byte
	)
	err := row.Scan(&e.ID, &e.SubscriptionID, &e.ProviderEventID, &e.EventType, &payload, &e.Processed,
		&e.ProcessedAt, &e.ErrorMessage, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
