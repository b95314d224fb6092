package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profileColumns = `user_id, user_type, email, full_name, address, identity_number, phone_number, rut,
	subscription_status, is_subscription_active, subscription_last_updated, created_at, updated_at`

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store over the profiles table.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return p, nil
}

func (s *pgStore) SaveProfile(ctx context.Context, p *Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			user_type = EXCLUDED.user_type,
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			address = EXCLUDED.address,
			identity_number = EXCLUDED.identity_number,
			phone_number = EXCLUDED.phone_number,
			rut = EXCLUDED.rut,
			subscription_status = EXCLUDED.subscription_status,
			is_subscription_active = EXCLUDED.is_subscription_active,
			subscription_last_updated = EXCLUDED.subscription_last_updated,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.UserType, p.Email, p.FullName, p.Address, p.IdentityNumber, p.PhoneNumber, p.RUT,
		p.SubscriptionStatus, p.IsSubscriptionActive, p.SubscriptionLastUpdated, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	return nil
}

func (s *pgStore) UpdateEntitlement(ctx context.Context, userID string, status Status, active bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET subscription_status = $2, is_subscription_active = $3,
		    subscription_last_updated = $4, updated_at = $4
		WHERE user_id = $1`,
		userID, status, active, at,
	)
	if err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *pgStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY user_id`)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	profiles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Profile, error) {
		p, err := scanProfile(row)
		if err != nil {
			return Profile{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return profiles, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.UserType, &p.Email, &p.FullName, &p.Address, &p.IdentityNumber,
		&p.PhoneNumber, &p.RUT, &p.SubscriptionStatus, &p.IsSubscriptionActive,
		&p.SubscriptionLastUpdated, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
