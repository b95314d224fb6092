package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avuweb/membership/pkg/pg"
)

const couponColumns = `id, code, is_used, used_at, used_by, expires_at, months_of_validity, created_by, created_at`

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Create(ctx context.Context, c *Coupon) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		c.ID, c.Code, c.IsUsed, c.UsedAt, c.UsedBy, c.ExpiresAt, c.MonthsOfValidity, c.CreatedBy, c.CreatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

func (s *pgStore) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	c, err := scanCoupon(s.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// Redeem is a single conditional UPDATE, so two concurrent redemptions of
// the same code cannot both match.
func (s *pgStore) Redeem(ctx context.Context, code, userID string, now time.Time) (*Coupon, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE coupons
		SET is_used = TRUE, used_at = $3, used_by = $2
		WHERE code = $1 AND NOT is_used AND expires_at > $3
		RETURNING `+couponColumns,
		code, userID, now,
	)
	c, err := scanCoupon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redeem coupon: %w", err)
	}
	return c, nil
}

func (s *pgStore) Release(ctx context.Context, code, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE coupons SET is_used = FALSE, used_at = NULL, used_by = NULL
		WHERE code = $1 AND is_used AND used_by = $2`, code, userID)
	if err != nil {
		return fmt.Errorf("release coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (s *pgStore) List(ctx context.Context) ([]Coupon, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Coupon, error) {
		c, err := scanCoupon(row)
		if err != nil {
			return Coupon{}, err
		}
		return *c, nil
	})
}

func scanCoupon(row pgx.Row) (*Coupon, error) {
	var (
		c         Coupon
		createdBy *string
	)
	err := row.Scan(&c.ID, &c.Code, &c.IsUsed, &c.UsedAt, &c.UsedBy, &c.ExpiresAt,
		&c.MonthsOfValidity, &createdBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if createdBy != nil {
		c.CreatedBy = *createdBy
	}
	return &c, nil
}
