package coupon

import (
	"context"
	"time"
)

type Store interface {
	Create(ctx context.Context, c *Coupon) error
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	// Redeem marks the coupon used by userID only if it is unused and not
	// expired at now, in one atomic step. It returns ErrCouponNotFound when no
	// row matched the condition, and the caller classifies the reason.
	Redeem(ctx context.Context, code, userID string, now time.Time) (*Coupon, error)
	// Release undoes a redemption by userID so the code can be redeemed again.
	Release(ctx context.Context, code, userID string) error
	// List returns coupons newest first.
	List(ctx context.Context) ([]Coupon, error)
}
