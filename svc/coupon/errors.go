package coupon

import "errors"

var (
	ErrCouponNotFound    = errors.New("coupon: not found")
	ErrCouponAlreadyUsed = errors.New("coupon: already used")
	ErrCouponExpired     = errors.New("coupon: expired")
	ErrEmptyCode         = errors.New("coupon: code is required")
	ErrEmptyUserID       = errors.New("coupon: user id is required")
	ErrInvalidExpiry     = errors.New("coupon: expiry must be in the future")
	ErrDuplicateCode     = errors.New("coupon: code already exists")
	ErrEnableFailed      = errors.New("coupon: entitlement was not enabled")
)
