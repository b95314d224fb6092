// Package coupon issues and redeems single-use activation codes.
//
// A coupon is valid while it is unused and not expired. Redemption is one
// compare-and-set in the store so concurrent attempts on the same code
// produce exactly one success. A successful redemption enables the user's
// entitlement independently of any subscription.
package coupon
