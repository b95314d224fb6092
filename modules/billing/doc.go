// Package billing is the HTTP surface of the membership service.
//
// It exposes the signed provider webhook, the content entitlement check,
// coupon redemption and the subscription endpoints. Webhook requests are
// verified with HMAC-SHA256 over "{request_id}.{ts}.{body}" before the body
// is parsed; accepted notifications are stored and queued, never applied
// inline.
package billing
