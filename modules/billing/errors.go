package billing

import "net/http"

// HTTPError is an error with its response status. Key is a stable machine
// code; Message is what the body's "error" field carries.
type HTTPError struct {
	Code    int
	Key     string
	Message string
}

func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrMissingHeaders   = HTTPError{Code: http.StatusBadRequest, Key: "missing_headers", Message: "Missing headers"}
	ErrInvalidSignature = HTTPError{Code: http.StatusUnauthorized, Key: "invalid_signature", Message: "Invalid signature"}
	ErrInvalidJSON      = HTTPError{Code: http.StatusBadRequest, Key: "invalid_json", Message: "Invalid JSON"}
	ErrMissingFields    = HTTPError{Code: http.StatusBadRequest, Key: "missing_fields", Message: "Missing required fields"}
	ErrBodyTooLarge     = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "body_too_large", Message: "Request body too large"}

	ErrSubscriptionNotFound = HTTPError{Code: http.StatusNotFound, Key: "subscription_not_found", Message: "Subscription not found"}
	ErrSubscriptionExists   = HTTPError{Code: http.StatusConflict, Key: "subscription_exists", Message: "Subscription already exists"}
	ErrSubscriptionEnded    = HTTPError{Code: http.StatusConflict, Key: "subscription_ended", Message: "Subscription already ended"}
	ErrInvalidSubscription  = HTTPError{Code: http.StatusUnprocessableEntity, Key: "invalid_subscription", Message: "Invalid subscription request"}

	ErrCouponNotFound = HTTPError{Code: http.StatusNotFound, Key: "coupon_not_found", Message: "Coupon not found"}
	ErrCouponUsed     = HTTPError{Code: http.StatusConflict, Key: "coupon_used", Message: "Coupon already used"}
	ErrCouponExpired  = HTTPError{Code: http.StatusConflict, Key: "coupon_expired", Message: "Coupon expired"}
	ErrInvalidRequest = HTTPError{Code: http.StatusBadRequest, Key: "invalid_request", Message: "Invalid request"}

	ErrProviderUnavailable = HTTPError{Code: http.StatusBadGateway, Key: "provider_unavailable", Message: "Payment provider unavailable"}
	ErrInternal            = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error", Message: "Internal server error"}
)
