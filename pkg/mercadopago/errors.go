package mercadopago

import (
	"errors"
	"fmt"
)

var (
	ErrProviderError      = errors.New("mercadopago: provider error")
	ErrMissingAccessToken = errors.New("mercadopago: access token is required")
	ErrEmptySubscription  = errors.New("mercadopago: subscription id is required")
	ErrInvalidFrequency   = errors.New("mercadopago: frequency must be monthly or yearly")
)

// ProviderError describes a failed call. Retryable is set for transport
// failures, an open breaker and 408, 429 or 5xx responses.
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
	Retryable  bool

	cause error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("mercadopago %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("mercadopago %s: %s", e.Op, e.Message)
}

func (e *ProviderError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrProviderError, e.cause}
	}
	return []error{ErrProviderError}
}

// IsRetryable reports whether err is a ProviderError worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

func isRetryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}
