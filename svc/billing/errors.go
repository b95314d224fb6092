package billing

import "errors"

var (
	ErrInvalidPayload       = errors.New("billing: invalid payload")
	ErrMissingFields        = errors.New("billing: missing required fields")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrSubscriptionExists   = errors.New("billing: user already has a subscription")
	ErrProviderIDImmutable  = errors.New("billing: provider subscription id cannot change")
	ErrEventNotFound        = errors.New("billing: event not found")
	ErrEventProcessed       = errors.New("billing: event already processed")
	ErrInvalidFrequency     = errors.New("billing: frequency must be monthly or yearly")
	ErrInvalidAmount        = errors.New("billing: amount must be positive")
	ErrEmptyUserID          = errors.New("billing: user id is required")
	ErrEnqueue              = errors.New("billing: failed to enqueue event")
	ErrAlreadyCancelled     = errors.New("billing: subscription already ended")
	ErrLeaseLost            = errors.New("billing: lease expired or taken by another holder")
)
