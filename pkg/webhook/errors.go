package webhook

import "errors"

var (
	ErrMissingHeaders       = errors.New("missing webhook signature headers")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedSignature   = errors.New("malformed signature header")
	ErrSignatureMismatch    = errors.New("signature mismatch")
	ErrSignatureExpired     = errors.New("signature timestamp outside allowed window")
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
)
