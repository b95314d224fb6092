package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-Id"
)

// Signature is the parsed form of the X-Signature header.
// Timestamp is kept verbatim because it is part of the signed string.
type Signature struct {
	Timestamp string
	V1        string
}

// HeadersFromRequest returns the request id and raw signature header.
func HeadersFromRequest(r *http.Request) (requestID, signature string, err error) {
	signature = strings.TrimSpace(r.Header.Get(HeaderSignature))
	requestID = strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if signature == "" || requestID == "" {
		return "", "", ErrMissingHeaders
	}
	return requestID, signature, nil
}

// ParseSignatureHeader splits "ts=...,v1=..." into its components.
// Unknown components and parts without "=" are ignored. Missing ts or v1 is
// malformed.
func ParseSignatureHeader(header string) (Signature, error) {
	var sig Signature
	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			sig.Timestamp = strings.TrimSpace(value)
		case "v1":
			sig.V1 = strings.TrimSpace(value)
		}
	}
	if sig.Timestamp == "" || sig.V1 == "" {
		return Signature{}, fmt.Errorf("%w: %w", ErrInvalidSignature, ErrMalformedSignature)
	}
	return sig, nil
}

// Sign returns the hex HMAC-SHA256 of "{requestID}.{ts}.{body}".
func Sign(secret, requestID, ts string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(requestID))
	h.Write([]byte("."))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// SignatureHeader builds an X-Signature value. Used by test clients and tooling.
func SignatureHeader(secret, requestID string, ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "ts=" + t + ",v1=" + Sign(secret, requestID, t, body)
}

type verifyOptions struct {
	maxAge time.Duration
	now    func() time.Time
}

type VerifyOption func(*verifyOptions)

// WithMaxAge rejects signatures whose ts is older than d. Zero disables the check.
func WithMaxAge(d time.Duration) VerifyOption {
	return func(o *verifyOptions) {
		o.maxAge = d
	}
}

func WithClock(now func() time.Time) VerifyOption {
	return func(o *verifyOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Verify checks header against the HMAC of the request. Every rejection wraps ErrInvalidSignature.
func Verify(secret, requestID, header string, body []byte, opts ...VerifyOption) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}

	o := verifyOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	sig, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	if o.maxAge > 0 {
		unix, err := strconv.ParseInt(sig.Timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrMalformedSignature)
		}
		age := o.now().Sub(time.Unix(unix, 0))
		if age > o.maxAge || age < -time.Minute {
			return fmt.Errorf("%w: %w: %v", ErrInvalidSignature, ErrSignatureExpired, age)
		}
	}

	expected := Sign(secret, requestID, sig.Timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig.V1))) {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrSignatureMismatch)
	}

	return nil
}
