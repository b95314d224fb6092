// Package webhook authenticates inbound provider notifications.
//
// The provider signs every delivery with HMAC-SHA256 over
// "{request_id}.{ts}.{raw_body}" using a shared secret, and sends:
//
//	X-Signature:  ts=<unix-seconds>,v1=<hex hmac>
//	X-Request-Id: <opaque>
//
// Verify recomputes the digest and compares it in constant time:
//
//	requestID, header, err := webhook.HeadersFromRequest(r)
//	if err != nil {
//	    // ErrMissingHeaders: respond 400
//	}
//	if err := webhook.Verify(secret, requestID, header, body, webhook.WithMaxAge(5*time.Minute)); err != nil {
//	    // errors.Is(err, webhook.ErrInvalidSignature): respond 401
//	}
//
// A header that cannot be parsed is reported as ErrInvalidSignature too, so
// callers never need to tell malformed and forged signatures apart.
package webhook
