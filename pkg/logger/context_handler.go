package logger

import (
	"context"
	"log/slog"
	"strings"
)

// ContextExtractor pulls one attribute out of a record's context.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// contextHandler appends extractor attributes, such as the request id, to
// each record before passing it on.
type contextHandler struct {
	slog.Handler
	extractors []ContextExtractor
}

func (h contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.Handler.Handle(ctx, rec)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs), extractors: h.extractors}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name), extractors: h.extractors}
}

const redacted = "[REDACTED]"

// sensitiveKeys never reach the output with their value. Matching is on the
// lowercased key.
var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"authorization": {},
	"secret":        {},
	"signature":     {},
	"x-signature":   {},
	"password":      {},
}

func redact(extra map[string]struct{}) func(groups []string, a slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		key := strings.ToLower(a.Key)
		_, hit := sensitiveKeys[key]
		if !hit {
			_, hit = extra[key]
		}
		if hit {
			return slog.String(a.Key, redacted)
		}
		return a
	}
}
