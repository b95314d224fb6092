package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/pkg/webhook"
	billingsvc "github.com/avuweb/membership/svc/billing"
)

type statusBody struct {
	Status string `json:"status"`
}

// webhook accepts a provider notification. It only verifies, stores and
// schedules; the ledger is updated by the event processor.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, signature, err := webhook.HeadersFromRequest(r)
	if err != nil {
		h.log.WarnContext(ctx, "webhook without signature headers")
		writeError(w, ErrMissingHeaders)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.WebhookMaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, ErrBodyTooLarge)
			return
		}
		writeError(w, ErrInvalidJSON)
		return
	}

	if err := webhook.Verify(h.cfg.WebhookSecret, requestID, signature, body,
		webhook.WithMaxAge(h.cfg.WebhookMaxAge),
		webhook.WithClock(h.now),
	); err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.log.WarnContext(ctx, "webhook signature rejected",
				logger.Security(),
				slog.String("webhook_request_id", requestID),
				logger.Error(err),
			)
			writeError(w, ErrInvalidSignature)
			return
		}
		h.log.ErrorContext(ctx, "webhook verification misconfigured", logger.Error(err))
		writeError(w, ErrInternal)
		return
	}

	n, err := billingsvc.ParseNotification(body)
	switch {
	case errors.Is(err, billingsvc.ErrMissingFields):
		h.log.WarnContext(ctx, "webhook missing fields", logger.Error(err))
		writeError(w, ErrMissingFields)
		return
	case err != nil:
		h.log.WarnContext(ctx, "webhook body is not valid JSON", logger.Error(err))
		writeError(w, ErrInvalidJSON)
		return
	}

	res, err := h.billing.Ingest(ctx, n)
	switch {
	case errors.Is(err, billingsvc.ErrSubscriptionNotFound):
		writeError(w, ErrSubscriptionNotFound)
		return
	case err != nil:
		h.log.ErrorContext(ctx, "webhook ingest failed",
			logger.ProviderEventID(n.EventID),
			logger.EventType(n.EventType),
			logger.Error(err),
		)
		writeError(w, ErrInternal)
		return
	}

	writeJSON(w, http.StatusOK, statusBody{Status: string(res.Status)})
}
