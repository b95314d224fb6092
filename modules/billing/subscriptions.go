package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/pkg/mercadopago"
	billingsvc "github.com/avuweb/membership/svc/billing"
)

type subscriptionBody struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Status             string     `json:"status"`
	Frequency          string     `json:"payment_frequency"`
	Amount             int64      `json:"amount"`
	LastPaymentDate    *time.Time `json:"last_payment_date,omitempty"`
	NextPaymentDate    *time.Time `json:"next_payment_date,omitempty"`
	FailedPaymentCount int        `json:"failed_payment_count"`
	CheckoutURL        string     `json:"checkout_url,omitempty"`
}

func newSubscriptionBody(s *billingsvc.Subscription) subscriptionBody {
	return subscriptionBody{
		ID:                 s.ID.String(),
		UserID:             s.UserID,
		Status:             s.Status.String(),
		Frequency:          string(s.Frequency),
		Amount:             s.Amount,
		LastPaymentDate:    s.LastPaymentDate,
		NextPaymentDate:    s.NextPaymentDate,
		FailedPaymentCount: s.FailedPaymentCount,
	}
}

type startRequest struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	PlanID    string `json:"plan_id"`
	Amount    int64  `json:"amount"`
	Frequency string `json:"payment_frequency"`
}

func (h *Handler) startSubscription(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sub, pref, err := h.billing.Start(r.Context(), billingsvc.StartParams{
		UserID:    req.UserID,
		Email:     req.Email,
		PlanID:    req.PlanID,
		Amount:    req.Amount,
		Frequency: billingsvc.Frequency(req.Frequency),
	})
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	body := newSubscriptionBody(sub)
	body.CheckoutURL = pref.InitPoint
	writeJSON(w, http.StatusCreated, body)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.SubscriptionForUser(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionBody(sub))
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Cancel(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionBody(sub))
}

type paymentBody struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	StatusDetail string  `json:"status_detail,omitempty"`
	Amount       float64 `json:"transaction_amount"`
	DateCreated  string  `json:"date_created,omitempty"`
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.billing.Payments(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		h.writeBillingError(w, r, err)
		return
	}

	out := make([]paymentBody, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentBody{
			ID:           p.ID.String(),
			Status:       p.Status,
			StatusDetail: p.StatusDetail,
			Amount:       p.TransactionAmount,
			DateCreated:  p.DateCreated,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) writeBillingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billingsvc.ErrSubscriptionNotFound):
		writeError(w, ErrSubscriptionNotFound)
	case errors.Is(err, billingsvc.ErrSubscriptionExists):
		writeError(w, ErrSubscriptionExists)
	case errors.Is(err, billingsvc.ErrAlreadyCancelled):
		writeError(w, ErrSubscriptionEnded)
	case errors.Is(err, billingsvc.ErrEmptyUserID),
		errors.Is(err, billingsvc.ErrInvalidAmount),
		errors.Is(err, billingsvc.ErrInvalidFrequency):
		writeError(w, ErrInvalidSubscription)
	case errors.Is(err, mercadopago.ErrProviderError):
		h.log.WarnContext(r.Context(), "payment provider call failed", logger.Error(err))
		writeError(w, ErrProviderUnavailable)
	default:
		h.log.ErrorContext(r.Context(), "billing request failed", logger.Error(err))
		writeError(w, ErrInternal)
	}
}
