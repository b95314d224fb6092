package billing

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/svc/coupon"
)

type entitlementBody struct {
	UserID         string `json:"user_id"`
	CanViewContent bool   `json:"can_view_content"`
}

func (h *Handler) entitlement(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	ok, err := h.gate.CanViewContent(r.Context(), userID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "entitlement check failed", logger.UserID(userID), logger.Error(err))
		writeError(w, ErrInternal)
		return
	}
	writeJSON(w, http.StatusOK, entitlementBody{UserID: userID, CanViewContent: ok})
}

type redeemRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type redeemBody struct {
	Code   string    `json:"code"`
	UserID string    `json:"user_id"`
	UsedAt time.Time `json:"used_at"`
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.UserID) == "" {
		writeError(w, ErrInvalidRequest)
		return
	}

	c, err := h.coupons.Redeem(r.Context(), req.Code, req.UserID)
	switch {
	case err == nil:
	case errors.Is(err, coupon.ErrCouponNotFound):
		writeError(w, ErrCouponNotFound)
		return
	case errors.Is(err, coupon.ErrCouponAlreadyUsed):
		writeError(w, ErrCouponUsed)
		return
	case errors.Is(err, coupon.ErrCouponExpired):
		writeError(w, ErrCouponExpired)
		return
	default:
		h.log.ErrorContext(r.Context(), "coupon redemption failed", logger.UserID(req.UserID), logger.Error(err))
		writeError(w, ErrInternal)
		return
	}

	body := redeemBody{Code: c.Code, UserID: req.UserID}
	if c.UsedAt != nil {
		body.UsedAt = *c.UsedAt
	}
	writeJSON(w, http.StatusOK, body)
}
