package billing

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avuweb/membership/pkg/httpserver"
	"github.com/avuweb/membership/pkg/logger"
)

// Routes returns the billing endpoints without middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/webhooks/mercadopago", h.webhook)
	r.Get("/entitlements/{user_id}", h.entitlement)
	r.Post("/coupons/redeem", h.redeem)

	r.Route("/subscriptions", func(sr chi.Router) {
		sr.Post("/", h.startSubscription)
		sr.Get("/{user_id}", h.getSubscription)
		sr.Post("/{user_id}/cancel", h.cancelSubscription)
		sr.Get("/{user_id}/payments", h.listPayments)
	})

	return r
}

// RouterOptions configures Router. Checks gate the readiness endpoint.
type RouterOptions struct {
	Handler *Handler
	Logger  *slog.Logger
	Checks  []func(context.Context) error
}

// Router creates the service router.
//
// Example:
//
//	h := billing.NewHandler(cfg, billingSvc, entitlementSvc, couponSvc, billing.WithLogger(log))
//	srv.Run(ctx, billing.Router(billing.RouterOptions{
//	    Handler: h,
//	    Logger:  log,
//	    Checks:  []func(context.Context) error{pg.Healthcheck(pool)},
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/health/live", httpserver.HealthCheckHandler(opts.Logger))
	r.Get("/health/ready", httpserver.HealthCheckHandler(opts.Logger, opts.Checks...))

	if opts.Handler != nil {
		r.Mount("/", opts.Handler.Routes())
	}
	return r
}

// RequestIDExtractor adds the chi request id to log records.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return logger.RequestID(id), true
}

