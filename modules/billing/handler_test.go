package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avuweb/membership/modules/billing"
	"github.com/avuweb/membership/pkg/mercadopago"
	"github.com/avuweb/membership/pkg/queue"
	"github.com/avuweb/membership/pkg/webhook"
	billingsvc "github.com/avuweb/membership/svc/billing"
	"github.com/avuweb/membership/svc/coupon"
	"github.com/avuweb/membership/svc/entitlement"
)

const secret = "whsec_test"

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type countingEnqueuer struct {
	mu sync.Mutex
	n  int
}

func (c *countingEnqueuer) Enqueue(context.Context, any, ...queue.EnqueueOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// stubProvider answers every call with canned values.
type stubProvider struct {
	pref     *mercadopago.Preference
	payments []mercadopago.Payment
	err      error
}

func (s *stubProvider) CreatePreference(context.Context, mercadopago.PreferenceRequest) (*mercadopago.Preference, error) {
	return s.pref, s.err
}

func (s *stubProvider) GetSubscription(_ context.Context, id string) (*mercadopago.RemoteSubscription, error) {
	return &mercadopago.RemoteSubscription{ID: id}, s.err
}

func (s *stubProvider) CancelSubscription(_ context.Context, id string) (*mercadopago.RemoteSubscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &mercadopago.RemoteSubscription{ID: id, Status: "cancelled"}, nil
}

func (s *stubProvider) ListPayments(context.Context, string) ([]mercadopago.Payment, error) {
	return s.payments, s.err
}

type fixture struct {
	router   http.Handler
	store    billingsvc.Store
	coupons  coupon.Store
	enqueuer *countingEnqueuer
	provider *stubProvider
}

func newFixture(t *testing.T, cfg billing.Config) *fixture {
	t.Helper()

	f := &fixture{
		store:    billingsvc.NewMemoryStore(),
		coupons:  coupon.NewMemoryStore(),
		enqueuer: &countingEnqueuer{},
		provider: &stubProvider{},
	}
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = secret
	}

	profiles := entitlement.NewMemoryStore(
		entitlement.Profile{UserID: "socio-1", UserType: entitlement.UserTypeSocio, SubscriptionStatus: entitlement.StatusNoSubscription},
		entitlement.Profile{UserID: "empresa-1", UserType: entitlement.UserTypeEmpresa, SubscriptionStatus: entitlement.StatusNoSubscription},
	)
	ents := entitlement.NewService(profiles, entitlement.WithClock(clockAt(fixedNow)))
	svc := billingsvc.NewService(f.store, f.provider, ents, f.enqueuer, billingsvc.WithClock(clockAt(fixedNow)))
	redeemer := coupon.NewService(f.coupons, ents, coupon.WithClock(clockAt(fixedNow)))

	h := billing.NewHandler(cfg, svc, ents, redeemer, billing.WithClock(clockAt(fixedNow)))
	f.router = billing.Router(billing.RouterOptions{Handler: h})
	return f
}

func (f *fixture) seed(t *testing.T, userID, providerID string) {
	t.Helper()
	require.NoError(t, f.store.CreateSubscription(t.Context(), billingsvc.NewSubscription(userID, providerID, fixedNow)))
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func signed(body []byte, at time.Time) http.Header {
	h := http.Header{}
	h.Set(webhook.HeaderRequestID, "req-1")
	h.Set(webhook.HeaderSignature, webhook.SignatureHeader(secret, "req-1", at, body))
	h.Set("Content-Type", "application/json")
	return h
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const authorized = `{"id":"PA-1","type":"subscription.updated","status":"authorized","data":{"id":"pref-1"}}`

func TestWebhook_StatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		header     func(body []byte) http.Header
		wantCode   int
		wantStatus string
		wantError  string
	}{
		{
			name:      "missing headers",
			body:      authorized,
			header:    func([]byte) http.Header { return http.Header{} },
			wantCode:  http.StatusBadRequest,
			wantError: "Missing headers",
		},
		{
			name: "missing request id",
			body: authorized,
			header: func(b []byte) http.Header {
				h := signed(b, fixedNow)
				h.Del(webhook.HeaderRequestID)
				return h
			},
			wantCode:  http.StatusBadRequest,
			wantError: "Missing headers",
		},
		{
			name: "signature mismatch",
			body: authorized,
			header: func([]byte) http.Header {
				return signed([]byte(`{"tampered":true}`), fixedNow)
			},
			wantCode:  http.StatusUnauthorized,
			wantError: "Invalid signature",
		},
		{
			name: "malformed signature",
			body: authorized,
			header: func(b []byte) http.Header {
				h := signed(b, fixedNow)
				h.Set(webhook.HeaderSignature, "garbage")
				return h
			},
			wantCode:  http.StatusUnauthorized,
			wantError: "Invalid signature",
		},
		{
			name:      "invalid json",
			body:      `{"id":`,
			header:    func(b []byte) http.Header { return signed(b, fixedNow) },
			wantCode:  http.StatusBadRequest,
			wantError: "Invalid JSON",
		},
		{
			name:      "missing fields",
			body:      `{"id":"e1","type":"payment","data":{}}`,
			header:    func(b []byte) http.Header { return signed(b, fixedNow) },
			wantCode:  http.StatusBadRequest,
			wantError: "Missing required fields",
		},
		{
			name:       "ignored type",
			body:       `{"id":"m1","type":"merchant_order","data":{"id":"x"}}`,
			header:     func(b []byte) http.Header { return signed(b, fixedNow) },
			wantCode:   http.StatusOK,
			wantStatus: "ignored",
		},
		{
			name:      "unknown subscription",
			body:      `{"id":"e2","type":"payment","data":{"id":"nope"}}`,
			header:    func(b []byte) http.Header { return signed(b, fixedNow) },
			wantCode:  http.StatusNotFound,
			wantError: "Subscription not found",
		},
		{
			name:       "received",
			body:       authorized,
			header:     func(b []byte) http.Header { return signed(b, fixedNow) },
			wantCode:   http.StatusOK,
			wantStatus: "received",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, billing.Config{})
			f.seed(t, "socio-1", "pref-1")

			body := []byte(tt.body)
			rec := f.do(t, http.MethodPost, "/webhooks/mercadopago", body, tt.header(body))

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			out := decode(t, rec)
			if tt.wantStatus != "" {
				assert.Equal(t, tt.wantStatus, out["status"])
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, out["error"])
			}

			wantQueued := 0
			if tt.wantStatus == "received" {
				wantQueued = 1
			}
			assert.Equal(t, wantQueued, f.enqueuer.count())
		})
	}
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, billing.Config{})
	f.seed(t, "socio-1", "pref-1")
	body := []byte(authorized)

	first := f.do(t, http.MethodPost, "/webhooks/mercadopago", body, signed(body, fixedNow))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "received", decode(t, first)["status"])

	second := f.do(t, http.MethodPost, "/webhooks/mercadopago", body, signed(body, fixedNow))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "already_processed", decode(t, second)["status"])

	assert.Equal(t, 1, f.enqueuer.count())
}

func TestWebhook_ReplayWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, billing.Config{WebhookMaxAge: 5 * time.Minute})
	f.seed(t, "socio-1", "pref-1")
	body := []byte(authorized)

	rec := f.do(t, http.MethodPost, "/webhooks/mercadopago", body, signed(body, fixedNow.Add(-10*time.Minute)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/webhooks/mercadopago", body, signed(body, fixedNow.Add(-time.Minute)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_BodyLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, billing.Config{WebhookMaxBody: 64})
	body := []byte(`{"id":"e1","type":"payment","data":{"id":"` + strings.Repeat("x", 128) + `"}}`)

	rec := f.do(t, http.MethodPost, "/webhooks/mercadopago", body, signed(body, fixedNow))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type failingBilling struct {
	billing.Billing
}

func (failingBilling) Ingest(context.Context, billingsvc.Notification) (billingsvc.IngestResult, error) {
	return billingsvc.IngestResult{}, billingsvc.ErrEnqueue
}

func TestWebhook_InternalError(t *testing.T) {
	t.Parallel()

	h := billing.NewHandler(billing.Config{WebhookSecret: secret}, failingBilling{}, nil, nil, billing.WithClock(clockAt(fixedNow)))
	router := billing.Router(billing.RouterOptions{Handler: h})

	body := []byte(authorized)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader(body))
	for k, v := range signed(body, fixedNow) {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decode(t, rec)["error"])
}

func TestEntitlement(t *testing.T) {
	t.Parallel()

	f := newFixture(t, billing.Config{})

	tests := []struct {
		userID string
		want   bool
	}{
		{"socio-1", false},
		{"empresa-1", true},
		{"unknown", false},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, "/entitlements/"+tt.userID, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tt.want, decode(t, rec)["can_view_content"], tt.userID)
	}
}

func TestRedeemCoupon(t *testing.T) {
	t.Parallel()

	f := newFixture(t, billing.Config{})
	issuer := coupon.NewService(f.coupons, nil, coupon.WithClock(clockAt(fixedNow.Add(-time.Hour))))
	valid, err := issuer.Create(t.Context(), coupon.CreateParams{CreatedBy: "admin", ExpiresAt: fixedNow.Add(24 * time.Hour)})
	require.NoError(t, err)
	expired, err := issuer.Create(t.Context(), coupon.CreateParams{CreatedBy: "admin", ExpiresAt: fixedNow.Add(-time.Minute)})
	require.NoError(t, err)

	redeem := func(code, userID string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"code": code, "user_id": userID})
		return f.do(t, http.MethodPost, "/coupons/redeem", body, http.Header{"Content-Type": {"application/json"}})
	}

	// No profile: the redemption is given back.
	rec := redeem(valid.Code, "ghost")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = redeem(strings.ToLower(valid.Code), "socio-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, valid.Code, decode(t, rec)["code"])

	ent := f.do(t, http.MethodGet, "/entitlements/socio-1", nil, nil)
	assert.Equal(t, true, decode(t, ent)["can_view_content"])

	rec = redeem(valid.Code, "empresa-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "coupon_used", decode(t, rec)["code"])

	rec = redeem(expired.Code, "socio-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "coupon_expired", decode(t, rec)["code"])

	rec = redeem("DEADBEEF", "socio-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "coupon_not_found", decode(t, rec)["code"])

	rec = redeem("", "socio-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, billing.Config{})
	f.provider.pref = &mercadopago.Preference{ID: "pref-9", InitPoint: "https://mp.example/checkout/pref-9"}
	f.provider.payments = []mercadopago.Payment{{ID: "77", Status: "approved", TransactionAmount: 15}}

	body := []byte(`{"user_id":"socio-1","email":"s@example.com","plan_id":"plan","amount":1500,"payment_frequency":"monthly"}`)
	rec := f.do(t, http.MethodPost, "/subscriptions/", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, "https://mp.example/checkout/pref-9", out["checkout_url"])

	rec = f.do(t, http.MethodPost, "/subscriptions/", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/subscriptions/socio-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "socio-1", decode(t, rec)["user_id"])

	rec = f.do(t, http.MethodGet, "/subscriptions/socio-1/payments", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["payments"], 1)

	rec = f.do(t, http.MethodPost, "/subscriptions/socio-1/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode(t, rec)["status"])

	rec = f.do(t, http.MethodPost, "/subscriptions/socio-1/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/subscriptions/nobody", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/subscriptions/", []byte(`{"user_id":"empresa-1","amount":0}`), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	router := billing.Router(billing.RouterOptions{
		Checks: []func(context.Context) error{func(context.Context) error { return assert.AnError }},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
