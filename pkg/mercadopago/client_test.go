package mercadopago_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avuweb/membership/pkg/mercadopago"
)

func newClient(t *testing.T, h http.HandlerFunc, mod ...func(*mercadopago.Config)) *mercadopago.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := mercadopago.Config{
		AccessToken:     "TEST-token",
		BaseURL:         srv.URL,
		NotificationURL: "https://example.com/webhooks/mercadopago",
		SuccessURL:      "https://example.com/ok",
		FailureURL:      "https://example.com/fail",
		PendingURL:      "https://example.com/pending",
		Currency:        "UYU",
		RequestTimeout:  time.Second,
		CreateTimeout:   time.Second,
	}
	for _, m := range mod {
		m(&cfg)
	}
	c, err := mercadopago.New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresToken(t *testing.T) {
	t.Parallel()
	_, err := mercadopago.New(mercadopago.Config{})
	assert.ErrorIs(t, err, mercadopago.ErrMissingAccessToken)
}

func TestCreatePreference(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "socio@example.com", body["payer_email"])
		assert.Equal(t, "plan-basic", body["external_reference"])
		assert.Equal(t, "https://example.com/webhooks/mercadopago", body["notification_url"])

		ar := body["auto_recurring"].(map[string]any)
		assert.EqualValues(t, 1, ar["frequency"])
		assert.Equal(t, "years", ar["frequency_type"])
		assert.EqualValues(t, 1500.5, ar["transaction_amount"])
		assert.Equal(t, "UYU", ar["currency_id"])

		urls := body["back_urls"].(map[string]any)
		assert.Equal(t, "https://example.com/ok", urls["success"])

		_, _ = w.Write([]byte(`{"id":"PREF-1","init_point":"https://mp/checkout"}`))
	})

	pref, err := c.CreatePreference(t.Context(), mercadopago.PreferenceRequest{
		PayerEmail: "socio@example.com",
		PlanID:     "plan-basic",
		Amount:     150050,
		Frequency:  mercadopago.Yearly,
	})
	require.NoError(t, err)
	assert.Equal(t, "PREF-1", pref.ID)
	assert.Equal(t, "https://mp/checkout", pref.InitPoint)
}

func TestCreatePreference_InvalidFrequency(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(http.ResponseWriter, *http.Request) { t.Error("no request expected") })
	_, err := c.CreatePreference(t.Context(), mercadopago.PreferenceRequest{Frequency: "weekly"})
	assert.ErrorIs(t, err, mercadopago.ErrInvalidFrequency)
}

func TestGetAndCancelSubscription(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/PA-1", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"PA-1","status":"authorized","last_modified":"2025-01-02T10:00:00Z"}`))
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"status":"cancelled"}`, string(b))
			_, _ = w.Write([]byte(`{"id":"PA-1","status":"cancelled"}`))
		}
	})

	sub, err := c.GetSubscription(t.Context(), "PA-1")
	require.NoError(t, err)
	assert.Equal(t, "authorized", sub.Status)
	assert.Equal(t, "2025-01-02T10:00:00Z", sub.LastModified)

	sub, err = c.CancelSubscription(t.Context(), "PA-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", sub.Status)

	_, err = c.GetSubscription(t.Context(), "")
	assert.ErrorIs(t, err, mercadopago.ErrEmptySubscription)
}

func TestListPayments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "array", body: `[{"id":101,"status":"approved","transaction_amount":500}]`},
		{name: "page", body: `{"results":[{"id":"101","status":"approved","transaction_amount":500}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/subscriptions/PA-1/payments", r.URL.Path)
				assert.Equal(t, "100", r.URL.Query().Get("limit"))
				_, _ = w.Write([]byte(tt.body))
			})

			payments, err := c.ListPayments(t.Context(), "PA-1")
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "101", payments[0].ID.String())
			assert.Equal(t, "approved", payments[0].Status)
		})
	}
}

func TestProviderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		message   string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"message":"preapproval not found"}`, message: "preapproval not found"},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad_request"}`, message: "bad_request"},
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true, message: "Too Many Requests"},
		{name: "timeout", status: http.StatusRequestTimeout, retryable: true, message: "Request Timeout"},
		{name: "server error", status: http.StatusBadGateway, body: "upstream", retryable: true, message: "upstream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.GetSubscription(t.Context(), "PA-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, mercadopago.ErrProviderError)

			var pe *mercadopago.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, "get_subscription", pe.Op)
			assert.Equal(t, tt.message, pe.Message)
			assert.Equal(t, tt.retryable, mercadopago.IsRetryable(err))
		})
	}
}

func TestTransportErrorIsRetryable(t *testing.T) {
	t.Parallel()

	c, err := mercadopago.New(mercadopago.Config{AccessToken: "x", BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})
	require.NoError(t, err)

	_, err = c.GetSubscription(t.Context(), "PA-1")
	assert.ErrorIs(t, err, mercadopago.ErrProviderError)
	assert.True(t, mercadopago.IsRetryable(err))
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, func(cfg *mercadopago.Config) {
		cfg.BreakerFailures = 2
		cfg.BreakerOpenTimeout = time.Minute
	})

	for range 2 {
		_, err := c.GetSubscription(t.Context(), "PA-1")
		require.Error(t, err)
	}

	_, err := c.GetSubscription(t.Context(), "PA-1")
	var pe *mercadopago.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "circuit breaker open", pe.Message)
	assert.True(t, pe.Retryable)
	assert.EqualValues(t, 2, hits.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, func(cfg *mercadopago.Config) { cfg.BreakerFailures = 1 })

	for range 3 {
		_, err := c.GetSubscription(t.Context(), "PA-1")
		require.Error(t, err)
	}
	assert.EqualValues(t, 3, hits.Load())
}
