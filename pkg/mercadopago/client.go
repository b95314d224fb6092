package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/avuweb/membership/pkg/logger"
)

const maxErrorBody = 4 << 10

// Client talks to the MercadoPago subscriptions API. It is safe for
// concurrent use.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient sets the transport the bearer token is layered on.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.PaymentsLimit <= 0 {
		cfg.PaymentsLimit = 100
	}
	if cfg.Currency == "" {
		cfg.Currency = "UYU"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.baseURL(), "/"),
		http:    http.DefaultClient,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("mercadopago"))

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.http = &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"}),
			Base:   base,
		},
		CheckRedirect: c.http.CheckRedirect,
		Jar:           c.http.Jar,
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mercadopago",
		MaxRequests: max(cfg.BreakerHalfOpen, 1),
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Client errors say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return c, nil
}

// CreatePreference opens a recurring checkout for the payer.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	freqType, ok := req.Frequency.frequencyType()
	if !ok {
		return nil, ErrInvalidFrequency
	}

	payload := preferencePayload{
		PayerEmail: req.PayerEmail,
		AutoRecurring: autoRecurring{
			Frequency:         1,
			FrequencyType:     freqType,
			TransactionAmount: float64(req.Amount) / 100,
			CurrencyID:        c.cfg.Currency,
		},
		BackURLs: backURLs{
			Success: c.cfg.SuccessURL,
			Failure: c.cfg.FailureURL,
			Pending: c.cfg.PendingURL,
		},
		NotificationURL:   c.cfg.NotificationURL,
		ExternalReference: req.PlanID,
	}

	var pref Preference
	if err := c.do(ctx, "create_preference", http.MethodPost, "/checkout/preferences", c.cfg.CreateTimeout, payload, &pref); err != nil {
		return nil, err
	}
	c.log.InfoContext(ctx, "preference created", slog.String("preference_id", pref.ID))
	return &pref, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*RemoteSubscription, error) {
	if id == "" {
		return nil, ErrEmptySubscription
	}
	var sub RemoteSubscription
	if err := c.do(ctx, "get_subscription", http.MethodGet, "/v1/subscriptions/"+url.PathEscape(id), c.cfg.RequestTimeout, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) (*RemoteSubscription, error) {
	if id == "" {
		return nil, ErrEmptySubscription
	}
	var sub RemoteSubscription
	body := map[string]string{"status": "cancelled"}
	if err := c.do(ctx, "cancel_subscription", http.MethodPut, "/v1/subscriptions/"+url.PathEscape(id), c.cfg.RequestTimeout, body, &sub); err != nil {
		return nil, err
	}
	c.log.InfoContext(ctx, "subscription cancelled at provider", slog.String("provider_subscription_id", id))
	return &sub, nil
}

// ListPayments accepts either a bare array or a {"results": [...]} page.
func (c *Client) ListPayments(ctx context.Context, id string) ([]Payment, error) {
	if id == "" {
		return nil, ErrEmptySubscription
	}
	path := "/v1/subscriptions/" + url.PathEscape(id) + "/payments?limit=" + strconv.Itoa(c.cfg.PaymentsLimit)

	var raw json.RawMessage
	if err := c.do(ctx, "list_payments", http.MethodGet, path, c.cfg.RequestTimeout, nil, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	var payments []Payment
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &payments); err != nil {
			return nil, c.decodeError("list_payments", err)
		}
		return payments, nil
	}

	var page struct {
		Results []Payment `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, c.decodeError("list_payments", err)
	}
	return page.Results, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, timeout time.Duration, in, out any) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, op, method, path, timeout, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &ProviderError{Op: op, Message: "circuit breaker open", Retryable: true, cause: err}
	}
	if err != nil {
		c.log.ErrorContext(ctx, "provider call failed", slog.String("op", op), logger.Error(err))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, timeout time.Duration, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &ProviderError{Op: op, Message: "encode request", cause: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &ProviderError{Op: op, Message: "build request", cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Message: err.Error(), Retryable: true, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp),
			Retryable:  isRetryableStatus(resp.StatusCode),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.decodeError(op, err)
	}
	return nil
}

func (c *Client) decodeError(op string, err error) error {
	return &ProviderError{Op: op, Message: fmt.Sprintf("decode response: %v", err), cause: err}
}

func readErrorMessage(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(b, &eb) == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}
