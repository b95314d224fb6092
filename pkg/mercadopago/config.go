package mercadopago

import "time"

const (
	ProductionBaseURL = "https://api.mercadopago.com"
	SandboxBaseURL    = "https://api.sandbox.mercadopago.com"
)

type Config struct {
	AccessToken string `env:"MP_ACCESS_TOKEN,required"`
	Sandbox     bool   `env:"MP_SANDBOX" envDefault:"false"`
	// BaseURL overrides the production/sandbox choice when set.
	BaseURL string `env:"MP_BASE_URL"`

	NotificationURL string `env:"MP_NOTIFICATION_URL"`
	SuccessURL      string `env:"MP_SUCCESS_URL"`
	FailureURL      string `env:"MP_FAILURE_URL"`
	PendingURL      string `env:"MP_PENDING_URL"`
	Currency        string `env:"MP_CURRENCY" envDefault:"UYU"`

	CreateTimeout  time.Duration `env:"MP_CREATE_TIMEOUT" envDefault:"15s"`
	RequestTimeout time.Duration `env:"MP_REQUEST_TIMEOUT" envDefault:"10s"`
	PaymentsLimit  int           `env:"MP_PAYMENTS_LIMIT" envDefault:"100"`

	BreakerFailures    uint32        `env:"MP_BREAKER_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"MP_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BreakerHalfOpen    uint32        `env:"MP_BREAKER_HALF_OPEN_REQUESTS" envDefault:"1"`
}

func (c Config) baseURL() string {
	switch {
	case c.BaseURL != "":
		return c.BaseURL
	case c.Sandbox:
		return SandboxBaseURL
	default:
		return ProductionBaseURL
	}
}
