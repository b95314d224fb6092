package billing

import "time"

type Config struct {
	StaleAfter        time.Duration `env:"BILLING_STALE_AFTER" envDefault:"6h"`
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE" envDefault:"every 30m"`
	RenewalsSchedule  string        `env:"RENEWALS_SCHEDULE" envDefault:"daily 09:00"`
	RenewalWindow     time.Duration `env:"RENEWAL_WINDOW" envDefault:"24h"`
	LeaseTTL          time.Duration `env:"BILLING_LEASE_TTL" envDefault:"10m"`
	MaxAttempts       int8          `env:"BILLING_MAX_ATTEMPTS" envDefault:"3"`
	RetryBase         time.Duration `env:"BILLING_RETRY_BASE" envDefault:"60s"`
	Queue             string        `env:"BILLING_QUEUE" envDefault:"billing"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter:        6 * time.Hour,
		ReconcileSchedule: "every 30m",
		RenewalsSchedule:  "daily 09:00",
		RenewalWindow:     24 * time.Hour,
		LeaseTTL:          10 * time.Minute,
		MaxAttempts:       3,
		RetryBase:         time.Minute,
		Queue:             "billing",
	}
}

// RetryPolicy returns the event retry policy derived from the config.
func (c Config) RetryPolicy() RetryPolicy {
	return NewRetryPolicy(c.MaxAttempts, c.RetryBase)
}
