package billing

import "time"

type Config struct {
	WebhookSecret  string        `env:"WEBHOOK_SECRET,required"`
	WebhookMaxAge  time.Duration `env:"WEBHOOK_MAX_AGE" envDefault:"0"`
	WebhookMaxBody int64         `env:"WEBHOOK_MAX_BODY" envDefault:"1048576"`
}
