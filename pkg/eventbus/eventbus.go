package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConnect = errors.New("eventbus: failed to connect")
	ErrPublish = errors.New("eventbus: failed to publish")
	ErrEncode  = errors.New("eventbus: failed to encode message")
)

// Publisher delivers operational notices (dead letters, upcoming renewals)
// to whoever subscribes to the routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, data any) error
	Close() error
}

// Message is the JSON envelope every notice is wrapped in.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func NewMessage(routingKey string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, errors.Join(ErrEncode, err)
	}
	return Message{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

type Config struct {
	// URL empty selects the noop publisher.
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE" envDefault:"membership.billing"`
}
