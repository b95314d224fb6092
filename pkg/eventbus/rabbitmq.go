package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avuweb/membership/pkg/logger"
)

// RabbitMQPublisher publishes persistent JSON messages to a durable topic
// exchange.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *slog.Logger
	mu       sync.Mutex
}

func NewRabbitMQPublisher(cfg Config, log *slog.Logger) (*RabbitMQPublisher, error) {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With(logger.Component("eventbus"))

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrConnect, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Join(ErrConnect, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Join(ErrConnect, err)
	}

	log.Info("rabbitmq publisher connected", slog.String("exchange", cfg.Exchange))

	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: cfg.Exchange, log: log}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	msg, err := NewMessage(routingKey, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Join(ErrEncode, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.OccurredAt,
		Type:         routingKey,
		Body:         body,
	})
	if err != nil {
		p.log.ErrorContext(ctx, "failed to publish message", slog.String("routing_key", routingKey), logger.Error(err))
		return errors.Join(ErrPublish, err)
	}

	p.log.DebugContext(ctx, "message published", slog.String("routing_key", routingKey), slog.Int("size", len(body)))
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.log.Warn("error closing channel", logger.Error(err))
	}
	return p.conn.Close()
}
