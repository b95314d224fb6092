package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/avuweb/membership/pkg/logger"
)

// NoopPublisher logs and drops messages. Used when no broker is configured.
type NoopPublisher struct {
	log *slog.Logger
}

func NewNoopPublisher(log *slog.Logger) *NoopPublisher {
	if log == nil {
		log = logger.Discard()
	}
	return &NoopPublisher{log: log}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, _ any) error {
	p.log.DebugContext(ctx, "noop publish", slog.String("routing_key", routingKey))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

// MemoryPublisher keeps published messages in order.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, routingKey string, data any) error {
	msg, err := NewMessage(routingKey, data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return nil
}

// Messages returns a copy of the messages published under routingKey, or all
// of them when routingKey is empty.
func (p *MemoryPublisher) Messages(routingKey string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Message, 0, len(p.messages))
	for _, m := range p.messages {
		if routingKey == "" || m.Type == routingKey {
			out = append(out, m)
		}
	}
	return out
}

func (p *MemoryPublisher) Close() error { return nil }
