package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type (
	// Handler executes tasks whose TaskName equals Name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// BackoffProvider is implemented by handlers that own their retry delays.
	BackoffProvider interface {
		Backoff() Backoff
	}

	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// HandlerOption configures a handler built by NewTaskHandler or NewPeriodicTaskHandler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	backoff Backoff
}

// WithHandlerBackoff overrides the worker backoff for tasks served by this handler.
func WithHandlerBackoff(b Backoff) HandlerOption {
	return func(o *handlerOptions) {
		if b != nil {
			o.backoff = b
		}
	}
}

// NewTaskHandler builds a handler named after the payload type, matching the
// name Enqueuer derives for the same payload.
func NewTaskHandler[T any](handler TaskHandlerFunc[T], opts ...HandlerOption) Handler {
	var payload T
	return &oneTimeTaskHandler[T]{
		name:    TaskNameOf(payload),
		handler: handler,
		opts:    buildHandlerOptions(opts),
	}
}

func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc, opts ...HandlerOption) Handler {
	return &periodicTaskHandler{
		name:    name,
		handler: handler,
		opts:    buildHandlerOptions(opts),
	}
}

// TaskNameOf returns the fully qualified type name used as the task name for v.
func TaskNameOf(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}

func buildHandlerOptions(opts []HandlerOption) handlerOptions {
	var o handlerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type oneTimeTaskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
	opts    handlerOptions
}

func (h *oneTimeTaskHandler[T]) Name() string {
	return h.name
}

func (h *oneTimeTaskHandler[T]) Backoff() Backoff {
	return h.opts.backoff
}

func (h *oneTimeTaskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.handler(ctx, t)
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
	opts    handlerOptions
}

func (h *periodicTaskHandler) Name() string {
	return h.name
}

func (h *periodicTaskHandler) Backoff() Backoff {
	return h.opts.backoff
}

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.handler(ctx)
}
