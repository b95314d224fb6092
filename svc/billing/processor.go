package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avuweb/membership/pkg/eventbus"
	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/pkg/queue"
	"github.com/avuweb/membership/svc/entitlement"
)

// RoutingDeadLettered is published when an event exhausted its attempts.
const RoutingDeadLettered = "billing.event.dead_lettered"

// ProcessEvent is the queue payload for one stored event.
type ProcessEvent struct {
	EventID uuid.UUID `json:"event_id"`
}

// RetryPolicy bounds how often an event is attempted and how long the queue
// waits between attempts.
type RetryPolicy struct {
	MaxAttempts int8
	Backoff     queue.Backoff
}

// NewRetryPolicy waits base, then base*2, and so on between attempts.
func NewRetryPolicy(maxAttempts int8, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     queue.ExponentialBackoff{Initial: base, Multiplier: 2},
	}
}

// DefaultRetryPolicy makes three attempts, 60s and 120s apart.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(queue.DefaultMaxAttempts, time.Minute)
}

func (p RetryPolicy) EnqueueOptions() []queue.EnqueueOption {
	return []queue.EnqueueOption{queue.WithMaxAttempts(p.MaxAttempts)}
}

func (p RetryPolicy) HandlerOptions() []queue.HandlerOption {
	return []queue.HandlerOption{queue.WithHandlerBackoff(p.Backoff)}
}

// DeadLetter is the payload of RoutingDeadLettered.
type DeadLetter struct {
	EventID         string `json:"event_id"`
	ProviderEventID string `json:"provider_event_id,omitempty"`
	EventType       string `json:"event_type,omitempty"`
	SubscriptionID  string `json:"subscription_id,omitempty"`
	Attempts        int8   `json:"attempts"`
	Error           string `json:"error"`
}

// Processor applies stored events to the ledger and entitlements.
type Processor struct {
	store        Store
	entitlements Entitlements
	publisher    eventbus.Publisher
	policy       RetryPolicy
	log          *slog.Logger
	now          func() time.Time
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func WithPublisher(pub eventbus.Publisher) ProcessorOption {
	return func(p *Processor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) ProcessorOption {
	return func(p *Processor) { p.policy = policy }
}

func NewProcessor(store Store, entitlements Entitlements, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:        store,
		entitlements: entitlements,
		publisher:    eventbus.NewNoopPublisher(nil),
		policy:       DefaultRetryPolicy(),
		log:          logger.Discard(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logger.Component("processor"))
	return p
}

// Handler registers Handle on a queue worker with the retry backoff.
func (p *Processor) Handler() queue.Handler {
	return queue.NewTaskHandler[ProcessEvent](p.Handle, p.policy.HandlerOptions()...)
}

// Handle applies one event. A returned error makes the queue retry; the
// error text is kept on the event meanwhile.
func (p *Processor) Handle(ctx context.Context, task ProcessEvent) error {
	log := p.log.With(logger.EventID(task.EventID))

	ev, err := p.store.GetEvent(ctx, task.EventID)
	if errors.Is(err, ErrEventNotFound) {
		log.ErrorContext(ctx, "event not found, dropping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if ev.Processed {
		log.DebugContext(ctx, "event already processed")
		return nil
	}
	log = log.With(logger.ProviderEventID(ev.ProviderEventID), logger.EventType(ev.EventType))

	if err := p.process(ctx, log, ev); err != nil {
		log.WarnContext(ctx, "event processing failed", logger.Error(err))
		if markErr := p.store.MarkEventFailed(ctx, ev.ID, err.Error()); markErr != nil {
			log.ErrorContext(ctx, "failed to record event error", logger.Error(markErr))
		}
		return err
	}
	return nil
}

func (p *Processor) process(ctx context.Context, log *slog.Logger, ev *Event) error {
	sub, err := p.store.GetSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	log = log.With(logger.SubscriptionID(sub.ID), logger.UserID(sub.UserID))

	view, err := readPayload(ev.Payload)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	out := Apply(sub, Change{
		Family:        FamilyOf(ev.EventType),
		Status:        view.Status,
		PreapprovalID: view.PreapprovalID,
		OccurredAt:    view.OccurredAt,
	}, now)

	if !out.Mutated() {
		log.InfoContext(ctx, "event left ledger unchanged",
			slog.String("reason", out.Skipped),
			logger.Status(string(view.Status)),
			slog.String("subscription_status", sub.Status.String()),
		)
		return p.store.MarkEventProcessed(ctx, ev.ID, now)
	}

	if err := p.applyEffect(ctx, sub.UserID, out.Effect); err != nil {
		return err
	}

	if err := p.store.CompleteEvent(ctx, sub, ev.ID, now); err != nil {
		if errors.Is(err, ErrEventProcessed) {
			log.InfoContext(ctx, "event completed concurrently")
			return nil
		}
		return fmt.Errorf("save subscription: %w", err)
	}

	log.InfoContext(ctx, "event processed",
		slog.String("from", out.From.String()),
		slog.String("to", out.To.String()),
		slog.String("effect", out.Effect.String()),
	)
	return nil
}

// applyEffect tolerates users without a profile: the ledger is still updated.
func (p *Processor) applyEffect(ctx context.Context, userID string, effect Effect) error {
	err := runEffect(ctx, p.entitlements, userID, effect)
	if errors.Is(err, entitlement.ErrProfileNotFound) {
		p.log.ErrorContext(ctx, "profile not found for entitlement change", logger.UserID(userID), slog.String("effect", effect.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("entitlement %s: %w", effect, err)
	}
	return nil
}

func runEffect(ctx context.Context, e Entitlements, userID string, effect Effect) error {
	switch effect {
	case EffectEnable:
		return e.Enable(ctx, userID)
	case EffectDisable:
		return e.Disable(ctx, userID)
	case EffectCancel:
		return e.MarkCancelled(ctx, userID)
	default:
		return nil
	}
}

// OnDeadLetter is a queue.DeadLetterFunc. It reports events that exhausted
// their attempts; other task types are ignored.
func (p *Processor) OnDeadLetter(ctx context.Context, task *queue.Task, err error) {
	if task.TaskName != queue.TaskNameOf(ProcessEvent{}) {
		return
	}

	dl := DeadLetter{Attempts: task.Attempts}
	if err != nil {
		dl.Error = err.Error()
	}

	var payload ProcessEvent
	if uerr := json.Unmarshal(task.Payload, &payload); uerr == nil {
		dl.EventID = payload.EventID.String()
		if ev, gerr := p.store.GetEvent(ctx, payload.EventID); gerr == nil {
			dl.ProviderEventID = ev.ProviderEventID
			dl.EventType = ev.EventType
			dl.SubscriptionID = ev.SubscriptionID.String()
		}
	}

	p.log.ErrorContext(ctx, "event exhausted retries",
		slog.String("event_id", dl.EventID),
		logger.ProviderEventID(dl.ProviderEventID),
		slog.Int("attempts", int(dl.Attempts)),
		logger.Error(err),
	)

	if perr := p.publisher.Publish(ctx, RoutingDeadLettered, dl); perr != nil {
		p.log.ErrorContext(ctx, "failed to publish dead letter", logger.Error(perr))
	}
}
