package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/pkg/mercadopago"
	"github.com/avuweb/membership/pkg/queue"
)

// Service is the request-path entry point to billing: webhook ingestion and
// user-initiated subscription changes.
type Service struct {
	store        Store
	provider     Provider
	entitlements Entitlements
	enqueuer     Enqueuer
	cfg          Config
	log          *slog.Logger
	now          func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) { s.cfg = cfg }
}

func NewService(store Store, provider Provider, entitlements Entitlements, enqueuer Enqueuer, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		provider:     provider,
		entitlements: entitlements,
		enqueuer:     enqueuer,
		cfg:          DefaultConfig(),
		log:          logger.Discard(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing"))
	return s
}

type IngestStatus string

const (
	IngestIgnored   IngestStatus = "ignored"
	IngestDuplicate IngestStatus = "already_processed"
	IngestReceived  IngestStatus = "received"
)

type IngestResult struct {
	Status  IngestStatus
	EventID uuid.UUID
}

// Ingest resolves the subscription, stores the event once and schedules it.
// It never calls the provider. Duplicates are acknowledged without
// scheduling. ErrSubscriptionNotFound means there is nothing to apply to.
func (s *Service) Ingest(ctx context.Context, n Notification) (IngestResult, error) {
	log := s.log.With(logger.ProviderEventID(n.EventID), logger.EventType(n.EventType))

	if FamilyOf(n.EventType) == FamilyUnknown {
		log.InfoContext(ctx, "ignoring event type")
		return IngestResult{Status: IngestIgnored}, nil
	}

	sub, err := s.store.FindByProviderRef(ctx, n.ResourceID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.WarnContext(ctx, "subscription not found for resource", slog.String("resource_id", n.ResourceID))
		return IngestResult{}, err
	}
	if err != nil {
		return IngestResult{}, fmt.Errorf("resolve subscription: %w", err)
	}

	ev := &Event{
		ID:              uuid.New(),
		SubscriptionID:  sub.ID,
		ProviderEventID: n.EventID,
		EventType:       n.EventType,
		Payload:         n.Payload,
		CreatedAt:       s.now().UTC(),
	}
	created, err := s.store.RecordEvent(ctx, ev)
	if err != nil {
		return IngestResult{}, fmt.Errorf("record event: %w", err)
	}
	if !created && (ev.Processed || ev.ErrorMessage == nil) {
		log.InfoContext(ctx, "duplicate webhook", logger.EventID(ev.ID))
		return IngestResult{Status: IngestDuplicate, EventID: ev.ID}, nil
	}
	if !created {
		// A redelivery of an event that failed to enqueue or process gets
		// another attempt.
		log.InfoContext(ctx, "redelivered failed webhook", logger.EventID(ev.ID), slog.String("error", *ev.ErrorMessage))
	}

	if err := s.schedule(ctx, ev.ID); err != nil {
		if markErr := s.store.MarkEventFailed(ctx, ev.ID, err.Error()); markErr != nil {
			log.ErrorContext(ctx, "failed to record enqueue error", logger.Error(markErr))
		}
		return IngestResult{}, err
	}

	log.InfoContext(ctx, "webhook received and queued", logger.EventID(ev.ID), logger.SubscriptionID(sub.ID))
	return IngestResult{Status: IngestReceived, EventID: ev.ID}, nil
}

func (s *Service) schedule(ctx context.Context, eventID uuid.UUID) error {
	opts := append(s.cfg.RetryPolicy().EnqueueOptions(), queue.WithQueue(s.cfg.Queue))
	if err := s.enqueuer.Enqueue(ctx, ProcessEvent{EventID: eventID}, opts...); err != nil {
		return errors.Join(ErrEnqueue, err)
	}
	return nil
}

// RetryEvent schedules an unprocessed event again, typically one listed by
// ListFailedEvents after its task was dead-lettered.
func (s *Service) RetryEvent(ctx context.Context, eventID uuid.UUID) error {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.Processed {
		return ErrEventProcessed
	}
	return s.schedule(ctx, ev.ID)
}

func (s *Service) ListFailedEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListFailedEvents(ctx, limit)
}

func (s *Service) SubscriptionForUser(ctx context.Context, userID string) (*Subscription, error) {
	return s.store.GetSubscriptionByUser(ctx, userID)
}

type StartParams struct {
	UserID    string
	Email     string
	PlanID    string
	Amount    int64
	Frequency Frequency
}

// Start opens a provider checkout and records a pending subscription keyed
// by the preference id. It returns the checkout preference.
func (s *Service) Start(ctx context.Context, p StartParams) (*Subscription, *mercadopago.Preference, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return nil, nil, ErrEmptyUserID
	}
	freq, ok := ParseFrequency(string(p.Frequency))
	if !ok {
		return nil, nil, ErrInvalidFrequency
	}
	if p.Amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	if _, err := s.store.GetSubscriptionByUser(ctx, p.UserID); err == nil {
		return nil, nil, ErrSubscriptionExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil, err
	}

	pref, err := s.provider.CreatePreference(ctx, mercadopago.PreferenceRequest{
		PayerEmail: p.Email,
		PlanID:     p.PlanID,
		Amount:     p.Amount,
		Frequency:  mercadopago.Frequency(freq),
	})
	if err != nil {
		return nil, nil, err
	}

	sub := NewSubscription(p.UserID, pref.ID, s.now().UTC())
	sub.Frequency = freq
	sub.Amount = p.Amount
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, nil, err
	}

	s.log.InfoContext(ctx, "subscription started", logger.UserID(p.UserID), logger.SubscriptionID(sub.ID))
	return sub, pref, nil
}

// Cancel cancels at the provider first, then ends the local subscription and
// revokes access.
func (s *Service) Cancel(ctx context.Context, userID string) (*Subscription, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, ErrAlreadyCancelled
	}

	if _, err := s.provider.CancelSubscription(ctx, sub.ProviderSubscriptionID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub.Status = StatusCancelled
	sub.NextPaymentDate = nil
	sub.ProviderUpdatedAt = &now
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	if err := runEffect(ctx, s.entitlements, userID, EffectCancel); err != nil {
		s.log.ErrorContext(ctx, "cancelled subscription but entitlement update failed", logger.UserID(userID), logger.Error(err))
		return sub, err
	}

	s.log.InfoContext(ctx, "subscription cancelled", logger.UserID(userID), logger.SubscriptionID(sub.ID))
	return sub, nil
}

// Payments lists the provider payment history for the user's subscription.
func (s *Service) Payments(ctx context.Context, userID string) ([]mercadopago.Payment, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.provider.ListPayments(ctx, sub.ProviderSubscriptionID)
}
