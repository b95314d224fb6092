package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avuweb/membership/pkg/mercadopago"
	"github.com/avuweb/membership/pkg/queue"
	"github.com/avuweb/membership/svc/billing"
	"github.com/avuweb/membership/svc/entitlement"
)

// recordingEnqueuer captures scheduled events instead of queueing them.
type recordingEnqueuer struct {
	mu     sync.Mutex
	events []billing.ProcessEvent
	err    error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, payload any, _ ...queue.EnqueueOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, payload.(billing.ProcessEvent))
	return nil
}

func (r *recordingEnqueuer) scheduled() []billing.ProcessEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]billing.ProcessEvent(nil), r.events...)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error) {
	args := m.Called(ctx, req)
	if p := args.Get(0); p != nil {
		return p.(*mercadopago.Preference), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) GetSubscription(ctx context.Context, id string) (*mercadopago.RemoteSubscription, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*mercadopago.RemoteSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, id string) (*mercadopago.RemoteSubscription, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*mercadopago.RemoteSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) ListPayments(ctx context.Context, id string) ([]mercadopago.Payment, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.([]mercadopago.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

// failingEntitlements fails every call with err.
type failingEntitlements struct {
	err error
}

func (f failingEntitlements) Enable(context.Context, string) error        { return f.err }
func (f failingEntitlements) Disable(context.Context, string) error       { return f.err }
func (f failingEntitlements) MarkCancelled(context.Context, string) error { return f.err }

var errBoom = errors.New("boom")

type env struct {
	store     billing.Store
	profiles  entitlement.Store
	ents      *entitlement.Service
	enqueuer  *recordingEnqueuer
	provider  *mockProvider
	service   *billing.Service
	processor *billing.Processor
}

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newEnv(t *testing.T, profiles ...entitlement.Profile) *env {
	t.Helper()

	e := &env{
		store:    billing.NewMemoryStore(),
		profiles: entitlement.NewMemoryStore(profiles...),
		enqueuer: &recordingEnqueuer{},
		provider: &mockProvider{},
	}
	e.ents = entitlement.NewService(e.profiles, entitlement.WithClock(clockAt(fixedNow)))
	e.service = billing.NewService(e.store, e.provider, e.ents, e.enqueuer, billing.WithClock(clockAt(fixedNow)))
	e.processor = billing.NewProcessor(e.store, e.ents, billing.WithProcessorClock(clockAt(fixedNow)))
	return e
}

func socio(id string) entitlement.Profile {
	return entitlement.Profile{UserID: id, UserType: entitlement.UserTypeSocio, SubscriptionStatus: entitlement.StatusNoSubscription}
}

func empresa(id string) entitlement.Profile {
	return entitlement.Profile{UserID: id, UserType: entitlement.UserTypeEmpresa, SubscriptionStatus: entitlement.StatusNoSubscription}
}

// seed stores a subscription for userID in status.
func (e *env) seed(t *testing.T, userID, providerID string, status billing.Status) *billing.Subscription {
	t.Helper()
	sub := billing.NewSubscription(userID, providerID, fixedNow.Add(-72*time.Hour))
	sub.Status = status
	sub.Amount = 1500
	require.NoError(t, e.store.CreateSubscription(t.Context(), sub))
	return sub
}

// deliver ingests body and runs every scheduled event through the processor.
func (e *env) deliver(t *testing.T, body string) billing.IngestResult {
	t.Helper()

	n, err := billing.ParseNotification([]byte(body))
	require.NoError(t, err)

	before := len(e.enqueuer.scheduled())
	res, err := e.service.Ingest(t.Context(), n)
	require.NoError(t, err)

	for _, pe := range e.enqueuer.scheduled()[before:] {
		require.NoError(t, e.processor.Handle(t.Context(), pe))
	}
	return res
}

func (e *env) profile(t *testing.T, userID string) *entitlement.Profile {
	t.Helper()
	p, err := e.profiles.GetProfile(t.Context(), userID)
	require.NoError(t, err)
	return p
}

func (e *env) subscription(t *testing.T, userID string) *billing.Subscription {
	t.Helper()
	sub, err := e.store.GetSubscriptionByUser(t.Context(), userID)
	require.NoError(t, err)
	return sub
}
