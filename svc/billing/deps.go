package billing

import (
	"context"
	"sync"
	"time"

	"github.com/avuweb/membership/pkg/mercadopago"
	"github.com/avuweb/membership/pkg/queue"
)

// Provider is the subset of the payment provider client billing uses.
type Provider interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	GetSubscription(ctx context.Context, id string) (*mercadopago.RemoteSubscription, error)
	CancelSubscription(ctx context.Context, id string) (*mercadopago.RemoteSubscription, error)
	ListPayments(ctx context.Context, id string) ([]mercadopago.Payment, error)
}

// Entitlements is implemented by entitlement.Service.
type Entitlements interface {
	Enable(ctx context.Context, userID string) error
	Disable(ctx context.Context, userID string) error
	MarkCancelled(ctx context.Context, userID string) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// Lease is an exclusive hold on a key.
type Lease interface {
	// Extend pushes the expiry one ttl past now. It fails once the lease
	// expired or passed to another holder.
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker grants a time-bounded exclusive lease.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
}

type localLocker struct {
	mu     sync.Mutex
	leases map[string]*localLease
	now    func() time.Time
}

// NewLocalLocker returns a Locker that only excludes callers within this process.
func NewLocalLocker() Locker {
	return &localLocker{leases: make(map[string]*localLease), now: time.Now}
}

func (l *localLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && held.until.After(now) {
		return nil, false, nil
	}
	lease := &localLease{locker: l, key: key, ttl: ttl, until: now.Add(ttl)}
	l.leases[key] = lease
	return lease, true, nil
}

type localLease struct {
	locker *localLocker
	key    string
	ttl    time.Duration
	until  time.Time
}

func (ls *localLease) Extend(context.Context) error {
	l := ls.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.leases[ls.key] != ls || !ls.until.After(now) {
		return ErrLeaseLost
	}
	ls.until = now.Add(ls.ttl)
	return nil
}

func (ls *localLease) Release(context.Context) error {
	l := ls.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.leases[ls.key] == ls {
		delete(l.leases, ls.key)
	}
	return nil
}
