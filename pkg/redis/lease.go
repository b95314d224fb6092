package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never removes a lease taken over by another replica.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker hands out exclusive time-bounded leases backed by SET NX PX.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// Lease is held until it is released or its ttl passes without an Extend.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// TryAcquire takes the lease named key for ttl. It returns ok=false without
// error when another holder owns it.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if key == "" {
		return nil, false, ErrLeaseKeyEmpty
	}
	if ttl <= 0 {
		return nil, false, ErrLeaseTTLInvalid
	}

	lease := &Lease{client: l.client, key: l.prefix + key, token: uuid.NewString(), ttl: ttl}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, false, errors.Join(ErrLeaseFailed, err)
	}
	if !ok {
		return nil, false, nil
	}
	return lease, true, nil
}

// Extend pushes the expiry one ttl past now. It returns ErrLeaseLost once
// the lease expired or passed to another holder.
func (l *Lease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return errors.Join(ErrLeaseFailed, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release is safe to call after the lease expired.
func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
