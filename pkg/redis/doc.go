// Package redis connects to Redis with retries and provides a lease lock
// used to keep periodic sweeps to a single replica.
//
//	client, err := redis.Connect(ctx, cfg)
//	locker := redis.NewLocker(client, "membership:")
//	lease, ok, err := locker.TryAcquire(ctx, "reconcile", 5*time.Minute)
//	if err == nil && ok {
//		defer lease.Release(ctx)
//		err = lease.Extend(ctx) // between units of work
//	}
package redis
