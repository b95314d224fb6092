// Package billing keeps the local subscription ledger in step with the
// payment provider.
//
// Webhooks are ingested by Service.Ingest: the notification is resolved to a
// subscription, stored once in the event log keyed by the provider event id
// and scheduled on the queue. The Processor applies stored events through
// Apply, updates entitlements and marks each event processed in the same
// store write as the subscription. Failed events are retried with
// exponential backoff and reported on the event bus once dead-lettered.
//
// The Reconciler periodically compares stale subscriptions with the provider
// and corrects drift. Renewals announces charges due within a window. Both
// hold a Locker lease so a single replica runs each sweep.
//
// Terminal statuses (cancelled, failed) are never left through automated
// processing.
package billing
