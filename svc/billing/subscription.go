package billing

import (
	"time"

	"github.com/google/uuid"
)

// FailedPaymentThreshold rejected payments in a row make a subscription failed.
const FailedPaymentThreshold = 4

const (
	monthlyPeriod = 30 * 24 * time.Hour
	yearlyPeriod  = 365 * 24 * time.Hour
)

// Subscription is the local ledger row, one per user. Amount is in minor
// currency units. ProviderUpdatedAt is when the ledger last applied a provider
// change, on the local clock. LastEventAt is the newest provider-issued event
// time seen and is what orders deliveries.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 string
	ProviderSubscriptionID string
	PreapprovalID          string
	Status                 Status
	Frequency              Frequency
	Amount                 int64
	LastPaymentDate        *time.Time
	NextPaymentDate        *time.Time
	FailedPaymentCount     int
	LastSyncedAt           *time.Time
	ProviderUpdatedAt      *time.Time
	LastEventAt            *time.Time
	CreatedAt              time.Time
}

// NewSubscription returns a pending monthly subscription.
func NewSubscription(userID, providerID string, now time.Time) *Subscription {
	return &Subscription{
		ID:                     uuid.New(),
		UserID:                 userID,
		ProviderSubscriptionID: providerID,
		Status:                 StatusPending,
		Frequency:              FrequencyMonthly,
		CreatedAt:              now,
	}
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) CanBeRenewed() bool {
	return s.Status == StatusActive || s.Status == StatusPending
}

func (s *Subscription) IsTerminal() bool {
	return s.Status.Terminal()
}

// NextPaymentFrom returns now plus one billing period.
func (s *Subscription) NextPaymentFrom(now time.Time) time.Time {
	if s.Frequency == FrequencyYearly {
		return now.Add(yearlyPeriod)
	}
	return now.Add(monthlyPeriod)
}

// RecordApprovedPayment stamps the payment, resets the failure streak and
// schedules the next charge.
func (s *Subscription) RecordApprovedPayment(now time.Time) {
	next := s.NextPaymentFrom(now)
	s.LastPaymentDate = &now
	s.NextPaymentDate = &next
	s.FailedPaymentCount = 0
}

// RecordRejectedPayment counts a rejection and reports whether the
// threshold has been reached.
func (s *Subscription) RecordRejectedPayment() bool {
	s.FailedPaymentCount++
	return s.FailedPaymentCount >= FailedPaymentThreshold
}

func (s *Subscription) clone() *Subscription {
	cp := *s
	cp.LastPaymentDate = clonePtr(s.LastPaymentDate)
	cp.NextPaymentDate = clonePtr(s.NextPaymentDate)
	cp.LastSyncedAt = clonePtr(s.LastSyncedAt)
	cp.ProviderUpdatedAt = clonePtr(s.ProviderUpdatedAt)
	cp.LastEventAt = clonePtr(s.LastEventAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
