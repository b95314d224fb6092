package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avuweb/membership/svc/billing"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func subscriptionIn(status billing.Status) *billing.Subscription {
	sub := billing.NewSubscription("u1", "pref-1", fixedNow.Add(-48*time.Hour))
	sub.Status = status
	return sub
}

func TestApply_SubscriptionFamily(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		from       billing.Status
		status     billing.ProviderStatus
		wantStatus billing.Status
		wantEffect billing.Effect
		wantSkip   string
	}{
		{"authorized activates pending", billing.StatusPending, billing.ProviderAuthorized, billing.StatusActive, billing.EffectEnable, ""},
		{"authorized resumes paused", billing.StatusPaused, billing.ProviderAuthorized, billing.StatusActive, billing.EffectEnable, ""},
		{"paused", billing.StatusActive, billing.ProviderPaused, billing.StatusPaused, billing.EffectNone, ""},
		{"cancelled", billing.StatusActive, billing.ProviderCancelled, billing.StatusCancelled, billing.EffectCancel, ""},
		{"pending", billing.StatusActive, billing.ProviderPending, billing.StatusPending, billing.EffectNone, ""},
		{"unknown status", billing.StatusActive, billing.ProviderUnknown, billing.StatusActive, billing.EffectNone, billing.SkipUnknownStatus},
		{"cancelled is terminal", billing.StatusCancelled, billing.ProviderAuthorized, billing.StatusCancelled, billing.EffectNone, billing.SkipTerminal},
		{"failed is terminal", billing.StatusFailed, billing.ProviderAuthorized, billing.StatusFailed, billing.EffectNone, billing.SkipTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub := subscriptionIn(tt.from)
			out := billing.Apply(sub, billing.Change{
				Family:        billing.FamilySubscription,
				Status:        tt.status,
				PreapprovalID: "PA-1",
			}, fixedNow)

			assert.Equal(t, tt.from, out.From)
			assert.Equal(t, tt.wantStatus, out.To)
			assert.Equal(t, tt.wantStatus, sub.Status)
			assert.Equal(t, tt.wantEffect, out.Effect)
			assert.Equal(t, tt.wantSkip, out.Skipped)
			assert.Equal(t, tt.wantSkip == "", out.Mutated())
		})
	}
}

func TestApply_AuthorizedRecordsPreapproval(t *testing.T) {
	t.Parallel()

	sub := subscriptionIn(billing.StatusPending)
	billing.Apply(sub, billing.Change{Family: billing.FamilySubscription, Status: billing.ProviderAuthorized, PreapprovalID: "PA-1"}, fixedNow)

	assert.Equal(t, "PA-1", sub.PreapprovalID)
	assert.Equal(t, "pref-1", sub.ProviderSubscriptionID)
	require.NotNil(t, sub.ProviderUpdatedAt)
	assert.Equal(t, fixedNow, *sub.ProviderUpdatedAt)
}

func TestApply_CancelClearsNextPayment(t *testing.T) {
	t.Parallel()

	sub := subscriptionIn(billing.StatusActive)
	next := fixedNow.Add(24 * time.Hour)
	sub.NextPaymentDate = &next

	billing.Apply(sub, billing.Change{Family: billing.FamilySubscription, Status: billing.ProviderCancelled}, fixedNow)
	assert.Nil(t, sub.NextPaymentDate)
}

func TestApply_StaleGuard(t *testing.T) {
	t.Parallel()

	updated := fixedNow.Add(-time.Hour)

	t.Run("older subscription event dropped", func(t *testing.T) {
		t.Parallel()

		sub := subscriptionIn(billing.StatusActive)
		sub.LastEventAt = &updated

		out := billing.Apply(sub, billing.Change{
			Family:     billing.FamilySubscription,
			Status:     billing.ProviderPaused,
			OccurredAt: updated.Add(-time.Minute),
		}, fixedNow)

		assert.Equal(t, billing.SkipStale, out.Skipped)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.Equal(t, updated, *sub.LastEventAt)
		assert.Nil(t, sub.ProviderUpdatedAt)
	})

	t.Run("local apply time does not guard", func(t *testing.T) {
		t.Parallel()

		// A timestamp-less payment applied at now must not hide a
		// cancellation the provider issued a moment earlier.
		sub := subscriptionIn(billing.StatusActive)
		applied := billing.Apply(sub, billing.Change{Family: billing.FamilyPayment, Status: billing.ProviderApproved}, fixedNow)
		require.True(t, applied.Mutated())
		assert.Nil(t, sub.LastEventAt)

		out := billing.Apply(sub, billing.Change{
			Family:     billing.FamilySubscription,
			Status:     billing.ProviderCancelled,
			OccurredAt: fixedNow.Add(-time.Second),
		}, fixedNow.Add(time.Second))

		assert.True(t, out.Mutated())
		assert.Equal(t, billing.StatusCancelled, sub.Status)
		assert.Equal(t, billing.EffectCancel, out.Effect)
	})

	t.Run("newer subscription event applied", func(t *testing.T) {
		t.Parallel()

		sub := subscriptionIn(billing.StatusActive)
		sub.LastEventAt = &updated
		at := updated.Add(time.Minute)

		out := billing.Apply(sub, billing.Change{
			Family:     billing.FamilySubscription,
			Status:     billing.ProviderPaused,
			OccurredAt: at,
		}, fixedNow)

		assert.True(t, out.Mutated())
		assert.Equal(t, billing.StatusPaused, sub.Status)
		assert.Equal(t, at, *sub.LastEventAt)
		assert.Equal(t, fixedNow, *sub.ProviderUpdatedAt)
	})

	t.Run("event without time applied", func(t *testing.T) {
		t.Parallel()

		sub := subscriptionIn(billing.StatusActive)
		sub.LastEventAt = &updated

		out := billing.Apply(sub, billing.Change{Family: billing.FamilySubscription, Status: billing.ProviderPaused}, fixedNow)
		assert.True(t, out.Mutated())
		assert.Equal(t, fixedNow, *sub.ProviderUpdatedAt)
		assert.Equal(t, updated, *sub.LastEventAt)
	})

	t.Run("payment events never guarded", func(t *testing.T) {
		t.Parallel()

		sub := subscriptionIn(billing.StatusActive)
		sub.LastEventAt = &updated

		out := billing.Apply(sub, billing.Change{
			Family:     billing.FamilyPayment,
			Status:     billing.ProviderApproved,
			OccurredAt: updated.Add(-time.Hour),
		}, fixedNow)

		assert.True(t, out.Mutated())
		assert.Equal(t, updated, *sub.LastEventAt, "event time never moves backwards")
	})
}

func TestApply_ApprovedPayment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		frequency billing.Frequency
		wantNext  time.Time
	}{
		{"monthly", billing.FrequencyMonthly, fixedNow.Add(30 * 24 * time.Hour)},
		{"yearly", billing.FrequencyYearly, fixedNow.Add(365 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub := subscriptionIn(billing.StatusActive)
			sub.Frequency = tt.frequency
			sub.FailedPaymentCount = 3

			out := billing.Apply(sub, billing.Change{Family: billing.FamilyPayment, Status: billing.ProviderApproved}, fixedNow)

			assert.Equal(t, billing.EffectEnable, out.Effect)
			assert.Equal(t, billing.StatusActive, sub.Status)
			assert.Zero(t, sub.FailedPaymentCount)
			require.NotNil(t, sub.LastPaymentDate)
			assert.Equal(t, fixedNow, *sub.LastPaymentDate)
			require.NotNil(t, sub.NextPaymentDate)
			assert.Equal(t, tt.wantNext, *sub.NextPaymentDate)
		})
	}
}

func TestApply_RejectedPayments(t *testing.T) {
	t.Parallel()

	sub := subscriptionIn(billing.StatusActive)
	rejected := billing.Change{Family: billing.FamilyPayment, Status: billing.ProviderRejected}

	for i := 1; i < billing.FailedPaymentThreshold; i++ {
		out := billing.Apply(sub, rejected, fixedNow)
		assert.Equal(t, billing.StatusPaused, out.To, "rejection %d", i)
		assert.Equal(t, billing.EffectNone, out.Effect)
		assert.Equal(t, i, sub.FailedPaymentCount)
	}

	out := billing.Apply(sub, rejected, fixedNow)
	assert.Equal(t, billing.StatusFailed, out.To)
	assert.Equal(t, billing.EffectDisable, out.Effect)
	assert.Equal(t, billing.FailedPaymentThreshold, sub.FailedPaymentCount)

	out = billing.Apply(sub, billing.Change{Family: billing.FamilyPayment, Status: billing.ProviderApproved}, fixedNow)
	assert.Equal(t, billing.SkipTerminal, out.Skipped)
	assert.Equal(t, billing.StatusFailed, sub.Status)
}

func TestApply_AuthorizedPaymentSchedulesNext(t *testing.T) {
	t.Parallel()

	sub := subscriptionIn(billing.StatusActive)
	out := billing.Apply(sub, billing.Change{Family: billing.FamilyPayment, Status: billing.ProviderAuthorized}, fixedNow)

	assert.Equal(t, billing.EffectNone, out.Effect)
	require.NotNil(t, sub.NextPaymentDate)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour), *sub.NextPaymentDate)
	assert.Nil(t, sub.LastPaymentDate)
}

func TestApply_UnknownFamily(t *testing.T) {
	t.Parallel()

	sub := subscriptionIn(billing.StatusActive)
	out := billing.Apply(sub, billing.Change{Family: billing.FamilyUnknown, Status: billing.ProviderAuthorized}, fixedNow)
	assert.Equal(t, billing.SkipUnknownFamily, out.Skipped)
	assert.Nil(t, sub.ProviderUpdatedAt)
}
