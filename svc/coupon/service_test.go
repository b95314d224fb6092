package coupon_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avuweb/membership/svc/coupon"
)

type mockEnabler struct {
	mock.Mock
}

func (m *mockEnabler) Enable(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*coupon.Service, *mockEnabler, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	enabler := &mockEnabler{}
	svc := coupon.NewService(coupon.NewMemoryStore(), enabler, coupon.WithClock(clock.Now))
	return svc, enabler, clock
}

func TestGenerateCode(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`^[0-9A-F]{32}$`)
	seen := make(map[string]struct{})
	for range 100 {
		code := coupon.GenerateCode()
		require.Regexp(t, re, code)
		_, dup := seen[code]
		require.False(t, dup)
		seen[code] = struct{}{}
	}
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	svc, _, clock := setup(t)

	_, err := svc.Create(t.Context(), coupon.CreateParams{ExpiresAt: clock.Now()})
	assert.ErrorIs(t, err, coupon.ErrInvalidExpiry)

	c, err := svc.Create(t.Context(), coupon.CreateParams{CreatedBy: "admin", ExpiresAt: clock.Now().AddDate(0, 3, 0)})
	require.NoError(t, err)
	assert.Len(t, c.Code, 32)
	assert.Equal(t, coupon.DefaultMonthsOfValidity, c.MonthsOfValidity)
	assert.False(t, c.IsUsed)
	assert.Nil(t, c.UsedBy)
}

func TestService_Redeem(t *testing.T) {
	t.Parallel()

	svc, enabler, clock := setup(t)
	enabler.On("Enable", mock.Anything, "u1").Return(nil).Once()

	c, err := svc.Create(t.Context(), coupon.CreateParams{ExpiresAt: clock.Now().Add(24 * time.Hour)})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	redeemed, err := svc.Redeem(t.Context(), " "+strings.ToLower(c.Code)+" ", "u1")
	require.NoError(t, err)
	assert.True(t, redeemed.IsUsed)
	require.NotNil(t, redeemed.UsedBy)
	assert.Equal(t, "u1", *redeemed.UsedBy)
	require.NotNil(t, redeemed.UsedAt)
	assert.Equal(t, clock.Now(), *redeemed.UsedAt)

	_, err = svc.Redeem(t.Context(), c.Code, "u2")
	assert.ErrorIs(t, err, coupon.ErrCouponAlreadyUsed)

	enabler.AssertExpectations(t)
}

func TestService_Redeem_Failures(t *testing.T) {
	t.Parallel()

	svc, enabler, clock := setup(t)

	expiring, err := svc.Create(t.Context(), coupon.CreateParams{ExpiresAt: clock.Now().Add(time.Minute)})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	tests := []struct {
		name    string
		code    string
		userID  string
		wantErr error
	}{
		{name: "unknown code", code: "DEADBEEF", userID: "u1", wantErr: coupon.ErrCouponNotFound},
		{name: "expired exactly at expiry", code: expiring.Code, userID: "u1", wantErr: coupon.ErrCouponExpired},
		{name: "empty code", code: "  ", userID: "u1", wantErr: coupon.ErrEmptyCode},
		{name: "empty user", code: expiring.Code, userID: "", wantErr: coupon.ErrEmptyUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Redeem(t.Context(), tt.code, tt.userID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	enabler.AssertNotCalled(t, "Enable", mock.Anything, mock.Anything)
}

func TestService_Redeem_EnableFailure(t *testing.T) {
	t.Parallel()

	svc, enabler, clock := setup(t)
	enabler.On("Enable", mock.Anything, "u1").Return(errors.New("profile missing")).Once()
	enabler.On("Enable", mock.Anything, "u1").Return(nil).Once()

	c, err := svc.Create(t.Context(), coupon.CreateParams{ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	redeemed, err := svc.Redeem(t.Context(), c.Code, "u1")
	assert.ErrorIs(t, err, coupon.ErrEnableFailed)
	assert.Nil(t, redeemed)

	list, err := svc.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsUsed)
	assert.Nil(t, list[0].UsedBy)

	// Once the profile exists the same code still works.
	redeemed, err = svc.Redeem(t.Context(), c.Code, "u1")
	require.NoError(t, err)
	assert.True(t, redeemed.IsUsed)
	enabler.AssertExpectations(t)
}

func TestService_Redeem_Concurrent(t *testing.T) {
	t.Parallel()

	svc, enabler, clock := setup(t)
	enabler.On("Enable", mock.Anything, mock.Anything).Return(nil)

	c, err := svc.Create(t.Context(), coupon.CreateParams{ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		used      atomic.Int32
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(context.Background(), c.Code, "user-"+string(rune('a'+i)))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, coupon.ErrCouponAlreadyUsed):
				used.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, attempts-1, used.Load())
	enabler.AssertNumberOfCalls(t, "Enable", 1)
}

func TestService_List(t *testing.T) {
	t.Parallel()

	svc, _, clock := setup(t)

	first, err := svc.Create(t.Context(), coupon.CreateParams{ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := svc.Create(t.Context(), coupon.CreateParams{ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	list, err := svc.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
