package entitlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avuweb/membership/svc/entitlement"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, profiles ...entitlement.Profile) (*entitlement.Service, entitlement.Store) {
	t.Helper()
	store := entitlement.NewMemoryStore(profiles...)
	svc := entitlement.NewService(store, entitlement.WithClock(func() time.Time { return fixedNow }))
	return svc, store
}

func socio(id string) entitlement.Profile {
	return entitlement.Profile{UserID: id, UserType: entitlement.UserTypeSocio, SubscriptionStatus: entitlement.StatusNoSubscription}
}

func empresa(id string) entitlement.Profile {
	return entitlement.Profile{UserID: id, UserType: entitlement.UserTypeEmpresa, SubscriptionStatus: entitlement.StatusNoSubscription}
}

func TestService_Enable(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, socio("u1"))
	require.NoError(t, svc.Enable(t.Context(), "u1"))

	p, err := store.GetProfile(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusActive, p.SubscriptionStatus)
	assert.True(t, p.IsSubscriptionActive)
	require.NotNil(t, p.SubscriptionLastUpdated)
	assert.Equal(t, fixedNow, *p.SubscriptionLastUpdated)

	assert.ErrorIs(t, svc.Enable(t.Context(), "missing"), entitlement.ErrProfileNotFound)
}

func TestService_Disable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		profile    entitlement.Profile
		cancel     bool
		wantStatus entitlement.Status
		wantActive bool
	}{
		{name: "socio disabled", profile: socio("s1"), wantStatus: entitlement.StatusInactive},
		{name: "socio cancelled", profile: socio("s2"), cancel: true, wantStatus: entitlement.StatusCancelled},
		{name: "empresa keeps access", profile: empresa("e1"), wantStatus: entitlement.StatusActive, wantActive: true},
		{name: "empresa keeps access on cancel", profile: empresa("e2"), cancel: true, wantStatus: entitlement.StatusActive, wantActive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, store := newService(t, tt.profile)
			require.NoError(t, svc.Enable(t.Context(), tt.profile.UserID))

			if tt.cancel {
				require.NoError(t, svc.MarkCancelled(t.Context(), tt.profile.UserID))
			} else {
				require.NoError(t, svc.Disable(t.Context(), tt.profile.UserID))
			}

			p, err := store.GetProfile(t.Context(), tt.profile.UserID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, p.SubscriptionStatus)
			assert.Equal(t, tt.wantActive, p.IsSubscriptionActive)
			assert.NotNil(t, p.SubscriptionLastUpdated)
		})
	}
}

func TestService_Disable_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	assert.ErrorIs(t, svc.Disable(t.Context(), "nobody"), entitlement.ErrProfileNotFound)
}

func TestService_CanViewContent(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, socio("active"), socio("inactive"), empresa("biz"))
	require.NoError(t, svc.Enable(t.Context(), "active"))

	tests := []struct {
		userID string
		want   bool
	}{
		{userID: "active", want: true},
		{userID: "inactive", want: false},
		{userID: "biz", want: true},
		{userID: "unknown", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			t.Parallel()
			got, err := svc.CanViewContent(t.Context(), tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_CreateProfile(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	_, err := svc.CreateProfile(t.Context(), entitlement.Profile{UserID: " ", UserType: entitlement.UserTypeSocio})
	assert.ErrorIs(t, err, entitlement.ErrEmptyUserID)

	_, err = svc.CreateProfile(t.Context(), entitlement.Profile{UserID: "x", UserType: "admin"})
	assert.ErrorIs(t, err, entitlement.ErrInvalidUserType)

	p, err := svc.CreateProfile(t.Context(), entitlement.Profile{UserID: " u9 ", UserType: entitlement.UserTypeEmpresa, RUT: "211234560018"})
	require.NoError(t, err)
	assert.Equal(t, "u9", p.UserID)
	assert.Equal(t, entitlement.StatusNoSubscription, p.SubscriptionStatus)
	assert.Equal(t, fixedNow, p.CreatedAt)

	profiles, err := svc.ListProfiles(t.Context())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "211234560018", profiles[0].RUT)
}
