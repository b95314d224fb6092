package entitlement

import (
	"context"
	"time"
)

// Store persists profiles. Implementations return ErrProfileNotFound for
// unknown users.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// SaveProfile inserts or replaces the whole profile.
	SaveProfile(ctx context.Context, p *Profile) error
	// UpdateEntitlement writes only the entitlement fields.
	UpdateEntitlement(ctx context.Context, userID string, status Status, active bool, at time.Time) error
	ListProfiles(ctx context.Context) ([]Profile, error)
}
