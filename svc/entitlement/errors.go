package entitlement

import "errors"

var (
	ErrProfileNotFound = errors.New("entitlement: profile not found")
	ErrInvalidUserType = errors.New("entitlement: user type must be socio or empresa")
	ErrEmptyUserID     = errors.New("entitlement: user id is required")
	ErrFailedToSave    = errors.New("entitlement: failed to save profile")
	ErrFailedToLoad    = errors.New("entitlement: failed to load profile")
)
