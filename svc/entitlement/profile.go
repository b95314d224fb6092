package entitlement

import "time"

type UserType string

const (
	UserTypeSocio   UserType = "socio"
	UserTypeEmpresa UserType = "empresa"
)

func (t UserType) Valid() bool {
	return t == UserTypeSocio || t == UserTypeEmpresa
}

type Status string

const (
	StatusNoSubscription Status = "no_subscription"
	StatusActive         Status = "active"
	StatusInactive       Status = "inactive"
	StatusCancelled      Status = "cancelled"
)

// Profile carries the entitlement gate for one user. IsSubscriptionActive is
// the flag content checks consult.
type Profile struct {
	UserID                  string
	UserType                UserType
	Email                   string
	FullName                string
	Address                 string
	IdentityNumber          string // socio only
	PhoneNumber             string
	RUT                     string // empresa only
	SubscriptionStatus      Status
	IsSubscriptionActive    bool
	SubscriptionLastUpdated *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (p *Profile) IsEmpresa() bool {
	return p.UserType == UserTypeEmpresa
}

func (p *Profile) IsSocio() bool {
	return p.UserType == UserTypeSocio
}

// CanViewContent reports whether the profile may see member-only content.
// Business accounts always can.
func (p *Profile) CanViewContent() bool {
	return p.IsSubscriptionActive || p.IsEmpresa()
}
