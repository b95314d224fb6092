package billing

// Status is the local ledger state of a subscription.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps s onto the closed set of ledger states and returns
// StatusUnknown for anything else.
func ParseStatus(s string) Status {
	switch st := Status(s); st {
	case StatusPending, StatusActive, StatusPaused, StatusCancelled, StatusFailed:
		return st
	default:
		return StatusUnknown
	}
}

func (s Status) String() string { return string(s) }

// Terminal states are never left through automated processing.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusCancelled
}

// ProviderStatus is the status vocabulary found in provider payloads. It
// spans both subscription and payment resources.
type ProviderStatus string

const (
	ProviderAuthorized ProviderStatus = "authorized"
	ProviderPaused     ProviderStatus = "paused"
	ProviderCancelled  ProviderStatus = "cancelled"
	ProviderPending    ProviderStatus = "pending"
	ProviderApproved   ProviderStatus = "approved"
	ProviderRejected   ProviderStatus = "rejected"
	ProviderUnknown    ProviderStatus = "unknown"
)

func ParseProviderStatus(s string) ProviderStatus {
	switch ps := ProviderStatus(s); ps {
	case ProviderAuthorized, ProviderPaused, ProviderCancelled, ProviderPending, ProviderApproved, ProviderRejected:
		return ps
	default:
		return ProviderUnknown
	}
}

// LedgerStatusFromProvider translates the status of a remote subscription.
// The provider reports an active mandate as "authorized".
func LedgerStatusFromProvider(s string) Status {
	if ProviderStatus(s) == ProviderAuthorized {
		return StatusActive
	}
	return ParseStatus(s)
}

type Frequency string

const (
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func ParseFrequency(s string) (Frequency, bool) {
	switch f := Frequency(s); f {
	case FrequencyMonthly, FrequencyYearly:
		return f, true
	case "":
		return FrequencyMonthly, true
	default:
		return "", false
	}
}
