package mercadopago

import "encoding/json"

type Frequency string

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// frequencyType maps our plan frequency onto auto_recurring.frequency_type.
func (f Frequency) frequencyType() (string, bool) {
	switch f {
	case Monthly, "":
		return "months", true
	case Yearly:
		return "years", true
	default:
		return "", false
	}
}

// PreferenceRequest starts a recurring checkout. Amount is in minor units.
type PreferenceRequest struct {
	PayerEmail string
	PlanID     string
	Amount     int64
	Frequency  Frequency
}

type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// RemoteSubscription is the provider view of a subscription. Dates are kept
// as sent by the provider.
type RemoteSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	PayerEmail        string `json:"payer_email"`
	ExternalReference string `json:"external_reference"`
	PreapprovalPlanID string `json:"preapproval_plan_id"`
	NextPaymentDate   string `json:"next_payment_date"`
	DateCreated       string `json:"date_created"`
	LastModified      string `json:"last_modified"`
}

type Payment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	TransactionAmount float64     `json:"transaction_amount"`
	CurrencyID        string      `json:"currency_id"`
	DateCreated       string      `json:"date_created"`
}

type autoRecurring struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

type backURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type preferencePayload struct {
	PayerEmail        string        `json:"payer_email"`
	AutoRecurring     autoRecurring `json:"auto_recurring"`
	BackURLs          backURLs      `json:"back_urls"`
	NotificationURL   string        `json:"notification_url,omitempty"`
	ExternalReference string        `json:"external_reference,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
