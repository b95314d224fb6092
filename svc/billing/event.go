package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one provider notification, stored verbatim. ProviderEventID is
// the idempotency key. An event is either processed or carries the last
// error, never both.
type Event struct {
	ID              uuid.UUID
	SubscriptionID  uuid.UUID
	ProviderEventID string
	EventType       string
	Payload         json.RawMessage
	Processed       bool
	ProcessedAt     *time.Time
	ErrorMessage    *string
	CreatedAt       time.Time
}

type Family int

const (
	FamilyUnknown Family = iota
	FamilySubscription
	FamilyPayment
)

func (f Family) String() string {
	switch f {
	case FamilySubscription:
		return "subscription"
	case FamilyPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// FamilyOf classifies an event type by substring, subscription first.
func FamilyOf(eventType string) Family {
	switch {
	case strings.Contains(eventType, "subscription"):
		return FamilySubscription
	case strings.Contains(eventType, "payment"):
		return FamilyPayment
	default:
		return FamilyUnknown
	}
}

// flexString decodes JSON strings and numbers alike; provider ids come as both.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

type eventFields struct {
	ID           flexString `json:"id"`
	Type         string     `json:"type"`
	Action       string     `json:"action"`
	Status       string     `json:"status"`
	DateCreated  string     `json:"date_created"`
	LastModified string     `json:"last_modified"`
}

type eventBody struct {
	eventFields
	Data eventFields `json:"data"`
}

// Notification is a validated webhook body.
type Notification struct {
	EventID    string
	EventType  string
	ResourceID string
	Payload    json.RawMessage
}

// ParseNotification decodes a webhook body and requires id, type and data.id.
func ParseNotification(body []byte) (Notification, error) {
	var b eventBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	n := Notification{
		EventID:    strings.TrimSpace(string(b.ID)),
		EventType:  strings.TrimSpace(b.Type),
		ResourceID: strings.TrimSpace(string(b.Data.ID)),
		Payload:    json.RawMessage(bytes.Clone(body)),
	}

	var missing []string
	if n.EventID == "" {
		missing = append(missing, "id")
	}
	if n.EventType == "" {
		missing = append(missing, "type")
	}
	if n.ResourceID == "" {
		missing = append(missing, "data.id")
	}
	if len(missing) > 0 {
		return Notification{}, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	return n, nil
}

// payloadView is what the processor reads from a stored payload.
type payloadView struct {
	Status        ProviderStatus
	PreapprovalID string
	OccurredAt    time.Time
}

// readPayload takes status from the top level, falling back to data. The
// preapproval id is the top-level id. OccurredAt stays zero when the payload
// carries no RFC3339 date_created or last_modified.
func readPayload(raw json.RawMessage) (payloadView, error) {
	var b eventBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return payloadView{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	status := b.Status
	if status == "" {
		status = b.Data.Status
	}

	v := payloadView{
		Status:        ParseProviderStatus(status),
		PreapprovalID: string(b.ID),
	}
	for _, ts := range []string{b.LastModified, b.DateCreated, b.Data.LastModified, b.Data.DateCreated} {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			v.OccurredAt = t.UTC()
			break
		}
	}
	return v, nil
}
