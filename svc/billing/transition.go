package billing

import (
	"slices"
	"time"
)

// transitions lists the moves automated processing may make. Terminal
// states have no entry.
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusPaused, StatusCancelled, StatusFailed},
	StatusActive:  {StatusPaused, StatusCancelled, StatusFailed, StatusPending},
	StatusPaused:  {StatusActive, StatusFailed, StatusCancelled, StatusPending},
}

// CanTransition reports whether from may move to to. Self moves are allowed
// and change nothing.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Effect is the entitlement side effect of applying a change.
type Effect int

const (
	EffectNone Effect = iota
	EffectEnable
	EffectDisable
	EffectCancel
)

func (e Effect) String() string {
	switch e {
	case EffectEnable:
		return "enable"
	case EffectDisable:
		return "disable"
	case EffectCancel:
		return "cancel"
	default:
		return "none"
	}
}

// Skip reasons reported in Outcome.Skipped.
const (
	SkipTerminal          = "terminal"
	SkipStale             = "stale"
	SkipUnknownStatus     = "unknown_status"
	SkipUnknownFamily     = "unknown_family"
	SkipInvalidTransition = "invalid_transition"
)

// Change is one provider notification as the state machine sees it.
// OccurredAt is zero when the payload has no usable timestamp.
type Change struct {
	Family        Family
	Status        ProviderStatus
	PreapprovalID string
	OccurredAt    time.Time
}

type Outcome struct {
	From    Status
	To      Status
	Effect  Effect
	Skipped string
}

// Mutated reports whether sub was modified and must be saved.
func (o Outcome) Mutated() bool {
	return o.Skipped == ""
}

// Apply mutates sub according to c and returns what happened.
//
// Terminal subscriptions are left untouched. A subscription-family change
// issued before sub.LastEventAt is dropped so late deliveries cannot regress
// the status. Only provider event times are compared; the local clock never
// enters the guard. Every applied change stamps ProviderUpdatedAt with now and
// advances LastEventAt to the event time when the event carries one.
func Apply(sub *Subscription, c Change, now time.Time) Outcome {
	out := Outcome{From: sub.Status, To: sub.Status}

	if sub.IsTerminal() {
		out.Skipped = SkipTerminal
		return out
	}
	if c.Family == FamilySubscription && !c.OccurredAt.IsZero() &&
		sub.LastEventAt != nil && c.OccurredAt.Before(*sub.LastEventAt) {
		out.Skipped = SkipStale
		return out
	}

	switch c.Family {
	case FamilySubscription:
		applySubscription(sub, c, &out)
	case FamilyPayment:
		applyPayment(sub, c, now, &out)
	default:
		out.Skipped = SkipUnknownFamily
	}
	if out.Skipped != "" {
		return out
	}

	out.To = sub.Status
	sub.ProviderUpdatedAt = &now
	if at := c.OccurredAt; !at.IsZero() && (sub.LastEventAt == nil || at.After(*sub.LastEventAt)) {
		sub.LastEventAt = &at
	}
	return out
}

func applySubscription(sub *Subscription, c Change, out *Outcome) {
	switch c.Status {
	case ProviderAuthorized:
		if !moveTo(sub, StatusActive, out) {
			return
		}
		if c.PreapprovalID != "" {
			sub.PreapprovalID = c.PreapprovalID
		}
		out.Effect = EffectEnable
	case ProviderPaused:
		moveTo(sub, StatusPaused, out)
	case ProviderCancelled:
		if !moveTo(sub, StatusCancelled, out) {
			return
		}
		sub.NextPaymentDate = nil
		out.Effect = EffectCancel
	case ProviderPending:
		moveTo(sub, StatusPending, out)
	default:
		out.Skipped = SkipUnknownStatus
	}
}

func applyPayment(sub *Subscription, c Change, now time.Time, out *Outcome) {
	switch c.Status {
	case ProviderApproved:
		sub.RecordApprovedPayment(now)
		out.Effect = EffectEnable
	case ProviderRejected:
		if sub.RecordRejectedPayment() {
			if moveTo(sub, StatusFailed, out) {
				out.Effect = EffectDisable
			}
			return
		}
		moveTo(sub, StatusPaused, out)
	case ProviderAuthorized:
		next := sub.NextPaymentFrom(now)
		sub.NextPaymentDate = &next
	default:
		out.Skipped = SkipUnknownStatus
	}
}

// moveTo sets the status when the table allows it. A refused move marks the
// outcome skipped so the caller discards the partially mutated copy.
func moveTo(sub *Subscription, to Status, out *Outcome) bool {
	if !CanTransition(sub.Status, to) {
		out.Skipped = SkipInvalidTransition
		return false
	}
	sub.Status = to
	return true
}
