package models

import "time"

// AlertType is the trigger predicate family of a price alert.
type AlertType string

const (
	// AlertAbove triggers when the current price reaches or exceeds the target.
	AlertAbove AlertType = "ABOVE"
	// AlertBelow triggers when the current price reaches or falls below the target.
	AlertBelow AlertType = "BELOW"
	// AlertPercentUp triggers on a percentage rise from the creation baseline.
	AlertPercentUp AlertType = "PERCENT_UP"
	// AlertPercentDown triggers on a percentage fall from the creation baseline.
	AlertPercentDown AlertType = "PERCENT_DOWN"
)

// Label returns a human-readable label for notification messages.
func (t AlertType) Label() string {
	switch t {
	case AlertAbove:
		return "price above"
	case AlertBelow:
		return "price below"
	case AlertPercentUp:
		return "percent rise"
	case AlertPercentDown:
		return "percent fall"
	default:
		return string(t)
	}
}

// AlertState is the lifecycle state of a price alert.
type AlertState string

const (
	// AlertActive alerts are the only ones the evaluator considers.
	AlertActive AlertState = "ACTIVE"
	// AlertTriggered is terminal; a triggered alert never re-triggers.
	AlertTriggered AlertState = "TRIGGERED"
	// AlertInactive alerts were deactivated by the user.
	AlertInactive AlertState = "INACTIVE"
)

// PriceAlert is a user-defined condition on one instrument's price.
// Mutated only by the evaluator (trigger) or explicit user deactivation.
type PriceAlert struct {
	ID               string
	UserID           string
	Symbol           string
	Type             AlertType
	TargetValue      float64
	BaselineValue    float64 // CurrentPrice at creation; zero disables percent alerts
	State            AlertState
	CreatedAt        time.Time
	TriggeredAt      *time.Time
	TriggeredValue   float64
	NotificationSent bool
}

// IsActive reports whether the evaluator should still consider this alert.
func (a *PriceAlert) IsActive() bool {
	return a.State == AlertActive
}

// AlertRecipient is the eagerly loaded user contact for a triggered alert,
// returned by the store so the evaluator never does hidden follow-up reads.
type AlertRecipient struct {
	UserID string
	Email  string
	Name   string
}
