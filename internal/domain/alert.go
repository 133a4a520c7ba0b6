package domain

import (
	"fmt"
	"time"
)

// AlertSide selects which outcome token's price the alert watches.
type AlertSide string

const (
	AlertSideYes AlertSide = "yes"
	AlertSideNo  AlertSide = "no"
)

// AlertCondition is the inequality an alert evaluates against each tick.
//
// crosses_above and crosses_below are accepted as input for compatibility
// but are not evaluated: a correct crossing check needs each alert's
// last-seen price and a defined behavior for the first observation, neither
// of which is specified. They never fire.
type AlertCondition string

const (
	AlertAbove        AlertCondition = "above"
	AlertBelow        AlertCondition = "below"
	AlertCrossesAbove AlertCondition = "crosses_above"
	AlertCrossesBelow AlertCondition = "crosses_below"
)

// ParseAlertCondition validates a condition string from an inbound payload.
func ParseAlertCondition(s string) (AlertCondition, error) {
	switch AlertCondition(s) {
	case AlertAbove, AlertBelow, AlertCrossesAbove, AlertCrossesBelow:
		return AlertCondition(s), nil
	default:
		return "", fmt.Errorf("invalid alert condition %q", s)
	}
}

// PriceAlert is a one-shot threshold watch on a token's price. Once
// triggered it stays inert; it never re-arms.
type PriceAlert struct {
	AlertID      string         `json:"alert_id"`
	TokenID      string         `json:"token_id"`
	Side         AlertSide      `json:"side"`
	Condition    AlertCondition `json:"condition"`
	Threshold    float64        `json:"threshold"`
	WebhookURL   string         `json:"webhook_url,omitempty"`
	Active       bool           `json:"active"`
	Triggered    bool           `json:"triggered"`
	TriggeredAt  *time.Time     `json:"triggered_at,omitempty"`
	TriggerPrice float64        `json:"trigger_price,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
