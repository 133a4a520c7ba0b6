package domain

import "time"

// Position is the gateway wallet's holding in one outcome token, as reported
// by the exchange's data API. Positions are read-only here; the exchange owns
// the book.
type Position struct {
	TokenID       string     `json:"token_id"`
	ConditionID   string     `json:"condition_id"`
	Size          float64    `json:"size"`
	AvgPrice      float64    `json:"avg_price"`
	CurrentValue  float64    `json:"current_value"`
	RealizedPnL   float64    `json:"realized_pnl"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}
