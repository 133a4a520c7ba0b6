package domain

import "time"

// MarketToken is one tradeable outcome token of a market.
type MarketToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
}

// Market is the read-only catalog entry for a prediction market, as served
// by the market-data collaborator.
type Market struct {
	ID          string        `json:"id"`
	ConditionID string        `json:"condition_id"`
	Question    string        `json:"question"`
	Slug        string        `json:"slug"`
	Tokens      []MarketToken `json:"tokens"`
	Active      bool          `json:"active"`
	Closed      bool          `json:"closed"`
	Volume      float64       `json:"volume"`
	Liquidity   float64       `json:"liquidity"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
}

// MarketFilter narrows catalog queries.
type MarketFilter struct {
	Active *bool
	Closed *bool
	Slug   string
	Limit  int
	Offset int
}
