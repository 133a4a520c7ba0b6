package domain

// TradeLimitConfig holds the per-trade and per-day risk thresholds. It is
// built once from configuration and shared read-only across admission checks.
// A zero value for MaxPositionUSD or MaxDailyTrades means that limit is not
// enforced.
type TradeLimitConfig struct {
	MaxTradeUSD    float64
	MaxDailyUSD    float64
	MaxPositionUSD float64
	MaxDailyTrades int
}

// DailyUsage is the usage snapshot for one UTC calendar day, aggregated from
// the trade ledger over [start of day, now). A snapshot is only valid for the
// day it was computed for.
type DailyUsage struct {
	Date           string  `json:"date"` // UTC day key, "2006-01-02"
	TotalTrades    int64   `json:"total_trades"`
	TotalVolumeUSD float64 `json:"total_volume_usd"`
	BuyVolumeUSD   float64 `json:"buy_volume_usd"`
	SellVolumeUSD  float64 `json:"sell_volume_usd"`
	RealizedPnL    float64 `json:"realized_pnl"`
}

// LimitsReport combines the current snapshot with the configured thresholds
// for display. Zero-valued limits are reported as unlimited by the boundary
// layer.
type LimitsReport struct {
	Date                 string  `json:"date"`
	MaxTradeUSD          float64 `json:"max_trade_usd"`
	MaxDailyUSD          float64 `json:"max_daily_usd"`
	DailyVolumeUsed      float64 `json:"daily_volume_used"`
	DailyVolumeRemaining float64 `json:"daily_volume_remaining"`
	DailyTradesUsed      int64   `json:"daily_trades_used"`
	DailyTradesLimit     int     `json:"daily_trades_limit,omitempty"`
	MaxPositionUSD       float64 `json:"position_limit_usd,omitempty"`
	RealizedPnL          float64 `json:"realized_pnl"`
	StrictMode           bool    `json:"strict_mode"`
}
