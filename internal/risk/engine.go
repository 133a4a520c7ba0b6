// Package risk implements the trading limits engine that gates every order
// admission against per-trade and per-day thresholds.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// Engine evaluates admission checks against the configured limits using
// usage aggregated from the trade ledger. A usage snapshot is cached per UTC
// day and invalidated whenever a trade is recorded or the day rolls over.
//
// The engine is advisory: concurrent CanTrade calls can both pass against the
// same snapshot. The gateway closes that window with a per-wallet lock around
// the check-submit-record sequence; the mutex here only guards the cache.
type Engine struct {
	limits domain.TradeLimitConfig
	strict bool
	ledger domain.TradeLedger
	logger *slog.Logger

	// now is injectable for day-rollover tests.
	now func() time.Time

	mu     sync.Mutex
	cached *domain.DailyUsage
}

// NewEngine creates a limits engine. When strict is set, a ledger read
// failure blocks trading instead of failing open with zero usage.
func NewEngine(limits domain.TradeLimitConfig, strict bool, ledger domain.TradeLedger, logger *slog.Logger) *Engine {
	return &Engine{
		limits: limits,
		strict: strict,
		ledger: ledger,
		logger: logger.With(slog.String("component", "risk")),
		now:    time.Now,
	}
}

// Limits returns the configured thresholds.
func (e *Engine) Limits() domain.TradeLimitConfig {
	return e.limits
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyUsage returns today's usage snapshot, reusing the cached value when it
// is still for the current UTC day. reload forces a ledger read.
//
// On ledger failure the engine fails open: it logs the error and returns a
// zero snapshot for today, unless strict mode is enabled, in which case the
// error is returned.
func (e *Engine) DailyUsage(ctx context.Context, reload bool) (domain.DailyUsage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyUsageLocked(ctx, reload)
}

func (e *Engine) dailyUsageLocked(ctx context.Context, reload bool) (domain.DailyUsage, error) {
	today := e.now().UTC().Format("2006-01-02")

	if e.cached != nil && !reload && e.cached.Date == today {
		return *e.cached, nil
	}

	usage, err := e.ledger.SumSince(ctx, startOfDay(e.now()))
	if err != nil {
		if e.strict {
			return domain.DailyUsage{}, fmt.Errorf("risk: load daily usage: %w", err)
		}
		e.logger.Error("loading daily usage failed, assuming zero", slog.Any("error", err))
		usage = domain.DailyUsage{Date: today}
	}
	usage.Date = today

	e.cached = &usage
	return usage, nil
}

// CanTrade checks whether a trade of the given notional is admissible. It
// returns the decision together with a human-readable reason. The error
// return is non-nil only in strict mode when the ledger cannot be read.
func (e *Engine) CanTrade(ctx context.Context, amountUSD float64, side domain.OrderSide) (bool, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	usage, err := e.dailyUsageLocked(ctx, false)
	if err != nil {
		return false, "Trading limits unavailable", err
	}

	if amountUSD > e.limits.MaxTradeUSD {
		return false, fmt.Sprintf("Trade amount $%.2f exceeds limit of $%.2f", amountUSD, e.limits.MaxTradeUSD), nil
	}

	if usage.TotalVolumeUSD+amountUSD > e.limits.MaxDailyUSD {
		remaining := e.limits.MaxDailyUSD - usage.TotalVolumeUSD
		return false, fmt.Sprintf("Daily limit exceeded. Remaining: $%.2f", remaining), nil
	}

	if e.limits.MaxDailyTrades > 0 && usage.TotalTrades >= int64(e.limits.MaxDailyTrades) {
		return false, fmt.Sprintf("Daily trade limit reached: %d trades", e.limits.MaxDailyTrades), nil
	}

	return true, "Trade allowed", nil
}

// CheckPositionLimit checks whether adding additionalAmount to an existing
// position of currentValue would exceed the position cap. A zero cap
// disables the check.
func (e *Engine) CheckPositionLimit(currentValue, additionalAmount float64) (bool, string) {
	if e.limits.MaxPositionUSD > 0 {
		if currentValue+additionalAmount > e.limits.MaxPositionUSD {
			return false, fmt.Sprintf("Position size $%.2f exceeds limit of $%.2f", currentValue+additionalAmount, e.limits.MaxPositionUSD)
		}
	}
	return true, "Position allowed"
}

// RecordTrade appends a confirmed execution to the ledger and invalidates the
// usage snapshot so the next check sees it.
func (e *Engine) RecordTrade(ctx context.Context, trade domain.Trade) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if trade.RecordedAt.IsZero() {
		trade.RecordedAt = e.now().UTC()
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = trade.RecordedAt
	}

	id, err := e.ledger.Insert(ctx, trade)
	if err != nil {
		// The snapshot is stale either way; drop it so a retry re-reads.
		e.cached = nil
		return fmt.Errorf("risk: record trade: %w", err)
	}

	e.cached = nil
	e.logger.Info("trade recorded",
		slog.Int64("trade_id", id),
		slog.String("token_id", trade.TokenID),
		slog.String("side", string(trade.Side)),
		slog.Float64("amount_usd", trade.AmountUSD),
	)
	return nil
}

// Report assembles the current limits view for the API. It never fails: a
// ledger read error, strict mode included, degrades to a zero usage snapshot.
// Strict mode only blocks admission, not reporting.
func (e *Engine) Report(ctx context.Context) (domain.LimitsReport, error) {
	usage, err := e.DailyUsage(ctx, false)
	if err != nil {
		e.logger.Warn("limits report degraded to zero usage", slog.Any("error", err))
		usage = domain.DailyUsage{Date: e.now().UTC().Format("2006-01-02")}
	}

	remaining := e.limits.MaxDailyUSD - usage.TotalVolumeUSD
	if remaining < 0 {
		remaining = 0
	}

	return domain.LimitsReport{
		Date:                 usage.Date,
		MaxTradeUSD:          e.limits.MaxTradeUSD,
		MaxDailyUSD:          e.limits.MaxDailyUSD,
		DailyVolumeUsed:      usage.TotalVolumeUSD,
		DailyVolumeRemaining: remaining,
		DailyTradesUsed:      usage.TotalTrades,
		DailyTradesLimit:     e.limits.MaxDailyTrades,
		MaxPositionUSD:       e.limits.MaxPositionUSD,
		RealizedPnL:          usage.RealizedPnL,
		StrictMode:           e.strict,
	}, nil
}
