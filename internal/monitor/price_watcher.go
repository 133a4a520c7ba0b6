package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// MidPriceSource serves the current midpoint price for a token.
type MidPriceSource interface {
	GetMidPrice(ctx context.Context, tokenID string) (float64, error)
}

// AlertEngine exposes the alert evaluator to the watcher: which tokens have
// armed alerts, and the check that fires them.
type AlertEngine interface {
	WatchedTokens() []string
	CheckAlerts(ctx context.Context, currentPrice float64, tokenID string) []domain.PriceAlert
}

// PriceWatcher polls midpoint prices for every token with an armed alert,
// refreshes the shared price cache, and feeds the alert evaluator. Tokens
// without armed alerts are not polled.
type PriceWatcher struct {
	prices   MidPriceSource
	cache    domain.PriceCache
	alerts   AlertEngine
	interval time.Duration
	logger   *slog.Logger
}

// NewPriceWatcher creates a PriceWatcher polling at the given interval.
func NewPriceWatcher(
	prices MidPriceSource,
	cache domain.PriceCache,
	alerts AlertEngine,
	interval time.Duration,
	logger *slog.Logger,
) *PriceWatcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PriceWatcher{
		prices:   prices,
		cache:    cache,
		alerts:   alerts,
		interval: interval,
		logger:   logger.With(slog.String("component", "price_watcher")),
	}
}

// Run polls until the context is cancelled.
func (w *PriceWatcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "price watcher started", slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *PriceWatcher) sweep(ctx context.Context) {
	tokens := w.alerts.WatchedTokens()
	for _, tokenID := range tokens {
		price, err := w.prices.GetMidPrice(ctx, tokenID)
		if err != nil {
			w.logger.WarnContext(ctx, "price fetch failed",
				slog.String("token_id", tokenID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := w.cache.SetPrice(ctx, tokenID, price, time.Now().UTC()); err != nil {
			w.logger.WarnContext(ctx, "price cache write failed",
				slog.String("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}

		if fired := w.alerts.CheckAlerts(ctx, price, tokenID); len(fired) > 0 {
			w.logger.InfoContext(ctx, "alerts triggered",
				slog.String("token_id", tokenID),
				slog.Float64("price", price),
				slog.Int("count", len(fired)),
			)
		}
	}
}
