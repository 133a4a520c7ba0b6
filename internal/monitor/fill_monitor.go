// Package monitor contains the background polling loops: the fill monitor
// that keeps the trade ledger in sync with the exchange, the price watcher
// that drives alert evaluation, and the reconciler that refreshes open order
// statuses.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/platform/polymarket"
)

// FillSource serves the wallet's executed trades, newest first.
type FillSource interface {
	GetFills(ctx context.Context, wallet string, limit int) ([]polymarket.APIFill, error)
}

// TradeRecorder appends a confirmed fill to the ledger. The risk engine
// implements it so each recorded fill also invalidates the usage snapshot.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, trade domain.Trade) error
}

// OrderResolver maps the exchange's order id back to the local order.
type OrderResolver interface {
	GetByExternalRef(ctx context.Context, externalRef string) (domain.Order, error)
}

// FillMonitor polls the data API for executed trades and records the ones
// the ledger has not seen yet. Fills are deduplicated two ways: by
// transaction hash against earlier polls, and by local order id against the
// synchronous recording done in the signal flow, which has no hash. Both
// checks must miss before a fill is counted.
type FillMonitor struct {
	fills    FillSource
	recorder TradeRecorder
	ledger   domain.TradeLedger
	orders   OrderResolver
	bus      domain.SignalBus
	wallet   string
	interval time.Duration
	logger   *slog.Logger
}

// NewFillMonitor creates a FillMonitor polling at the given interval.
func NewFillMonitor(
	fills FillSource,
	recorder TradeRecorder,
	ledger domain.TradeLedger,
	orders OrderResolver,
	bus domain.SignalBus,
	wallet string,
	interval time.Duration,
	logger *slog.Logger,
) *FillMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &FillMonitor{
		fills:    fills,
		recorder: recorder,
		ledger:   ledger,
		orders:   orders,
		bus:      bus,
		wallet:   wallet,
		interval: interval,
		logger:   logger.With(slog.String("component", "fill_monitor")),
	}
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried on the next tick; they never stop the loop.
func (m *FillMonitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "fill monitor started",
		slog.String("wallet", m.wallet),
		slog.Duration("interval", m.interval),
	)

	m.pollOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *FillMonitor) pollOnce(ctx context.Context) {
	fills, err := m.fills.GetFills(ctx, m.wallet, 100)
	if err != nil {
		m.logger.WarnContext(ctx, "fetching fills failed", slog.String("error", err.Error()))
		return
	}

	ingested := 0
	for i := range fills {
		trade := fills[i].ToDomainTrade()
		if trade.TxHash != "" {
			seen, err := m.ledger.HasTxHash(ctx, trade.TxHash)
			if err != nil {
				m.logger.WarnContext(ctx, "dedup lookup failed",
					slog.String("tx_hash", trade.TxHash),
					slog.String("error", err.Error()),
				)
				continue
			}
			if seen {
				continue
			}
		}

		// The signal flow records its trade before the fill shows up here,
		// under the local order id and without a hash. Resolve the fill's
		// exchange order id and skip anything already attributed.
		localID, skip := m.resolveOrder(ctx, fills[i].OrderID)
		if skip {
			continue
		}
		trade.OrderID = localID

		if err := m.recorder.RecordTrade(ctx, trade); err != nil {
			m.logger.ErrorContext(ctx, "recording fill failed",
				slog.String("tx_hash", trade.TxHash),
				slog.String("token_id", trade.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}
		ingested++
		m.publish(ctx, trade)
	}

	if ingested > 0 {
		m.logger.InfoContext(ctx, "fills ingested",
			slog.Int("count", ingested),
			slog.Int("fetched", len(fills)),
		)
	}
}

// resolveOrder maps an exchange order id to the local order and reports
// whether a trade is already recorded under it. Lookup failures skip the
// fill; the next poll retries, so an execution is never counted twice.
func (m *FillMonitor) resolveOrder(ctx context.Context, externalRef string) (localID string, skip bool) {
	if externalRef == "" {
		return "", false
	}

	order, err := m.orders.GetByExternalRef(ctx, externalRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Fill placed outside the gateway; record it unattributed.
			return "", false
		}
		m.logger.WarnContext(ctx, "order lookup failed",
			slog.String("external_ref", externalRef),
			slog.String("error", err.Error()),
		)
		return "", true
	}

	recorded, err := m.ledger.HasOrderID(ctx, order.ID)
	if err != nil {
		m.logger.WarnContext(ctx, "dedup lookup failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return "", true
	}
	if recorded {
		return "", true
	}
	return order.ID, false
}

func (m *FillMonitor) publish(ctx context.Context, trade domain.Trade) {
	payload, err := json.Marshal(map[string]any{
		"type":       "trade",
		"token_id":   trade.TokenID,
		"side":       string(trade.Side),
		"amount_usd": trade.AmountUSD,
		"price":      trade.Price,
		"tx_hash":    trade.TxHash,
		"timestamp":  trade.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, "trades", payload); err != nil {
		m.logger.WarnContext(ctx, "publishing trade event failed", slog.String("error", err.Error()))
	}
}
