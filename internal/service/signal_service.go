package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// tradeLockTTL bounds how long the per-wallet trade lock can be held if the
// process dies mid-sequence.
const tradeLockTTL = 15 * time.Second

// RiskGate is the admission-control surface the signal flow consults before
// submitting any order.
type RiskGate interface {
	CanTrade(ctx context.Context, amountUSD float64, side domain.OrderSide) (bool, string, error)
	CheckPositionLimit(currentValue, additionalAmount float64) (bool, string)
	RecordTrade(ctx context.Context, trade domain.Trade) error
	Limits() domain.TradeLimitConfig
}

// OrderCreator creates orders; implemented by OrderService.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// PositionReader returns the current USD value of the wallet's position in a
// token.
type PositionReader interface {
	PositionValue(ctx context.Context, tokenID string) (float64, error)
}

// WebhookSignal is a normalized inbound trading signal.
type WebhookSignal struct {
	SignalID  string
	TokenID   string
	Side      domain.OrderSide
	AmountUSD float64
	Price     *float64
	OrderType domain.OrderType
	Nonce     string
}

// SignalResult is the outcome reported back to the webhook caller.
type SignalResult struct {
	Accepted bool               `json:"accepted"`
	Reason   string             `json:"reason,omitempty"`
	Order    domain.OrderResult `json:"order,omitempty"`
}

// SignalService runs the webhook trading flow: deduplicate the delivery,
// serialize against the wallet's trade lock, consult the risk gate, submit
// the order, and record the resulting trade. The lock closes the window
// between the admission check and the ledger write; without it two
// concurrent signals could both pass against the same usage snapshot.
type SignalService struct {
	dedup     *Dedup
	locks     domain.LockManager
	risk      RiskGate
	orders    OrderCreator
	positions PositionReader
	audit     domain.AuditStore
	wallet    string
	logger    *slog.Logger
}

// NewSignalService wires the webhook flow.
func NewSignalService(
	dedup *Dedup,
	locks domain.LockManager,
	risk RiskGate,
	orders OrderCreator,
	positions PositionReader,
	audit domain.AuditStore,
	wallet string,
	logger *slog.Logger,
) *SignalService {
	return &SignalService{
		dedup:     dedup,
		locks:     locks,
		risk:      risk,
		orders:    orders,
		positions: positions,
		audit:     audit,
		wallet:    wallet,
		logger:    logger.With(slog.String("component", "signals")),
	}
}

// HandleSignal processes one inbound signal end to end.
//
// Error returns: domain.ErrDuplicate for a repeated delivery,
// domain.ErrLockHeld when another signal is mid-flight for this wallet, and
// wrapped internal errors otherwise. An admission rejection is not an error;
// it comes back as Accepted=false with the gate's reason.
func (s *SignalService) HandleSignal(ctx context.Context, sig WebhookSignal) (SignalResult, error) {
	if sig.SignalID != "" && s.dedup.IsDuplicate(sig.SignalID) {
		s.logger.InfoContext(ctx, "duplicate signal dropped", slog.String("signal_id", sig.SignalID))
		return SignalResult{Accepted: false, Reason: "duplicate delivery"}, domain.ErrDuplicate
	}

	unlock, err := s.locks.Acquire(ctx, "trade:"+s.wallet, tradeLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return SignalResult{Accepted: false, Reason: "another trade is in flight"}, err
		}
		return SignalResult{}, fmt.Errorf("service: acquire trade lock: %w", err)
	}
	defer unlock()

	allowed, reason, err := s.risk.CanTrade(ctx, sig.AmountUSD, sig.Side)
	if err != nil {
		return SignalResult{}, fmt.Errorf("service: admission check: %w", err)
	}
	if !allowed {
		s.auditLog(ctx, "signal_rejected", map[string]any{
			"signal_id": sig.SignalID,
			"token_id":  sig.TokenID,
			"reason":    reason,
		})
		return SignalResult{Accepted: false, Reason: reason}, nil
	}

	// Position cap applies to buys only; selling reduces exposure.
	if s.risk.Limits().MaxPositionUSD > 0 && sig.Side == domain.OrderSideBuy && s.positions != nil {
		current, posErr := s.positions.PositionValue(ctx, sig.TokenID)
		if posErr != nil {
			// Position reads fail open like the usage path.
			s.logger.WarnContext(ctx, "position lookup failed, skipping position check",
				slog.String("token_id", sig.TokenID),
				slog.String("error", posErr.Error()),
			)
		} else if ok, posReason := s.risk.CheckPositionLimit(current, sig.AmountUSD); !ok {
			s.auditLog(ctx, "signal_rejected", map[string]any{
				"signal_id": sig.SignalID,
				"token_id":  sig.TokenID,
				"reason":    posReason,
			})
			return SignalResult{Accepted: false, Reason: posReason}, nil
		}
	}

	orderType := sig.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}

	result, err := s.orders.CreateOrder(ctx, domain.OrderRequest{
		TokenID:   sig.TokenID,
		Side:      sig.Side,
		AmountUSD: sig.AmountUSD,
		Price:     sig.Price,
		Type:      orderType,
		Nonce:     sig.Nonce,
	})
	if err != nil {
		return SignalResult{}, fmt.Errorf("service: create order from signal: %w", err)
	}

	if result.Success {
		price := 0.0
		if sig.Price != nil {
			price = *sig.Price
		}
		trade := domain.Trade{
			OrderID:   result.OrderID,
			TokenID:   sig.TokenID,
			Side:      sig.Side,
			AmountUSD: sig.AmountUSD,
			Price:     price,
			Timestamp: time.Now().UTC(),
		}
		if recErr := s.risk.RecordTrade(ctx, trade); recErr != nil {
			// The order is already placed; the fill monitor will backfill the
			// ledger from the exchange's fill feed.
			s.logger.ErrorContext(ctx, "recording trade failed",
				slog.String("order_id", result.OrderID),
				slog.String("error", recErr.Error()),
			)
		}
	}

	s.auditLog(ctx, "signal_processed", map[string]any{
		"signal_id":  sig.SignalID,
		"token_id":   sig.TokenID,
		"side":       string(sig.Side),
		"amount_usd": sig.AmountUSD,
		"order_id":   result.OrderID,
		"success":    result.Success,
	})

	return SignalResult{Accepted: true, Order: result}, nil
}

func (s *SignalService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
