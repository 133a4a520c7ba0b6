// Package service contains the gateway's business logic: order lifecycle,
// price alerts, webhook signal handling, and market reads.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/polygate/internal/domain"
)

// TradingClient is the narrow view of the exchange the order lifecycle needs.
type TradingClient interface {
	PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, externalRef string) (domain.CancelResult, error)
	CancelAll(ctx context.Context) (domain.CancelAllResult, error)
	// OrderStatus returns the exchange's view of an order mapped onto the
	// local status set, plus the matched amount.
	OrderStatus(ctx context.Context, externalRef string) (domain.OrderStatus, float64, error)
}

// OrderService owns the authoritative record of each order from creation to
// a terminal state.
type OrderService struct {
	orders  domain.OrderStore
	trading TradingClient
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	orders domain.OrderStore,
	trading TradingClient,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:  orders,
		trading: trading,
		bus:     bus,
		audit:   audit,
		logger:  logger.With(slog.String("component", "orders")),
	}
}

// CreateOrder validates the request, submits it to the exchange, and persists
// exactly one record for the attempt whether it succeeded or not. A
// collaborator failure never escapes as an error; it becomes a FAILED record
// and a success=false result so the attempt stays auditable. The error return
// is reserved for invalid input and for failures persisting the record.
func (s *OrderService) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderResult{Success: false, ErrorMsg: err.Error()}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.New().String(),
		TokenID:     req.TokenID,
		ConditionID: req.ConditionID,
		Side:        req.Side,
		Type:        req.Type,
		AmountUSD:   req.AmountUSD,
		Price:       req.Price,
		Status:      domain.OrderStatusPending,
		Nonce:       req.Nonce,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	submitResult, submitErr := s.trading.PostOrder(ctx, order)
	switch {
	case submitErr != nil:
		order.Status = domain.OrderStatusFailed
		order.ErrorMsg = submitErr.Error()
	case submitResult.Success:
		order.Status = domain.OrderStatusOpen
		if submitResult.Status != "" {
			order.Status = submitResult.Status
		}
		order.ExternalRef = submitResult.OrderID
		order.RawResult = submitResult.Raw
	default:
		order.Status = domain.OrderStatusFailed
		order.ErrorMsg = submitResult.ErrorMsg
		order.RawResult = submitResult.Raw
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.OrderResult{}, fmt.Errorf("service: persist order %s: %w", order.ID, err)
	}

	result := domain.OrderResult{
		Success:  order.Status != domain.OrderStatusFailed,
		OrderID:  order.ID,
		Status:   order.Status,
		ErrorMsg: order.ErrorMsg,
		Raw:      order.RawResult,
	}

	s.publish(ctx, "orders", map[string]any{
		"event":    "order_created",
		"order_id": order.ID,
		"token_id": order.TokenID,
		"side":     string(order.Side),
		"status":   string(order.Status),
	})
	s.auditLog(ctx, "order_created", map[string]any{
		"order_id":     order.ID,
		"token_id":     order.TokenID,
		"side":         string(order.Side),
		"amount_usd":   order.AmountUSD,
		"status":       string(order.Status),
		"external_ref": order.ExternalRef,
		"error":        order.ErrorMsg,
	})

	if result.Success {
		s.logger.InfoContext(ctx, "order created",
			slog.String("order_id", order.ID),
			slog.String("token_id", order.TokenID),
			slog.String("side", string(order.Side)),
			slog.Float64("amount_usd", order.AmountUSD),
		)
	} else {
		s.logger.WarnContext(ctx, "order submission failed",
			slog.String("order_id", order.ID),
			slog.String("token_id", order.TokenID),
			slog.String("error", order.ErrorMsg),
		)
	}

	return result, nil
}

// GetOrder retrieves a single order by its local id. No external call.
func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("service: get order %q: %w", id, err)
	}
	return order, nil
}

// CancelOrder cancels one order. An unknown id maps to domain.ErrNotFound.
// Cancelling an order already in a terminal state is a success no-op so the
// operation stays idempotent under retry. On exchange failure the local
// record is left untouched.
func (s *OrderService) CancelOrder(ctx context.Context, id string) (domain.CancelResult, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("service: cancel order %q: %w", id, err)
	}

	if order.Status.Terminal() {
		s.logger.InfoContext(ctx, "cancel of terminal order ignored",
			slog.String("order_id", id),
			slog.String("status", string(order.Status)),
		)
		return domain.CancelResult{Success: true, OrderID: id, NoOp: true}, nil
	}

	ref := order.ExternalRef
	if ref == "" {
		ref = order.ID
	}

	cancelResult, cancelErr := s.trading.CancelOrder(ctx, ref)
	if cancelErr != nil {
		return domain.CancelResult{
			Success:  false,
			OrderID:  id,
			ErrorMsg: cancelErr.Error(),
		}, nil
	}
	if !cancelResult.Success {
		return domain.CancelResult{
			Success:  false,
			OrderID:  id,
			ErrorMsg: cancelResult.ErrorMsg,
		}, nil
	}

	if err := s.orders.UpdateStatus(ctx, id, domain.OrderStatusCancelled, order.FilledAmount); err != nil {
		return domain.CancelResult{}, fmt.Errorf("service: persist cancellation %q: %w", id, err)
	}

	s.publish(ctx, "orders", map[string]any{
		"event":    "order_cancelled",
		"order_id": id,
	})
	s.auditLog(ctx, "order_cancelled", map[string]any{"order_id": id})

	s.logger.InfoContext(ctx, "order cancelled", slog.String("order_id", id))
	return domain.CancelResult{Success: true, OrderID: id}, nil
}

// CancelAll issues one exchange-wide cancel for the wallet. Local records are
// not reconciled individually here; the monitor's status sweep picks up the
// resulting transitions.
func (s *OrderService) CancelAll(ctx context.Context) (domain.CancelAllResult, error) {
	result, err := s.trading.CancelAll(ctx)
	if err != nil {
		return domain.CancelAllResult{Success: false, ErrorMsg: err.Error()}, nil
	}

	s.auditLog(ctx, "orders_cancel_all", map[string]any{"success": result.Success})
	s.logger.InfoContext(ctx, "cancel-all issued", slog.Bool("success", result.Success))
	return result, nil
}

// ReconcileStatus fetches the exchange's view of the order and applies it
// locally. The stored status changes only when the exchange reports something
// different and the stored status is non-terminal; an attempted transition
// out of a terminal state is logged and dropped.
func (s *OrderService) ReconcileStatus(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("service: reconcile order %q: %w", id, err)
	}

	if order.ExternalRef == "" {
		return order, nil
	}

	status, filled, err := s.trading.OrderStatus(ctx, order.ExternalRef)
	if err != nil {
		return domain.Order{}, fmt.Errorf("service: reconcile order %q: %w", id, err)
	}

	if status == order.Status && filled == order.FilledAmount {
		return order, nil
	}
	if order.Status.Terminal() {
		s.logger.WarnContext(ctx, "exchange reported transition out of terminal state, ignoring",
			slog.String("order_id", id),
			slog.String("stored", string(order.Status)),
			slog.String("reported", string(status)),
		)
		return order, nil
	}

	if err := s.orders.UpdateStatus(ctx, id, status, filled); err != nil {
		return domain.Order{}, fmt.Errorf("service: persist reconciled status %q: %w", id, err)
	}

	s.publish(ctx, "orders", map[string]any{
		"event":    "order_status",
		"order_id": id,
		"status":   string(status),
	})

	order.Status = status
	order.FilledAmount = filled
	order.UpdatedAt = time.Now().UTC()
	return order, nil
}

// ListOpen returns all orders in a non-terminal status.
func (s *OrderService) ListOpen(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list open orders: %w", err)
	}
	return orders, nil
}

// ListByToken returns orders for a token with pagination.
func (s *OrderService) ListByToken(ctx context.Context, tokenID string, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.ListByToken(ctx, tokenID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list orders for token %q: %w", tokenID, err)
	}
	return orders, nil
}

func (s *OrderService) publish(ctx context.Context, channel string, event map[string]any) {
	payload, _ := json.Marshal(event)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
