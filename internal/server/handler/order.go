package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openclaw/polygate/internal/domain"
)

// OrderService is the slice of the order lifecycle the handler exposes.
type OrderService interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	CancelOrder(ctx context.Context, id string) (domain.CancelResult, error)
	CancelAll(ctx context.Context) (domain.CancelAllResult, error)
	ReconcileStatus(ctx context.Context, id string) (domain.Order, error)
	ListOpen(ctx context.Context) ([]domain.Order, error)
	ListByToken(ctx context.Context, tokenID string, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves the order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// orderRequest is the JSON body for order creation.
type orderRequest struct {
	TokenID     string   `json:"token_id"`
	ConditionID string   `json:"condition_id,omitempty"`
	Side        string   `json:"side"`
	OrderType   string   `json:"order_type,omitempty"`
	AmountUSD   float64  `json:"amount_usd"`
	Price       *float64 `json:"price,omitempty"`
	Nonce       string   `json:"nonce,omitempty"`
}

// CreateOrder submits a new order.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	orderType := domain.OrderType(body.OrderType)
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}

	result, err := h.orders.CreateOrder(r.Context(), domain.OrderRequest{
		TokenID:     body.TokenID,
		ConditionID: body.ConditionID,
		Side:        domain.OrderSide(body.Side),
		AmountUSD:   body.AmountUSD,
		Price:       body.Price,
		Type:        orderType,
		Nonce:       body.Nonce,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create order failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to create order")
		return
	}

	// A submission the exchange rejected is still a created (FAILED) record.
	writeJSON(w, http.StatusCreated, result)
}

// GetOrder returns one order by its local id.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get order")
		return
	}
	writeJSON(w, http.StatusOK, orderJSON(order))
}

// ListOrders returns open orders, or a token's order history when token_id
// is given.
// GET /api/orders?token_id=...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token_id")

	var (
		orders []domain.Order
		err    error
	)
	if tokenID != "" {
		orders, err = h.orders.ListByToken(r.Context(), tokenID, parseListOpts(r))
	} else {
		orders, err = h.orders.ListOpen(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list orders failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to list orders")
		return
	}

	out := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// CancelOrder cancels one order. Cancelling an order that already reached a
// terminal state returns success with no_op set.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	result, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to cancel order")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelAll cancels every live order for the gateway wallet.
// DELETE /api/orders
func (h *OrderHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.CancelAll(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to cancel orders")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReconcileOrder refreshes one order's status from the exchange.
// POST /api/orders/{id}/reconcile
func (h *OrderHandler) ReconcileOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.ReconcileStatus(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reconcile failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, "failed to reconcile order")
		return
	}
	writeJSON(w, http.StatusOK, orderJSON(order))
}

// orderJSON renders an order for API output. RawResult stays internal.
func orderJSON(o domain.Order) map[string]any {
	out := map[string]any{
		"id":            o.ID,
		"token_id":      o.TokenID,
		"side":          string(o.Side),
		"order_type":    string(o.Type),
		"amount_usd":    o.AmountUSD,
		"filled_amount": o.FilledAmount,
		"status":        string(o.Status),
		"created_at":    o.CreatedAt,
		"updated_at":    o.UpdatedAt,
	}
	if o.ConditionID != "" {
		out["condition_id"] = o.ConditionID
	}
	if o.Price != nil {
		out["price"] = *o.Price
	}
	if o.ExternalRef != "" {
		out["external_ref"] = o.ExternalRef
	}
	if o.ErrorMsg != "" {
		out["error"] = o.ErrorMsg
	}
	return out
}
