package domain

import (
	"fmt"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ParseOrderSide normalizes a side string from an inbound payload.
func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(s) {
	case OrderSideBuy, OrderSideSell:
		return OrderSide(s), nil
	default:
		return "", fmt.Errorf("%w: side %q", ErrInvalidOrder, s)
	}
}

// OrderType indicates how the order should execute.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeGTC    OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK    OrderType = "FOK" // Fill-Or-Kill
)

// RequiresPrice reports whether the order type needs an explicit limit price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeGTC
}

// OrderStatus tracks the order lifecycle.
//
// Transitions: PENDING -> {OPEN, FAILED}; OPEN -> {FILLED, PARTIALLY_FILLED,
// CANCELLED, EXPIRED}; PARTIALLY_FILLED -> {FILLED, CANCELLED, EXPIRED}.
// FILLED, CANCELLED, EXPIRED and FAILED are terminal.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// Terminal reports whether no further transition is permitted from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Order is the gateway's authoritative record of one trading order. The ID is
// generated locally before any external call; ExternalRef carries the
// identifier the exchange assigns once the submission is accepted.
type Order struct {
	ID           string
	TokenID      string
	ConditionID  string
	Side         OrderSide
	Type         OrderType
	AmountUSD    float64
	Price        *float64 // nil means market order
	FilledAmount float64
	Status       OrderStatus
	ExternalRef  string // exchange order id or tx hash, empty until accepted
	Nonce        string
	ErrorMsg     string // collaborator error captured on failure
	RawResult    []byte // raw collaborator response, kept for audit
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderRequest is the validated input for creating an order.
type OrderRequest struct {
	TokenID     string
	ConditionID string
	Side        OrderSide
	AmountUSD   float64
	Price       *float64
	Type        OrderType
	Nonce       string
}

// Validate checks the request before any external call is made.
func (r OrderRequest) Validate() error {
	if r.TokenID == "" {
		return fmt.Errorf("%w: token_id required", ErrInvalidOrder)
	}
	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	if r.AmountUSD <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	if r.Type.RequiresPrice() && r.Price == nil {
		return fmt.Errorf("%w: %s orders require a price", ErrInvalidOrder, r.Type)
	}
	if r.Price != nil && (*r.Price <= 0 || *r.Price >= 1) {
		return fmt.Errorf("%w: price must be between 0 and 1 exclusive", ErrInvalidOrder)
	}
	return nil
}

// OrderResult is the normalized outcome of an order creation attempt.
type OrderResult struct {
	Success  bool        `json:"success"`
	OrderID  string      `json:"order_id"`
	Status   OrderStatus `json:"status"`
	ErrorMsg string      `json:"error,omitempty"`
	Raw      []byte      `json:"-"`
}

// CancelResult is the outcome of a single-order cancellation. NoOp is set
// when the order was already in a terminal state, which is reported as
// success so retried cancellations stay idempotent.
type CancelResult struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"order_id"`
	NoOp     bool   `json:"no_op,omitempty"`
	ErrorMsg string `json:"error,omitempty"`
}

// CancelAllResult is the outcome of a cancel-all call. Local orders are not
// individually reconciled here; status polling picks them up afterwards.
type CancelAllResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"error,omitempty"`
	Raw      []byte `json:"-"`
}
