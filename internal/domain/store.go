package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists the local order lifecycle. Every creation attempt is
// inserted exactly once; later transitions mutate the row in place. Rows are
// never deleted, a terminal status is the end of the line.
type OrderStore interface {
	Insert(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus, filledAmount float64) error
	GetByID(ctx context.Context, id string) (Order, error)
	// GetByExternalRef resolves the exchange's order id back to the local
	// order. ErrNotFound when no local order carries the reference.
	GetByExternalRef(ctx context.Context, externalRef string) (Order, error)
	ListOpen(ctx context.Context) ([]Order, error)
	ListByToken(ctx context.Context, tokenID string, opts ListOpts) ([]Order, error)
}

// TradeLedger is the append-only record of confirmed fills that the risk
// engine aggregates over.
type TradeLedger interface {
	Insert(ctx context.Context, trade Trade) (int64, error)
	// SumSince aggregates count, volume split by side, and realized PnL over
	// all trades with Timestamp >= since.
	SumSince(ctx context.Context, since time.Time) (DailyUsage, error)
	ListSince(ctx context.Context, since time.Time, opts ListOpts) ([]Trade, error)
	HasTxHash(ctx context.Context, txHash string) (bool, error)
	// HasOrderID reports whether a trade attributed to the given local
	// order id is already recorded. The fill monitor uses it to avoid
	// re-counting executions the signal flow recorded synchronously.
	HasOrderID(ctx context.Context, orderID string) (bool, error)
	// ListBefore and DeleteBefore support the retention archiver.
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
