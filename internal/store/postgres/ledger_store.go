package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclaw/polygate/internal/domain"
)

// LedgerStore implements domain.TradeLedger using PostgreSQL. The trades
// table is append-only; rows are removed only by the retention archiver.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Insert appends an executed trade to the ledger and returns its id.
func (s *LedgerStore) Insert(ctx context.Context, t domain.Trade) (int64, error) {
	const query = `
		INSERT INTO trades (
			order_id, token_id, side, amount_usd, price,
			realized_pnl, tx_hash, ts, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	recordedAt := t.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var id int64
	err := s.pool.QueryRow(ctx, query,
		nullable(t.OrderID), t.TokenID, string(t.Side),
		t.AmountUSD, t.Price, t.RealizedPnL,
		nullable(t.TxHash), t.Timestamp, recordedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert trade: %w", err)
	}
	return id, nil
}

// SumSince aggregates the ledger from the given instant onward. Callers pass
// the start of the current UTC day to compute daily usage.
func (s *LedgerStore) SumSince(ctx context.Context, since time.Time) (domain.DailyUsage, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount_usd), 0),
			COALESCE(SUM(amount_usd) FILTER (WHERE side = 'BUY'), 0),
			COALESCE(SUM(amount_usd) FILTER (WHERE side = 'SELL'), 0),
			COALESCE(SUM(realized_pnl), 0)
		FROM trades
		WHERE ts >= $1`

	usage := domain.DailyUsage{
		Date: since.UTC().Format("2006-01-02"),
	}
	err := s.pool.QueryRow(ctx, query, since).Scan(
		&usage.TotalTrades,
		&usage.TotalVolumeUSD,
		&usage.BuyVolumeUSD,
		&usage.SellVolumeUSD,
		&usage.RealizedPnL,
	)
	if err != nil {
		return domain.DailyUsage{}, fmt.Errorf("postgres: sum trades since %s: %w", since.Format(time.RFC3339), err)
	}
	return usage, nil
}

const tradeSelectCols = `id, order_id, token_id, side, amount_usd, price,
	realized_pnl, tx_hash, ts, recorded_at`

func scanTrades(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]domain.Trade, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		var orderID, txHash *string

		err := rows.Scan(
			&t.ID, &orderID, &t.TokenID, &side, &t.AmountUSD, &t.Price,
			&t.RealizedPnL, &txHash, &t.Timestamp, &t.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.OrderID = deref(orderID)
		t.TxHash = deref(txHash)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListSince returns trades executed at or after the given instant, oldest
// first.
func (s *LedgerStore) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE ts >= $1 ORDER BY ts ASC`
	args := []any{since}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	trades, err := scanTrades(ctx, s.pool, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades since: %w", err)
	}
	return trades, nil
}

// HasTxHash reports whether a trade with the given transaction hash has
// already been recorded. The fill monitor uses this to keep polling
// idempotent.
func (s *LedgerStore) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM trades WHERE tx_hash = $1)", txHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check tx hash: %w", err)
	}
	return exists, nil
}

// HasOrderID reports whether a trade attributed to the given local order id
// has already been recorded.
func (s *LedgerStore) HasOrderID(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM trades WHERE order_id = $1)", orderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check order id: %w", err)
	}
	return exists, nil
}

// ListBefore returns trades executed strictly before the given instant,
// oldest first. The retention archiver exports these before deletion.
func (s *LedgerStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	trades, err := scanTrades(ctx, s.pool,
		`SELECT `+tradeSelectCols+` FROM trades WHERE ts < $1 ORDER BY ts ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	return trades, nil
}

// DeleteBefore removes trades executed strictly before the given instant and
// returns the number of rows deleted.
func (s *LedgerStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM trades WHERE ts < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
