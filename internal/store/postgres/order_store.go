package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclaw/polygate/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Insert stores a new order record. Each creation attempt is inserted exactly
// once under its locally generated id; the primary-key constraint makes an
// accidental double insert fail loudly instead of silently overwriting.
func (s *OrderStore) Insert(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, token_id, condition_id, side, order_type,
			amount_usd, price, filled_amount, status,
			external_ref, nonce, error_msg, raw_result,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.TokenID, o.ConditionID,
		string(o.Side), string(o.Type),
		o.AmountUSD, o.Price, o.FilledAmount, string(o.Status),
		nullable(o.ExternalRef), nullable(o.Nonce), nullable(o.ErrorMsg), o.RawResult,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus transitions an existing order to the given status and updates
// its filled amount. Rows are mutated in place, never re-inserted.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, filledAmount float64) error {
	const query = `
		UPDATE orders
		SET status = $1, filled_amount = $2, updated_at = NOW()
		WHERE id = $3`

	tag, err := s.pool.Exec(ctx, query, string(status), filledAmount, id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, token_id, condition_id, side, order_type,
	amount_usd, price, filled_amount, status,
	external_ref, nonce, error_msg, raw_result,
	created_at, updated_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var side, orderType, status string
	var externalRef, nonce, errorMsg *string

	err := scanner.Scan(
		&o.ID, &o.TokenID, &o.ConditionID,
		&side, &orderType,
		&o.AmountUSD, &o.Price, &o.FilledAmount, &status,
		&externalRef, &nonce, &errorMsg, &o.RawResult,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.ExternalRef = deref(externalRef)
	o.Nonce = deref(nonce)
	o.ErrorMsg = deref(errorMsg)

	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by its local id.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// GetByExternalRef retrieves a single order by the exchange's order id.
func (s *OrderStore) GetByExternalRef(ctx context.Context, externalRef string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE external_ref = $1`, externalRef)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order by external ref %s: %w", externalRef, err)
	}
	return o, nil
}

// ListOpen returns all orders in a non-terminal status, newest first.
func (s *OrderStore) ListOpen(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status IN ('PENDING', 'OPEN', 'PARTIALLY_FILLED')
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open orders: %w", err)
	}
	return orders, nil
}

// ListByToken returns orders for a given token with pagination and optional
// time filtering.
func (s *OrderStore) ListByToken(ctx context.Context, tokenID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE token_id = $1`
	args := []any{tokenID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by token: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by token: %w", err)
	}
	return orders, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
