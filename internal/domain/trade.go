package domain

import "time"

// Trade is one row in the trade ledger: a confirmed fill attributed to the
// gateway wallet. The ledger is append-only; rows are only ever removed by
// the retention archiver after they have been exported.
type Trade struct {
	ID          int64
	OrderID     string // local order id when known, empty for fills detected externally
	TokenID     string
	Side        OrderSide
	AmountUSD   float64
	Price       float64
	RealizedPnL float64
	TxHash      string
	Timestamp   time.Time // execution time, used for the daily window
	RecordedAt  time.Time
}
