package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/platform/polymarket"
	"github.com/openclaw/polygate/internal/risk"
)

type fakeFillSource struct {
	fills []polymarket.APIFill
	err   error
}

func (f *fakeFillSource) GetFills(ctx context.Context, wallet string, limit int) ([]polymarket.APIFill, error) {
	return f.fills, f.err
}

type fakeRecorder struct {
	recorded []domain.Trade
	err      error
}

func (f *fakeRecorder) RecordTrade(ctx context.Context, trade domain.Trade) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, trade)
	return nil
}

type fakeLedger struct {
	trades      []domain.Trade
	knownHashes map[string]bool
	hashErr     error
	orderErr    error
}

func (f *fakeLedger) Insert(ctx context.Context, trade domain.Trade) (int64, error) {
	f.trades = append(f.trades, trade)
	return int64(len(f.trades)), nil
}

func (f *fakeLedger) SumSince(ctx context.Context, since time.Time) (domain.DailyUsage, error) {
	usage := domain.DailyUsage{Date: since.UTC().Format("2006-01-02")}
	for _, t := range f.trades {
		usage.TotalTrades++
		usage.TotalVolumeUSD += t.AmountUSD
	}
	return usage, nil
}

func (f *fakeLedger) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Trade, error) {
	return f.trades, nil
}

func (f *fakeLedger) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	if f.hashErr != nil {
		return false, f.hashErr
	}
	if f.knownHashes[txHash] {
		return true, nil
	}
	for _, t := range f.trades {
		if t.TxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) HasOrderID(ctx context.Context, orderID string) (bool, error) {
	if f.orderErr != nil {
		return false, f.orderErr
	}
	for _, t := range f.trades {
		if t.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return nil, nil
}

func (f *fakeLedger) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeResolver struct {
	orders map[string]domain.Order // external ref -> local order
	err    error
}

func (f *fakeResolver) GetByExternalRef(ctx context.Context, externalRef string) (domain.Order, error) {
	if f.err != nil {
		return domain.Order{}, f.err
	}
	order, ok := f.orders[externalRef]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

type fakeBus struct {
	published [][]byte
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fill(txHash string, size, price float64) polymarket.APIFill {
	return polymarket.APIFill{
		TransactionHash: txHash,
		Asset:           "tok-1",
		Side:            "BUY",
		Size:            size,
		Price:           price,
		Timestamp:       time.Now().Unix(),
	}
}

func newTestMonitor(source FillSource, recorder TradeRecorder, ledger domain.TradeLedger, resolver OrderResolver, bus domain.SignalBus) *FillMonitor {
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	if bus == nil {
		bus = &fakeBus{}
	}
	return NewFillMonitor(source, recorder, ledger, resolver, bus, "0xwallet", time.Second, quietLogger())
}

func TestFillMonitorRecordsNewFills(t *testing.T) {
	source := &fakeFillSource{fills: []polymarket.APIFill{
		fill("0xaaa", 100, 0.50),
		fill("0xbbb", 40, 0.25),
	}}
	recorder := &fakeRecorder{}
	bus := &fakeBus{}
	m := newTestMonitor(source, recorder, &fakeLedger{}, nil, bus)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 2 {
		t.Fatalf("recorded %d trades, want 2", len(recorder.recorded))
	}
	if recorder.recorded[0].AmountUSD != 50 {
		t.Errorf("amount = %.2f, want 50.00", recorder.recorded[0].AmountUSD)
	}
	if len(bus.published) != 2 {
		t.Errorf("published %d events, want 2", len(bus.published))
	}
}

func TestFillMonitorSkipsKnownTxHashes(t *testing.T) {
	source := &fakeFillSource{fills: []polymarket.APIFill{
		fill("0xseen", 100, 0.50),
		fill("0xnew", 40, 0.25),
	}}
	recorder := &fakeRecorder{}
	ledger := &fakeLedger{knownHashes: map[string]bool{"0xseen": true}}
	m := newTestMonitor(source, recorder, ledger, nil, nil)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 1 {
		t.Fatalf("recorded %d trades, want 1", len(recorder.recorded))
	}
	if recorder.recorded[0].TxHash != "0xnew" {
		t.Errorf("recorded tx = %s, want 0xnew", recorder.recorded[0].TxHash)
	}
}

func TestFillMonitorSkipsSynchronouslyRecordedOrder(t *testing.T) {
	// The signal flow already recorded this execution under its local order
	// id, without a tx hash. The fill carries the exchange order id; the
	// monitor must correlate the two and not count the execution again.
	ledger := &fakeLedger{trades: []domain.Trade{
		{OrderID: "local-1", TokenID: "tok-1", Side: domain.OrderSideBuy, AmountUSD: 50},
	}}
	resolver := &fakeResolver{orders: map[string]domain.Order{
		"ext-1": {ID: "local-1", ExternalRef: "ext-1"},
	}}
	f := fill("0xabc", 100, 0.50)
	f.OrderID = "ext-1"
	recorder := &fakeRecorder{}
	m := newTestMonitor(&fakeFillSource{fills: []polymarket.APIFill{f}}, recorder, ledger, resolver, nil)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 0 {
		t.Fatalf("recorded %d trades, want 0 for an already-attributed execution", len(recorder.recorded))
	}
}

func TestFillMonitorAttributesFillToLocalOrder(t *testing.T) {
	// Order exists locally but its synchronous record never landed (e.g. the
	// ledger write failed); the fill is recorded under the local order id so
	// later polls correlate against it.
	resolver := &fakeResolver{orders: map[string]domain.Order{
		"ext-1": {ID: "local-1", ExternalRef: "ext-1"},
	}}
	f := fill("0xabc", 100, 0.50)
	f.OrderID = "ext-1"
	recorder := &fakeRecorder{}
	m := newTestMonitor(&fakeFillSource{fills: []polymarket.APIFill{f}}, recorder, &fakeLedger{}, resolver, nil)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 1 {
		t.Fatalf("recorded %d trades, want 1", len(recorder.recorded))
	}
	if recorder.recorded[0].OrderID != "local-1" {
		t.Errorf("trade order id = %q, want local-1", recorder.recorded[0].OrderID)
	}
}

func TestFillMonitorRecordsFillFromUnknownOrder(t *testing.T) {
	// A fill whose order id resolves to nothing local was placed outside the
	// gateway; it still counts toward usage, unattributed.
	f := fill("0xabc", 100, 0.50)
	f.OrderID = "ext-unknown"
	recorder := &fakeRecorder{}
	m := newTestMonitor(&fakeFillSource{fills: []polymarket.APIFill{f}}, recorder, &fakeLedger{}, &fakeResolver{}, nil)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 1 {
		t.Fatalf("recorded %d trades, want 1", len(recorder.recorded))
	}
	if recorder.recorded[0].OrderID != "" {
		t.Errorf("trade order id = %q, want empty", recorder.recorded[0].OrderID)
	}
}

func TestFillMonitorSkipsFillOnOrderLookupError(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}
	f := fill("0xabc", 100, 0.50)
	f.OrderID = "ext-1"
	recorder := &fakeRecorder{}
	m := newTestMonitor(&fakeFillSource{fills: []polymarket.APIFill{f}}, recorder, &fakeLedger{}, resolver, nil)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 0 {
		t.Errorf("recorded %d trades, want 0 when attribution cannot be verified", len(recorder.recorded))
	}
}

func TestFillMonitorSkipsFillOnDedupError(t *testing.T) {
	source := &fakeFillSource{fills: []polymarket.APIFill{fill("0xaaa", 100, 0.50)}}
	recorder := &fakeRecorder{}
	ledger := &fakeLedger{hashErr: errors.New("db down")}
	m := newTestMonitor(source, recorder, ledger, nil, nil)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 0 {
		t.Errorf("recorded %d trades, want 0 when dedup cannot be verified", len(recorder.recorded))
	}
}

func TestFillMonitorFetchErrorDoesNotRecord(t *testing.T) {
	source := &fakeFillSource{err: errors.New("api down")}
	recorder := &fakeRecorder{}
	m := newTestMonitor(source, recorder, &fakeLedger{}, nil, nil)

	m.pollOnce(context.Background())

	if len(recorder.recorded) != 0 {
		t.Errorf("recorded %d trades after fetch failure, want 0", len(recorder.recorded))
	}
}

func TestDailyUsageCountsOneExecutionOnce(t *testing.T) {
	// Full round trip of one $50 execution: the signal flow records it
	// through the engine, then the monitor sees the same execution in the
	// fill feed with its tx hash and exchange order id. Usage must report a
	// single trade.
	ledger := &fakeLedger{}
	engine := risk.NewEngine(domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, ledger, quietLogger())

	if err := engine.RecordTrade(context.Background(), domain.Trade{
		OrderID:   "local-1",
		TokenID:   "tok-1",
		Side:      domain.OrderSideBuy,
		AmountUSD: 50,
	}); err != nil {
		t.Fatal(err)
	}

	resolver := &fakeResolver{orders: map[string]domain.Order{
		"ext-1": {ID: "local-1", ExternalRef: "ext-1"},
	}}
	f := fill("0xabc", 100, 0.50)
	f.OrderID = "ext-1"
	m := newTestMonitor(&fakeFillSource{fills: []polymarket.APIFill{f}}, engine, ledger, resolver, nil)

	m.pollOnce(context.Background())

	usage, err := engine.DailyUsage(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if usage.TotalTrades != 1 || usage.TotalVolumeUSD != 50 {
		t.Errorf("usage = %d trades / $%.2f, want 1 trade / $50.00", usage.TotalTrades, usage.TotalVolumeUSD)
	}
}
