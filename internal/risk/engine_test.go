package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// fakeLedger implements domain.TradeLedger in memory.
type fakeLedger struct {
	trades  []domain.Trade
	sumErr  error
	insErr  error
	sumHits int
}

func (f *fakeLedger) Insert(ctx context.Context, t domain.Trade) (int64, error) {
	if f.insErr != nil {
		return 0, f.insErr
	}
	f.trades = append(f.trades, t)
	return int64(len(f.trades)), nil
}

func (f *fakeLedger) SumSince(ctx context.Context, since time.Time) (domain.DailyUsage, error) {
	f.sumHits++
	if f.sumErr != nil {
		return domain.DailyUsage{}, f.sumErr
	}
	usage := domain.DailyUsage{Date: since.UTC().Format("2006-01-02")}
	for _, t := range f.trades {
		if t.Timestamp.Before(since) {
			continue
		}
		usage.TotalTrades++
		usage.TotalVolumeUSD += t.AmountUSD
		if t.Side == domain.OrderSideBuy {
			usage.BuyVolumeUSD += t.AmountUSD
		} else {
			usage.SellVolumeUSD += t.AmountUSD
		}
		usage.RealizedPnL += t.RealizedPnL
	}
	return usage, nil
}

func (f *fakeLedger) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Trade, error) {
	return f.trades, nil
}

func (f *fakeLedger) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	for _, t := range f.trades {
		if t.TxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) HasOrderID(ctx context.Context, orderID string) (bool, error) {
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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T, limits domain.TradeLimitConfig, strict bool, ledger *fakeLedger) *Engine {
	t.Helper()
	e := NewEngine(limits, strict, ledger, discardLogger())
	e.now = func() time.Time {
		return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	}
	return e
}

func addTrade(f *fakeLedger, amount float64, ts time.Time) {
	f.trades = append(f.trades, domain.Trade{
		TokenID:   "tok",
		Side:      domain.OrderSideBuy,
		AmountUSD: amount,
		Price:     0.5,
		Timestamp: ts,
	})
}

func TestCanTradeExceedsPerTradeLimit(t *testing.T) {
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, &fakeLedger{})

	ok, reason, err := e.CanTrade(context.Background(), 150, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	if ok {
		t.Fatal("expected trade to be rejected")
	}
	if reason != "Trade amount $150.00 exceeds limit of $100.00" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestCanTradeDailyVolumeExhausted(t *testing.T) {
	ledger := &fakeLedger{}
	addTrade(ledger, 450, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, ledger)

	ok, reason, err := e.CanTrade(context.Background(), 60, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	if ok {
		t.Fatal("expected trade to be rejected")
	}
	if reason != "Daily limit exceeded. Remaining: $50.00" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestCanTradeDailyCountExhausted(t *testing.T) {
	ledger := &fakeLedger{}
	for i := 0; i < 3; i++ {
		addTrade(ledger, 10, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	}
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500, MaxDailyTrades: 3}, false, ledger)

	ok, reason, err := e.CanTrade(context.Background(), 5, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	if ok {
		t.Fatal("expected trade to be rejected")
	}
	if reason != "Daily trade limit reached: 3 trades" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestCanTradeFreshDayAllows(t *testing.T) {
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, &fakeLedger{})

	ok, reason, err := e.CanTrade(context.Background(), 80, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	if !ok {
		t.Fatalf("expected trade to be allowed, got %q", reason)
	}
	if reason != "Trade allowed" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestCanTradeMonotonicUnderRecording(t *testing.T) {
	// Once a given amount is rejected on daily volume, recording more trades
	// can never make it admissible again within the same day.
	ledger := &fakeLedger{}
	addTrade(ledger, 450, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, ledger)

	ok, _, _ := e.CanTrade(context.Background(), 60, domain.OrderSideBuy)
	if ok {
		t.Fatal("expected first check to reject")
	}

	err := e.RecordTrade(context.Background(), domain.Trade{
		TokenID: "tok", Side: domain.OrderSideBuy, AmountUSD: 40, Price: 0.5,
		Timestamp: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	ok, _, _ = e.CanTrade(context.Background(), 60, domain.OrderSideBuy)
	if ok {
		t.Fatal("rejected amount became admissible after more volume was recorded")
	}
}

func TestRecordTradeInvalidatesCache(t *testing.T) {
	ledger := &fakeLedger{}
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, ledger)

	if _, _, err := e.CanTrade(context.Background(), 80, domain.OrderSideBuy); err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	hitsBefore := ledger.sumHits

	// A second check reuses the snapshot.
	if _, _, err := e.CanTrade(context.Background(), 80, domain.OrderSideBuy); err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	if ledger.sumHits != hitsBefore {
		t.Fatal("expected cached snapshot to be reused")
	}

	err := e.RecordTrade(context.Background(), domain.Trade{
		TokenID: "tok", Side: domain.OrderSideBuy, AmountUSD: 80, Price: 0.5,
		Timestamp: time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	usage, err := e.DailyUsage(context.Background(), false)
	if err != nil {
		t.Fatalf("DailyUsage: %v", err)
	}
	if ledger.sumHits == hitsBefore {
		t.Fatal("expected cache to be invalidated after recording")
	}
	if usage.TotalVolumeUSD != 80 {
		t.Errorf("usage volume = %.2f, want 80", usage.TotalVolumeUSD)
	}
}

func TestDayRolloverResetsUsage(t *testing.T) {
	ledger := &fakeLedger{}
	addTrade(ledger, 450, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, ledger)

	ok, _, _ := e.CanTrade(context.Background(), 80, domain.OrderSideBuy)
	if ok {
		t.Fatal("expected rejection while day volume is used up")
	}

	// Advance past midnight UTC; the old trade falls out of the window.
	e.now = func() time.Time {
		return time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC)
	}

	ok, reason, err := e.CanTrade(context.Background(), 80, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	if !ok {
		t.Fatalf("expected allowance on new day, got %q", reason)
	}

	usage, _ := e.DailyUsage(context.Background(), false)
	if usage.Date != "2025-03-11" {
		t.Errorf("usage date = %s, want 2025-03-11", usage.Date)
	}
	if usage.TotalVolumeUSD != 0 {
		t.Errorf("usage volume = %.2f, want 0", usage.TotalVolumeUSD)
	}
}

func TestLedgerFailureFailsOpen(t *testing.T) {
	ledger := &fakeLedger{sumErr: errors.New("connection refused")}
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, ledger)

	ok, reason, err := e.CanTrade(context.Background(), 80, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("CanTrade: %v", err)
	}
	if !ok {
		t.Fatalf("expected fail-open allowance, got %q", reason)
	}
}

func TestLedgerFailureStrictModeBlocks(t *testing.T) {
	ledger := &fakeLedger{sumErr: errors.New("connection refused")}
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, true, ledger)

	ok, _, err := e.CanTrade(context.Background(), 80, domain.OrderSideBuy)
	if err == nil {
		t.Fatal("expected error in strict mode")
	}
	if ok {
		t.Fatal("expected rejection in strict mode")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error should wrap the ledger failure, got %v", err)
	}
}

func TestCheckPositionLimit(t *testing.T) {
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500, MaxPositionUSD: 200}, false, &fakeLedger{})

	ok, reason := e.CheckPositionLimit(150, 100)
	if ok {
		t.Fatal("expected position rejection")
	}
	if reason != "Position size $250.00 exceeds limit of $200.00" {
		t.Errorf("unexpected reason: %q", reason)
	}

	ok, reason = e.CheckPositionLimit(150, 40)
	if !ok {
		t.Fatalf("expected position allowance, got %q", reason)
	}
	if reason != "Position allowed" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestCheckPositionLimitDisabled(t *testing.T) {
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, false, &fakeLedger{})

	if ok, _ := e.CheckPositionLimit(1e9, 1e9); !ok {
		t.Fatal("zero position cap must disable the check")
	}
}

func TestReport(t *testing.T) {
	ledger := &fakeLedger{}
	addTrade(ledger, 120, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500, MaxDailyTrades: 10}, false, ledger)

	report, err := e.Report(context.Background())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.DailyVolumeUsed != 120 {
		t.Errorf("volume used = %.2f, want 120", report.DailyVolumeUsed)
	}
	if report.DailyVolumeRemaining != 380 {
		t.Errorf("volume remaining = %.2f, want 380", report.DailyVolumeRemaining)
	}
	if report.DailyTradesUsed != 1 {
		t.Errorf("trades used = %d, want 1", report.DailyTradesUsed)
	}
}

func TestReportDegradesOnLedgerFailure(t *testing.T) {
	// Strict mode blocks admission on ledger failure, but the limits report
	// stays readable and falls back to a zero snapshot for today.
	ledger := &fakeLedger{sumErr: errors.New("connection refused")}
	e := testEngine(t, domain.TradeLimitConfig{MaxTradeUSD: 100, MaxDailyUSD: 500}, true, ledger)

	report, err := e.Report(context.Background())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Date != "2025-03-10" {
		t.Errorf("report date = %s, want 2025-03-10", report.Date)
	}
	if report.DailyVolumeUsed != 0 {
		t.Errorf("volume used = %.2f, want 0", report.DailyVolumeUsed)
	}
	if report.DailyVolumeRemaining != 500 {
		t.Errorf("volume remaining = %.2f, want 500", report.DailyVolumeRemaining)
	}
	if !report.StrictMode {
		t.Error("report should still carry strict mode")
	}
}
