package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() { f.released++ }, nil
}

type fakeRisk struct {
	allowed   bool
	reason    string
	checkErr  error
	limits    domain.TradeLimitConfig
	posOK     bool
	posReason string
	recorded  []domain.Trade
	recordErr error
}

func (f *fakeRisk) CanTrade(ctx context.Context, amountUSD float64, side domain.OrderSide) (bool, string, error) {
	return f.allowed, f.reason, f.checkErr
}

func (f *fakeRisk) CheckPositionLimit(current, additional float64) (bool, string) {
	return f.posOK, f.posReason
}

func (f *fakeRisk) RecordTrade(ctx context.Context, t domain.Trade) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, t)
	return nil
}

func (f *fakeRisk) Limits() domain.TradeLimitConfig {
	return f.limits
}

type fakeCreator struct {
	result domain.OrderResult
	err    error
	calls  int
}

func (f *fakeCreator) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.calls++
	return f.result, f.err
}

type fakePositions struct {
	value float64
	err   error
}

func (f *fakePositions) PositionValue(ctx context.Context, tokenID string) (float64, error) {
	return f.value, f.err
}

func newSignalService(locks *fakeLocks, risk *fakeRisk, creator *fakeCreator, positions PositionReader) *SignalService {
	return NewSignalService(
		NewDedup(time.Minute),
		locks,
		risk,
		creator,
		positions,
		&fakeAudit{},
		"0xwallet",
		quietLogger(),
	)
}

func buySignal(amount float64) WebhookSignal {
	return WebhookSignal{
		SignalID:  "sig-1",
		TokenID:   "tok-1",
		Side:      domain.OrderSideBuy,
		AmountUSD: amount,
	}
}

func TestHandleSignalHappyPath(t *testing.T) {
	locks := &fakeLocks{}
	risk := &fakeRisk{allowed: true, reason: "Trade allowed", posOK: true}
	creator := &fakeCreator{result: domain.OrderResult{Success: true, OrderID: "o1", Status: domain.OrderStatusOpen}}
	svc := newSignalService(locks, risk, creator, &fakePositions{})

	result, err := svc.HandleSignal(context.Background(), buySignal(50))
	if err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	if !result.Accepted || !result.Order.Success {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(risk.recorded) != 1 {
		t.Fatalf("recorded trades = %d, want 1", len(risk.recorded))
	}
	if risk.recorded[0].OrderID != "o1" || risk.recorded[0].AmountUSD != 50 {
		t.Errorf("recorded trade = %+v", risk.recorded[0])
	}
	if locks.acquired != 1 || locks.released != 1 {
		t.Errorf("lock acquired=%d released=%d, want 1/1", locks.acquired, locks.released)
	}
}

func TestHandleSignalDuplicateDropped(t *testing.T) {
	locks := &fakeLocks{}
	risk := &fakeRisk{allowed: true, posOK: true}
	creator := &fakeCreator{result: domain.OrderResult{Success: true, OrderID: "o1"}}
	svc := newSignalService(locks, risk, creator, &fakePositions{})

	if _, err := svc.HandleSignal(context.Background(), buySignal(50)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	_, err := svc.HandleSignal(context.Background(), buySignal(50))
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if creator.calls != 1 {
		t.Errorf("order created %d times, want 1", creator.calls)
	}
}

func TestHandleSignalLockHeld(t *testing.T) {
	locks := &fakeLocks{held: true}
	risk := &fakeRisk{allowed: true, posOK: true}
	creator := &fakeCreator{}
	svc := newSignalService(locks, risk, creator, &fakePositions{})

	_, err := svc.HandleSignal(context.Background(), buySignal(50))
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if creator.calls != 0 {
		t.Error("no order may be created while the lock is held")
	}
}

func TestHandleSignalAdmissionRejected(t *testing.T) {
	locks := &fakeLocks{}
	risk := &fakeRisk{allowed: false, reason: "Daily limit exceeded. Remaining: $50.00"}
	creator := &fakeCreator{}
	svc := newSignalService(locks, risk, creator, &fakePositions{})

	result, err := svc.HandleSignal(context.Background(), buySignal(60))
	if err != nil {
		t.Fatalf("admission rejection is not an error: %v", err)
	}
	if result.Accepted {
		t.Fatal("expected rejection")
	}
	if result.Reason != "Daily limit exceeded. Remaining: $50.00" {
		t.Errorf("reason = %q", result.Reason)
	}
	if creator.calls != 0 {
		t.Error("rejected signal must not create an order")
	}
	if len(risk.recorded) != 0 {
		t.Error("rejected signal must not record a trade")
	}
}

func TestHandleSignalPositionLimitRejected(t *testing.T) {
	locks := &fakeLocks{}
	risk := &fakeRisk{
		allowed:   true,
		limits:    domain.TradeLimitConfig{MaxPositionUSD: 200},
		posOK:     false,
		posReason: "Position size $250.00 exceeds limit of $200.00",
	}
	creator := &fakeCreator{}
	svc := newSignalService(locks, risk, creator, &fakePositions{value: 200})

	result, err := svc.HandleSignal(context.Background(), buySignal(50))
	if err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	if result.Accepted {
		t.Fatal("expected position rejection")
	}
	if creator.calls != 0 {
		t.Error("rejected signal must not create an order")
	}
}

func TestHandleSignalPositionLookupFailsOpen(t *testing.T) {
	locks := &fakeLocks{}
	risk := &fakeRisk{
		allowed: true,
		limits:  domain.TradeLimitConfig{MaxPositionUSD: 200},
		posOK:   false, // would reject if the lookup succeeded
	}
	creator := &fakeCreator{result: domain.OrderResult{Success: true, OrderID: "o1"}}
	svc := newSignalService(locks, risk, creator, &fakePositions{err: errors.New("data api down")})

	result, err := svc.HandleSignal(context.Background(), buySignal(50))
	if err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	if !result.Accepted {
		t.Fatal("position lookup failure must fail open")
	}
}

func TestHandleSignalFailedOrderNotRecorded(t *testing.T) {
	locks := &fakeLocks{}
	risk := &fakeRisk{allowed: true, posOK: true}
	creator := &fakeCreator{result: domain.OrderResult{
		Success:  false,
		OrderID:  "o1",
		Status:   domain.OrderStatusFailed,
		ErrorMsg: "exchange timeout",
	}}
	svc := newSignalService(locks, risk, creator, &fakePositions{})

	result, err := svc.HandleSignal(context.Background(), buySignal(50))
	if err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}
	if !result.Accepted {
		t.Fatal("the signal itself was accepted even though the order failed")
	}
	if result.Order.Success {
		t.Fatal("order result should report failure")
	}
	if len(risk.recorded) != 0 {
		t.Error("failed submission must not count against the daily budget")
	}
}
