package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/openclaw/polygate/internal/domain"
)

// fakeOrderStore implements domain.OrderStore in memory.
type fakeOrderStore struct {
	orders  map[string]domain.Order
	inserts int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]domain.Order)}
}

func (f *fakeOrderStore) Insert(ctx context.Context, o domain.Order) error {
	f.inserts++
	f.orders[o.ID] = o
	return nil
}

func (f *fakeOrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, filled float64) error {
	o, ok := f.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.FilledAmount = filled
	f.orders[id] = o
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) GetByExternalRef(ctx context.Context, externalRef string) (domain.Order, error) {
	for _, o := range f.orders {
		if o.ExternalRef == externalRef {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (f *fakeOrderStore) ListOpen(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListByToken(ctx context.Context, tokenID string, opts domain.ListOpts) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if o.TokenID == tokenID {
			out = append(out, o)
		}
	}
	return out, nil
}

// fakeTrading implements TradingClient with scripted responses.
type fakeTrading struct {
	postResult   domain.OrderResult
	postErr      error
	cancelResult domain.CancelResult
	cancelErr    error
	cancelCalls  int
	status       domain.OrderStatus
	statusFilled float64
	statusErr    error
}

func (f *fakeTrading) PostOrder(ctx context.Context, o domain.Order) (domain.OrderResult, error) {
	return f.postResult, f.postErr
}

func (f *fakeTrading) CancelOrder(ctx context.Context, ref string) (domain.CancelResult, error) {
	f.cancelCalls++
	return f.cancelResult, f.cancelErr
}

func (f *fakeTrading) CancelAll(ctx context.Context) (domain.CancelAllResult, error) {
	return domain.CancelAllResult{Success: true}, nil
}

func (f *fakeTrading) OrderStatus(ctx context.Context, ref string) (domain.OrderStatus, float64, error) {
	return f.status, f.statusFilled, f.statusErr
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

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrderService(store *fakeOrderStore, trading *fakeTrading) *OrderService {
	return NewOrderService(store, trading, &fakeBus{}, &fakeAudit{}, quietLogger())
}

func marketRequest(amount float64) domain.OrderRequest {
	return domain.OrderRequest{
		TokenID:   "tok-1",
		Side:      domain.OrderSideBuy,
		AmountUSD: amount,
		Type:      domain.OrderTypeMarket,
	}
}

func TestCreateOrderSuccess(t *testing.T) {
	store := newFakeOrderStore()
	trading := &fakeTrading{postResult: domain.OrderResult{
		Success: true,
		OrderID: "ext-1",
		Status:  domain.OrderStatusOpen,
	}}
	svc := newOrderService(store, trading)

	result, err := svc.CreateOrder(context.Background(), marketRequest(50))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s, want OPEN", result.Status)
	}

	stored, err := svc.GetOrder(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if stored.ExternalRef != "ext-1" {
		t.Errorf("external ref = %q, want ext-1", stored.ExternalRef)
	}
	if store.inserts != 1 {
		t.Errorf("inserts = %d, want 1", store.inserts)
	}
}

func TestCreateOrderCollaboratorTimeout(t *testing.T) {
	store := newFakeOrderStore()
	trading := &fakeTrading{postErr: errors.New("request timed out")}
	svc := newOrderService(store, trading)

	result, err := svc.CreateOrder(context.Background(), marketRequest(50))
	if err != nil {
		t.Fatalf("collaborator failure must not surface as an error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected success=false")
	}
	if result.ErrorMsg != "request timed out" {
		t.Errorf("error msg = %q", result.ErrorMsg)
	}

	stored, err := svc.GetOrder(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("failed attempt must still be retrievable: %v", err)
	}
	if stored.Status != domain.OrderStatusFailed {
		t.Errorf("stored status = %s, want FAILED", stored.Status)
	}
	if store.inserts != 1 {
		t.Errorf("inserts = %d, want 1", store.inserts)
	}
}

func TestCreateOrderExchangeRejection(t *testing.T) {
	store := newFakeOrderStore()
	trading := &fakeTrading{postResult: domain.OrderResult{
		Success:  false,
		ErrorMsg: "insufficient balance",
	}}
	svc := newOrderService(store, trading)

	result, err := svc.CreateOrder(context.Background(), marketRequest(50))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.Success || result.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED result, got %+v", result)
	}

	stored, _ := svc.GetOrder(context.Background(), result.OrderID)
	if stored.ErrorMsg != "insufficient balance" {
		t.Errorf("stored error = %q", stored.ErrorMsg)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	store := newFakeOrderStore()
	svc := newOrderService(store, &fakeTrading{})

	cases := []struct {
		name string
		req  domain.OrderRequest
	}{
		{"missing token", domain.OrderRequest{Side: domain.OrderSideBuy, AmountUSD: 10, Type: domain.OrderTypeMarket}},
		{"zero amount", marketRequest(0)},
		{"negative amount", marketRequest(-5)},
		{"limit without price", domain.OrderRequest{TokenID: "tok", Side: domain.OrderSideBuy, AmountUSD: 10, Type: domain.OrderTypeLimit}},
		{"price out of range", func() domain.OrderRequest {
			p := 1.5
			r := marketRequest(10)
			r.Type = domain.OrderTypeLimit
			r.Price = &p
			return r
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateOrder(context.Background(), tc.req); !errors.Is(err, domain.ErrInvalidOrder) {
				t.Errorf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}

	if store.inserts != 0 {
		t.Errorf("validation failures must not persist records, got %d inserts", store.inserts)
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	svc := newOrderService(newFakeOrderStore(), &fakeTrading{})

	if _, err := svc.CancelOrder(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelOrderTerminalIsNoOp(t *testing.T) {
	store := newFakeOrderStore()
	store.orders["o1"] = domain.Order{ID: "o1", Status: domain.OrderStatusFilled, FilledAmount: 50}
	trading := &fakeTrading{}
	svc := newOrderService(store, trading)

	result, err := svc.CancelOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if !result.Success || !result.NoOp {
		t.Fatalf("expected success no-op, got %+v", result)
	}
	if trading.cancelCalls != 0 {
		t.Error("terminal order must not reach the exchange")
	}
	if store.orders["o1"].Status != domain.OrderStatusFilled {
		t.Error("terminal status must not change")
	}
}

func TestCancelOrderExchangeFailureLeavesLocalState(t *testing.T) {
	store := newFakeOrderStore()
	store.orders["o1"] = domain.Order{ID: "o1", ExternalRef: "ext-1", Status: domain.OrderStatusOpen}
	trading := &fakeTrading{cancelErr: errors.New("exchange unavailable")}
	svc := newOrderService(store, trading)

	result, err := svc.CancelOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
	if store.orders["o1"].Status != domain.OrderStatusOpen {
		t.Error("local status must be untouched after exchange failure")
	}
}

func TestCancelOrderSuccess(t *testing.T) {
	store := newFakeOrderStore()
	store.orders["o1"] = domain.Order{ID: "o1", ExternalRef: "ext-1", Status: domain.OrderStatusOpen}
	trading := &fakeTrading{cancelResult: domain.CancelResult{Success: true}}
	svc := newOrderService(store, trading)

	result, err := svc.CancelOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if store.orders["o1"].Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", store.orders["o1"].Status)
	}
}

func TestReconcileStatusUpdatesNonTerminal(t *testing.T) {
	store := newFakeOrderStore()
	store.orders["o1"] = domain.Order{ID: "o1", ExternalRef: "ext-1", Status: domain.OrderStatusOpen}
	trading := &fakeTrading{status: domain.OrderStatusFilled, statusFilled: 50}
	svc := newOrderService(store, trading)

	order, err := svc.ReconcileStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("ReconcileStatus: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want FILLED", order.Status)
	}
	if store.orders["o1"].FilledAmount != 50 {
		t.Errorf("filled = %.2f, want 50", store.orders["o1"].FilledAmount)
	}
}

func TestReconcileStatusTerminalImmutable(t *testing.T) {
	store := newFakeOrderStore()
	store.orders["o1"] = domain.Order{ID: "o1", ExternalRef: "ext-1", Status: domain.OrderStatusCancelled}
	trading := &fakeTrading{status: domain.OrderStatusOpen}
	svc := newOrderService(store, trading)

	order, err := svc.ReconcileStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("ReconcileStatus: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("terminal status changed to %s", order.Status)
	}
	if store.orders["o1"].Status != domain.OrderStatusCancelled {
		t.Error("stored terminal status must not change")
	}
}

func TestReconcileStatusWithoutExternalRef(t *testing.T) {
	store := newFakeOrderStore()
	store.orders["o1"] = domain.Order{ID: "o1", Status: domain.OrderStatusFailed}
	svc := newOrderService(store, &fakeTrading{})

	order, err := svc.ReconcileStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("ReconcileStatus: %v", err)
	}
	if order.Status != domain.OrderStatusFailed {
		t.Errorf("status = %s, want FAILED", order.Status)
	}
}
