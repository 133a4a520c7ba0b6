package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

type fakeOrderReconciler struct {
	open       []domain.Order
	listErr    error
	after      map[string]domain.Order
	failIDs    map[string]bool
	reconciled []string
}

func (f *fakeOrderReconciler) ListOpen(ctx context.Context) ([]domain.Order, error) {
	return f.open, f.listErr
}

func (f *fakeOrderReconciler) ReconcileStatus(ctx context.Context, id string) (domain.Order, error) {
	f.reconciled = append(f.reconciled, id)
	if f.failIDs[id] {
		return domain.Order{}, errors.New("exchange unreachable")
	}
	return f.after[id], nil
}

func TestReconcilerSweepsAllOpenOrders(t *testing.T) {
	orders := &fakeOrderReconciler{
		open: []domain.Order{
			{ID: "o1", Status: domain.OrderStatusOpen},
			{ID: "o2", Status: domain.OrderStatusPending},
		},
		after: map[string]domain.Order{
			"o1": {ID: "o1", Status: domain.OrderStatusFilled},
			"o2": {ID: "o2", Status: domain.OrderStatusPending},
		},
	}
	r := NewReconciler(orders, time.Minute, quietLogger())

	r.sweep(context.Background())

	if len(orders.reconciled) != 2 {
		t.Fatalf("reconciled %d orders, want 2", len(orders.reconciled))
	}
}

func TestReconcilerContinuesPastFailures(t *testing.T) {
	orders := &fakeOrderReconciler{
		open: []domain.Order{
			{ID: "o1", Status: domain.OrderStatusOpen},
			{ID: "o2", Status: domain.OrderStatusOpen},
		},
		after: map[string]domain.Order{
			"o2": {ID: "o2", Status: domain.OrderStatusCancelled},
		},
		failIDs: map[string]bool{"o1": true},
	}
	r := NewReconciler(orders, time.Minute, quietLogger())

	r.sweep(context.Background())

	if len(orders.reconciled) != 2 {
		t.Fatalf("reconciled %d orders, want 2 (failure must not stop the sweep)", len(orders.reconciled))
	}
}

func TestReconcilerListFailureSkipsSweep(t *testing.T) {
	orders := &fakeOrderReconciler{listErr: errors.New("db down")}
	r := NewReconciler(orders, time.Minute, quietLogger())

	r.sweep(context.Background())

	if len(orders.reconciled) != 0 {
		t.Errorf("reconciled %d orders after list failure, want 0", len(orders.reconciled))
	}
}
