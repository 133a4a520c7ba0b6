package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// OrderReconciler is the slice of the order service the sweep needs.
type OrderReconciler interface {
	ListOpen(ctx context.Context) ([]domain.Order, error)
	ReconcileStatus(ctx context.Context, id string) (domain.Order, error)
}

// Reconciler periodically refreshes every non-terminal order against the
// exchange so fills and cancellations the gateway did not initiate still
// land in the local store.
type Reconciler struct {
	orders   OrderReconciler
	interval time.Duration
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler sweeping at the given interval.
func NewReconciler(orders OrderReconciler, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		orders:   orders,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Run sweeps until the context is cancelled. Per-order failures are logged
// and skipped; the rest of the sweep continues.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reconciler started", slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	open, err := r.orders.ListOpen(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "listing open orders failed", slog.String("error", err.Error()))
		return
	}

	updated := 0
	for _, order := range open {
		before := order.Status
		after, err := r.orders.ReconcileStatus(ctx, order.ID)
		if err != nil {
			r.logger.WarnContext(ctx, "reconcile failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if after.Status != before {
			updated++
		}
	}

	if updated > 0 {
		r.logger.InfoContext(ctx, "orders reconciled",
			slog.Int("open", len(open)),
			slog.Int("updated", updated),
		)
	}
}
