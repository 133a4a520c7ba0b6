package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openclaw/polygate/internal/domain"
)

// RiskReporter is the read-only view of the risk engine the API exposes.
type RiskReporter interface {
	Report(ctx context.Context) (domain.LimitsReport, error)
	CanTrade(ctx context.Context, amountUSD float64, side domain.OrderSide) (bool, string, error)
	DailyUsage(ctx context.Context, reload bool) (domain.DailyUsage, error)
}

// LimitsHandler serves the trading limits endpoints.
type LimitsHandler struct {
	risk   RiskReporter
	logger *slog.Logger
}

// NewLimitsHandler creates a LimitsHandler.
func NewLimitsHandler(risk RiskReporter, logger *slog.Logger) *LimitsHandler {
	return &LimitsHandler{risk: risk, logger: logger}
}

// GetLimits returns the configured thresholds with today's usage.
// GET /api/limits
func (h *LimitsHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	report, err := h.risk.Report(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "limits report failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to build limits report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CheckLimits dry-runs the admission check without consuming any budget.
// GET /api/limits/check?amount=50&side=BUY
func (h *LimitsHandler) CheckLimits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := strconv.ParseFloat(q.Get("amount"), 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	side := domain.OrderSideBuy
	if s := q.Get("side"); s != "" {
		side, err = domain.ParseOrderSide(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "side must be BUY or SELL")
			return
		}
	}

	allowed, reason, err := h.risk.CanTrade(r.Context(), amount, side)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "limits check failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to check limits")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":    allowed,
		"reason":     reason,
		"amount_usd": amount,
		"side":       string(side),
	})
}

// GetUsage returns today's usage snapshot. Passing reload=true bypasses the
// cached snapshot.
// GET /api/limits/usage?reload=true
func (h *LimitsHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	reload := r.URL.Query().Get("reload") == "true"

	usage, err := h.risk.DailyUsage(r.Context(), reload)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "usage read failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to read usage")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
