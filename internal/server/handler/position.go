package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openclaw/polygate/internal/domain"
)

// PositionSource serves the wallet's positions from the exchange data API.
type PositionSource interface {
	GetPositions(ctx context.Context, wallet string) ([]domain.Position, error)
}

// PositionHandler serves the read-only positions endpoint.
type PositionHandler struct {
	positions PositionSource
	wallet    string
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler bound to the gateway wallet.
func NewPositionHandler(positions PositionSource, wallet string, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, wallet: wallet, logger: logger}
}

// ListPositions returns the wallet's current outcome-token positions.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.GetPositions(r.Context(), h.wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "positions read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":    h.wallet,
		"positions": positions,
	})
}
