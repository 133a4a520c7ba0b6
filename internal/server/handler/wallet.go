package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// WalletService is the on-chain wallet surface the API exposes.
type WalletService interface {
	Address() string
	USDCBalance(ctx context.Context) (float64, error)
	USDCAllowance(ctx context.Context) (float64, error)
	ApproveUSDC(ctx context.Context, amount float64) (string, error)
}

// WalletHandler serves the wallet endpoints.
type WalletHandler struct {
	wallet WalletService
	logger *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallet WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, logger: logger}
}

// GetBalance returns the wallet's USDC balance.
// GET /api/wallet/balance
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.wallet.USDCBalance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "balance read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":      h.wallet.Address(),
		"usdc_balance": balance,
	})
}

// GetAllowance returns the exchange's current USDC spending allowance.
// GET /api/wallet/allowance
func (h *WalletHandler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	allowance, err := h.wallet.USDCAllowance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "allowance read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read allowance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":   h.wallet.Address(),
		"allowance": allowance,
	})
}

// approveRequest is the JSON body for allowance approval. Amount 0 (or the
// field omitted) grants unlimited allowance.
type approveRequest struct {
	Amount float64 `json:"amount"`
}

// Approve submits a USDC approval transaction for the exchange.
// POST /api/wallet/approve
func (h *WalletHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body approveRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err.Error() != "EOF" {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if body.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	txHash, err := h.wallet.ApproveUSDC(r.Context(), body.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "approve failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to submit approval")
		return
	}

	h.logger.InfoContext(r.Context(), "usdc approval submitted", slog.String("tx_hash", txHash))
	writeJSON(w, http.StatusOK, map[string]any{
		"tx_hash": txHash,
		"amount":  body.Amount,
	})
}
