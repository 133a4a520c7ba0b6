package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/openclaw/polygate/internal/crypto"
	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/service"
)

// maxWebhookBody bounds the inbound signal payload.
const maxWebhookBody = 64 * 1024

// SignalHandler runs the webhook trading flow.
type SignalHandler interface {
	HandleSignal(ctx context.Context, sig service.WebhookSignal) (service.SignalResult, error)
}

// WebhookHandler receives inbound trading signals. Payloads are authenticated
// with an HMAC signature over the raw body when a secret is configured.
type WebhookHandler struct {
	signals SignalHandler
	secret  string
	logger  *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. An empty secret disables
// signature verification.
func NewWebhookHandler(signals SignalHandler, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{signals: signals, secret: secret, logger: logger}
}

// webhookPayload is the inbound signal JSON.
type webhookPayload struct {
	SignalID  string   `json:"signal_id"`
	TokenID   string   `json:"token_id"`
	Side      string   `json:"side"`
	AmountUSD float64  `json:"amount_usd"`
	Price     *float64 `json:"price,omitempty"`
	OrderType string   `json:"order_type,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

// HandleSignal processes one signal delivery.
// POST /api/webhook/claw
//
// A repeated delivery is acknowledged with 200 and accepted=false so the
// sender stops retrying. A concurrent in-flight trade for the wallet maps to
// 409.
func (h *WebhookHandler) HandleSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// The signature covers the raw body, so verification happens before any
	// decoding.
	if !crypto.VerifyWebhook(h.secret, body, r.Header.Get("X-Webhook-Signature")) {
		h.logger.WarnContext(r.Context(), "webhook signature rejected",
			slog.String("remote_addr", r.RemoteAddr),
		)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if payload.TokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	side, err := domain.ParseOrderSide(payload.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be BUY or SELL")
		return
	}
	if payload.AmountUSD <= 0 {
		writeError(w, http.StatusBadRequest, "amount_usd must be positive")
		return
	}

	result, err := h.signals.HandleSignal(r.Context(), service.WebhookSignal{
		SignalID:  payload.SignalID,
		TokenID:   payload.TokenID,
		Side:      side,
		AmountUSD: payload.AmountUSD,
		Price:     payload.Price,
		OrderType: domain.OrderType(payload.OrderType),
		Nonce:     payload.Nonce,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		writeJSON(w, http.StatusOK, result)
		return
	case errors.Is(err, domain.ErrLockHeld):
		writeJSON(w, http.StatusConflict, result)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "signal handling failed",
			slog.String("signal_id", payload.SignalID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to process signal")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
