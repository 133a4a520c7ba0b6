package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openclaw/polygate/internal/domain"
)

// AlertManager is the alert table surface the API exposes.
type AlertManager interface {
	CreateAlert(tokenID string, side domain.AlertSide, condition domain.AlertCondition, threshold float64, webhookURL, alertID string) domain.PriceAlert
	GetAlerts(includeTriggered bool) []domain.PriceAlert
	DeleteAlert(alertID string) bool
}

// AlertHandler serves the price alert endpoints.
type AlertHandler struct {
	alerts AlertManager
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(alerts AlertManager, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

// alertRequest is the JSON body for alert creation.
type alertRequest struct {
	TokenID    string  `json:"token_id"`
	Side       string  `json:"side,omitempty"`
	Condition  string  `json:"condition"`
	Threshold  float64 `json:"threshold"`
	WebhookURL string  `json:"webhook_url,omitempty"`
	AlertID    string  `json:"alert_id,omitempty"`
}

// CreateAlert registers a new one-shot price alert.
// POST /api/alerts
func (h *AlertHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var body alertRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.TokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	if body.Threshold <= 0 || body.Threshold >= 1 {
		writeError(w, http.StatusBadRequest, "threshold must be between 0 and 1 exclusive")
		return
	}

	condition, err := domain.ParseAlertCondition(body.Condition)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side := domain.AlertSideYes
	if body.Side != "" {
		side = domain.AlertSide(body.Side)
		if side != domain.AlertSideYes && side != domain.AlertSideNo {
			writeError(w, http.StatusBadRequest, "side must be yes or no")
			return
		}
	}

	alert := h.alerts.CreateAlert(body.TokenID, side, condition, body.Threshold, body.WebhookURL, body.AlertID)
	h.logger.InfoContext(r.Context(), "alert created",
		slog.String("alert_id", alert.AlertID),
		slog.String("token_id", alert.TokenID),
		slog.Float64("threshold", alert.Threshold),
	)
	writeJSON(w, http.StatusCreated, alert)
}

// ListAlerts returns armed alerts, or all alerts with include_triggered=true.
// GET /api/alerts?include_triggered=true
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	includeTriggered := r.URL.Query().Get("include_triggered") == "true"
	alerts := h.alerts.GetAlerts(includeTriggered)
	if alerts == nil {
		alerts = []domain.PriceAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// DeleteAlert removes an alert by id.
// DELETE /api/alerts/{id}
func (h *AlertHandler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing alert id")
		return
	}

	if !h.alerts.DeleteAlert(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "alert_id": id})
}
