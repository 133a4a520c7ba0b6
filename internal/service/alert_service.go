package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/polygate/internal/domain"
)

// AlertSink delivers a triggered-alert payload to an external webhook URL.
// Delivery is best effort; the sink owns its own timeout.
type AlertSink interface {
	Send(ctx context.Context, url string, payload any) error
}

// AlertNotification is the payload POSTed to an alert's webhook URL when it
// fires.
type AlertNotification struct {
	AlertID        string  `json:"alert_id"`
	TokenID        string  `json:"token_id"`
	Side           string  `json:"side"`
	Condition      string  `json:"condition"`
	Threshold      float64 `json:"threshold"`
	TriggeredPrice float64 `json:"triggered_price"`
	TriggeredAt    string  `json:"triggered_at"`
}

// AlertService holds the price alert table and evaluates it against incoming
// price ticks. Alerts are process-local; they do not survive a restart.
type AlertService struct {
	mu     sync.Mutex
	alerts map[string][]*domain.PriceAlert // token_id -> alerts

	sink   AlertSink
	bus    domain.SignalBus
	logger *slog.Logger
	now    func() time.Time
}

// NewAlertService creates an empty alert table.
func NewAlertService(sink AlertSink, bus domain.SignalBus, logger *slog.Logger) *AlertService {
	return &AlertService{
		alerts: make(map[string][]*domain.PriceAlert),
		sink:   sink,
		bus:    bus,
		logger: logger.With(slog.String("component", "alerts")),
		now:    time.Now,
	}
}

// CreateAlert registers a new alert. A missing alert id is generated. Alerts
// are always created armed.
func (s *AlertService) CreateAlert(tokenID string, side domain.AlertSide, condition domain.AlertCondition, threshold float64, webhookURL, alertID string) domain.PriceAlert {
	if alertID == "" {
		alertID = "alert_" + uuid.New().String()
	}

	alert := domain.PriceAlert{
		AlertID:    alertID,
		TokenID:    tokenID,
		Side:       side,
		Condition:  condition,
		Threshold:  threshold,
		WebhookURL: webhookURL,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}

	s.mu.Lock()
	s.alerts[tokenID] = append(s.alerts[tokenID], &alert)
	s.mu.Unlock()

	s.logger.Info("alert created",
		slog.String("alert_id", alertID),
		slog.String("token_id", tokenID),
		slog.String("condition", string(condition)),
		slog.Float64("threshold", threshold),
	)
	return alert
}

// GetAlerts returns the alert table, excluding triggered alerts unless
// includeTriggered is set.
func (s *AlertService) GetAlerts(includeTriggered bool) []domain.PriceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PriceAlert
	for _, bucket := range s.alerts {
		for _, a := range bucket {
			if a.Triggered && !includeTriggered {
				continue
			}
			out = append(out, *a)
		}
	}
	return out
}

// WatchedTokens returns the token ids that currently have at least one armed
// alert. The price watcher polls prices for exactly this set.
func (s *AlertService) WatchedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []string
	for tokenID, bucket := range s.alerts {
		for _, a := range bucket {
			if a.Active && !a.Triggered {
				tokens = append(tokens, tokenID)
				break
			}
		}
	}
	return tokens
}

// DeleteAlert removes an alert by id and reports whether it existed.
func (s *AlertService) DeleteAlert(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tokenID, bucket := range s.alerts {
		for i, a := range bucket {
			if a.AlertID == alertID {
				s.alerts[tokenID] = append(bucket[:i], bucket[i+1:]...)
				s.logger.Info("alert deleted", slog.String("alert_id", alertID))
				return true
			}
		}
	}
	return false
}

// CheckAlerts evaluates every armed alert on tokenID against currentPrice and
// returns the alerts that fired. Each alert fires at most once: the triggered
// latch never re-arms.
//
// crosses_above and crosses_below alerts never fire here; evaluating them
// correctly needs a remembered previous price per alert, which this table
// does not keep.
func (s *AlertService) CheckAlerts(ctx context.Context, currentPrice float64, tokenID string) []domain.PriceAlert {
	s.mu.Lock()

	var triggered []domain.PriceAlert
	for _, a := range s.alerts[tokenID] {
		if a.Triggered || !a.Active {
			continue
		}

		fire := false
		switch a.Condition {
		case domain.AlertAbove:
			fire = currentPrice >= a.Threshold
		case domain.AlertBelow:
			fire = currentPrice <= a.Threshold
		}
		if !fire {
			continue
		}

		now := s.now().UTC()
		a.Triggered = true
		a.TriggeredAt = &now
		a.TriggerPrice = currentPrice
		triggered = append(triggered, *a)
	}
	s.mu.Unlock()

	for _, a := range triggered {
		s.logger.Info("alert triggered",
			slog.String("alert_id", a.AlertID),
			slog.String("token_id", a.TokenID),
			slog.Float64("threshold", a.Threshold),
			slog.Float64("price", currentPrice),
		)

		if payload, err := json.Marshal(map[string]any{
			"event":         "alert_triggered",
			"alert_id":      a.AlertID,
			"token_id":      a.TokenID,
			"trigger_price": a.TriggerPrice,
		}); err == nil {
			if pubErr := s.bus.Publish(ctx, "alerts", payload); pubErr != nil {
				s.logger.Warn("publish alert event failed",
					slog.String("alert_id", a.AlertID),
					slog.String("error", pubErr.Error()),
				)
			}
		}

		if a.WebhookURL != "" && s.sink != nil {
			notification := AlertNotification{
				AlertID:        a.AlertID,
				TokenID:        a.TokenID,
				Side:           string(a.Side),
				Condition:      string(a.Condition),
				Threshold:      a.Threshold,
				TriggeredPrice: a.TriggerPrice,
				TriggeredAt:    a.TriggeredAt.Format(time.RFC3339),
			}
			if err := s.sink.Send(ctx, a.WebhookURL, notification); err != nil {
				s.logger.Error("alert webhook delivery failed",
					slog.String("alert_id", a.AlertID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return triggered
}
