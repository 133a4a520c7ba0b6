// Package server assembles the gateway's HTTP surface: REST routes,
// middleware chain, and the WebSocket endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/server/handler"
	"github.com/openclaw/polygate/internal/server/middleware"
	"github.com/openclaw/polygate/internal/server/ws"
)

// Config holds the HTTP server parameters.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // empty disables authentication
	RatePerMinute int    // zero disables rate limiting
}

// Handlers aggregates the REST handlers the server registers. Nil handlers
// skip their routes, so partial wirings (monitor mode) still serve health.
type Handlers struct {
	Health    *handler.HealthHandler
	Webhook   *handler.WebhookHandler
	Orders    *handler.OrderHandler
	Limits    *handler.LimitsHandler
	Alerts    *handler.AlertHandler
	Markets   *handler.MarketHandler
	Wallet    *handler.WalletHandler
	Positions *handler.PositionHandler
}

// Server is the gateway's HTTP and WebSocket front end.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered and the middleware chain
// applied: CORS, then logging, then rate limiting, then auth. The health
// endpoint and the webhook intake sit outside the API-key check; the webhook
// authenticates with its own HMAC signature.
func New(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	open := http.NewServeMux()
	if handlers.Health != nil {
		open.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Webhook != nil {
		open.HandleFunc("POST /api/webhook/claw", handlers.Webhook.HandleSignal)
	}

	api := http.NewServeMux()
	if handlers.Orders != nil {
		api.HandleFunc("POST /api/orders", handlers.Orders.CreateOrder)
		api.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
		api.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
		api.HandleFunc("POST /api/orders/{id}/reconcile", handlers.Orders.ReconcileOrder)
		api.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)
		api.HandleFunc("DELETE /api/orders", handlers.Orders.CancelAll)
	}
	if handlers.Limits != nil {
		api.HandleFunc("GET /api/limits", handlers.Limits.GetLimits)
		api.HandleFunc("GET /api/limits/check", handlers.Limits.CheckLimits)
		api.HandleFunc("GET /api/limits/usage", handlers.Limits.GetUsage)
	}
	if handlers.Alerts != nil {
		api.HandleFunc("POST /api/alerts", handlers.Alerts.CreateAlert)
		api.HandleFunc("GET /api/alerts", handlers.Alerts.ListAlerts)
		api.HandleFunc("DELETE /api/alerts/{id}", handlers.Alerts.DeleteAlert)
	}
	if handlers.Markets != nil {
		api.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
		api.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
		api.HandleFunc("GET /api/price/{token_id}", handlers.Markets.GetPrice)
		api.HandleFunc("GET /api/book/{token_id}", handlers.Markets.GetBook)
	}
	if handlers.Wallet != nil {
		api.HandleFunc("GET /api/wallet/balance", handlers.Wallet.GetBalance)
		api.HandleFunc("GET /api/wallet/allowance", handlers.Wallet.GetAllowance)
		api.HandleFunc("POST /api/wallet/approve", handlers.Wallet.Approve)
	}
	if handlers.Positions != nil {
		api.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	}
	if hub != nil {
		api.HandleFunc("GET /ws", hub.HandleWS)
	}

	// Authenticated API behind the key check; open routes in front of it.
	var protected http.Handler = api
	protected = middleware.Auth(cfg.APIKey)(protected)

	root := http.NewServeMux()
	root.Handle("/api/health", open)
	root.Handle("/api/webhook/", open)
	root.Handle("/", protected)

	var h http.Handler = root
	if limiter != nil && cfg.RatePerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RatePerMinute, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
