package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openclaw/polygate/internal/monitor"
	"github.com/openclaw/polygate/internal/notify"
	"github.com/openclaw/polygate/internal/server"
	"github.com/openclaw/polygate/internal/server/handler"
	"github.com/openclaw/polygate/internal/server/ws"
)

// notifyChannels are the bus channels relayed to notification senders.
var notifyChannels = []string{"orders", "alerts"}

// ServerMode runs the HTTP API, the WebSocket hub, and the notification
// relay. No background polling happens; order state changes only through the
// API and the webhook intake.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(deps)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, hub, true)
	a.startNotifyRelay(ctx, g, deps)
	g.Go(func() error {
		return deps.Dedup.Run(ctx)
	})

	return waitGroup(g)
}

// MonitorMode runs the background monitors (fill ingestion, price watching,
// order reconciliation, ledger archiving) plus a minimal HTTP surface with
// only the health endpoint and the WebSocket hub. No trading endpoints are
// exposed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(deps)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	a.startMonitors(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, hub, false)
	a.startNotifyRelay(ctx, g, deps)

	return waitGroup(g)
}

// FullMode runs everything: the complete HTTP API, the WebSocket hub, the
// background monitors, and the notification relay.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(deps)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	a.startMonitors(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, hub, true)
	a.startNotifyRelay(ctx, g, deps)
	g.Go(func() error {
		return deps.Dedup.Run(ctx)
	})

	return waitGroup(g)
}

func (a *App) newHub(deps *Dependencies) *ws.Hub {
	return ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
}

// startHTTPServer adds the HTTP server goroutine pair to the errgroup. With
// withAPI false only the health endpoint and the WebSocket hub are exposed.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	hub *ws.Hub,
	withAPI bool,
) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(time.Now().UTC()),
	}
	if withAPI {
		handlers.Webhook = handler.NewWebhookHandler(deps.SignalSvc, a.cfg.Server.WebhookSecret, a.logger)
		handlers.Orders = handler.NewOrderHandler(deps.OrderSvc, a.logger)
		handlers.Limits = handler.NewLimitsHandler(deps.Risk, a.logger)
		handlers.Alerts = handler.NewAlertHandler(deps.AlertSvc, a.logger)
		handlers.Markets = handler.NewMarketHandler(deps.MarketSvc, a.logger)
		handlers.Wallet = handler.NewWalletHandler(deps.Wallet, a.logger)
		handlers.Positions = handler.NewPositionHandler(deps.Data, deps.Wallet.Address(), a.logger)
	}

	srv := server.New(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		RatePerMinute: a.cfg.Server.RatePerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startMonitors adds the background polling loops to the errgroup. The
// monitors share the risk engine's trade recording so backfilled fills
// invalidate the daily usage snapshot like synchronous trades do.
func (a *App) startMonitors(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Monitor.Enabled {
		a.logger.InfoContext(ctx, "monitors disabled by config")
		return
	}

	fills := monitor.NewFillMonitor(
		deps.Data,
		deps.Risk,
		deps.Ledger,
		deps.Orders,
		deps.SignalBus,
		deps.Wallet.Address(),
		a.cfg.Monitor.FetchInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return fills.Run(ctx)
	})

	watcher := monitor.NewPriceWatcher(
		deps.Clob,
		deps.PriceCache,
		deps.AlertSvc,
		a.cfg.Monitor.PriceInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	reconciler := monitor.NewReconciler(deps.OrderSvc, a.cfg.Monitor.ReconcileEvery.Duration, a.logger)
	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}
}

// startNotifyRelay forwards order and alert bus events to the configured
// notification senders so operators hear about activity without a dashboard.
func (a *App) startNotifyRelay(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}

	for _, channel := range notifyChannels {
		channel := channel
		g.Go(func() error {
			msgCh, err := deps.SignalBus.Subscribe(ctx, channel)
			if err != nil {
				a.logger.WarnContext(ctx, "notify relay: subscribe failed",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				return nil
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case data, ok := <-msgCh:
					if !ok {
						return nil
					}
					a.relayEvent(ctx, deps.Notifier, data)
				}
			}
		})
	}
}

func (a *App) relayEvent(ctx context.Context, notifier *notify.Notifier, data []byte) {
	var evt struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &evt); err != nil || evt.Event == "" {
		return
	}

	title := fmt.Sprintf("polygate: %s", evt.Event)
	if err := notifier.Notify(ctx, evt.Event, title, string(data)); err != nil {
		a.logger.WarnContext(ctx, "notify relay: dispatch failed",
			slog.String("event", evt.Event),
			slog.String("error", err.Error()),
		)
	}
}

// waitGroup treats cancellation as a clean shutdown.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
