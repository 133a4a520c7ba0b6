package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/openclaw/polygate/internal/blob/s3"
	"github.com/openclaw/polygate/internal/cache/redis"
	"github.com/openclaw/polygate/internal/config"
	"github.com/openclaw/polygate/internal/crypto"
	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/notify"
	"github.com/openclaw/polygate/internal/platform/polygon"
	"github.com/openclaw/polygate/internal/platform/polymarket"
	"github.com/openclaw/polygate/internal/risk"
	"github.com/openclaw/polygate/internal/service"
	"github.com/openclaw/polygate/internal/store/postgres"
)

// signalDedupTTL bounds how long a webhook signal id is remembered. Retries
// from upstream senders arrive within minutes, not hours.
const signalDedupTTL = 10 * time.Minute

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Orders domain.OrderStore
	Ledger domain.TradeLedger
	Audit  domain.AuditStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	SignalBus   domain.SignalBus

	// Chain and exchange clients
	Wallet *polygon.WalletClient
	Clob   *polymarket.ClobClient
	Gamma  *polymarket.GammaClient
	Data   *polymarket.DataClient

	// Core services
	Risk      *risk.Engine
	OrderSvc  *service.OrderService
	SignalSvc *service.SignalService
	MarketSvc *service.MarketService
	AlertSvc  *service.AlertService

	// Dedup backs the webhook intake; modes that serve it run its cleanup
	// loop.
	Dedup *service.Dedup

	// Archiver is nil unless object storage is configured for the mode.
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsArchive returns true for modes that run the ledger archiver.
func needsArchive(mode string) bool {
	switch mode {
	case "monitor", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Orders = postgres.NewOrderStore(pool)
	deps.Ledger = postgres.NewLedgerStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Polygon wallet ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	wallet, err := polygon.New(polygon.Config{
		RPCURL:          cfg.Wallet.RPCURL,
		PrivateKeyHex:   keyHex,
		ChainID:         int64(cfg.Polymarket.ChainID),
		USDCAddress:     cfg.Wallet.USDCAddress,
		ExchangeAddress: cfg.Wallet.ExchangeAddress,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: polygon wallet: %w", err)
	}
	closers = append(closers, wallet.Close)
	deps.Wallet = wallet

	// --- Polymarket clients ---
	var auth *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, wallet.Address(), auth)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost)

	// --- Risk engine ---
	deps.Risk = risk.NewEngine(domain.TradeLimitConfig{
		MaxTradeUSD:    cfg.Limits.MaxTradeUSD,
		MaxDailyUSD:    cfg.Limits.MaxDailyUSD,
		MaxPositionUSD: cfg.Limits.MaxPositionUSD,
		MaxDailyTrades: cfg.Limits.MaxDailyTrades,
	}, cfg.Limits.StrictMode, deps.Ledger, logger)

	// --- Services ---
	deps.OrderSvc = service.NewOrderService(
		deps.Orders,
		newClobTrading(deps.Clob),
		deps.SignalBus,
		deps.Audit,
		logger,
	)
	deps.Dedup = service.NewDedup(signalDedupTTL)
	deps.SignalSvc = service.NewSignalService(
		deps.Dedup,
		deps.Locks,
		deps.Risk,
		deps.OrderSvc,
		newWalletPositions(deps.Data, wallet.Address()),
		deps.Audit,
		wallet.Address(),
		logger,
	)
	deps.MarketSvc = service.NewMarketService(deps.Gamma, deps.Clob, deps.PriceCache, logger)
	deps.AlertSvc = service.NewAlertService(notify.NewWebhookPoster(), deps.SignalBus, logger)

	// --- S3 ledger archive (only for modes that run it) ---
	if needsArchive(cfg.Mode) && cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Ledger,
			deps.Audit,
			cfg.S3.RetentionDays,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
