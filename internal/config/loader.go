package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYGATE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYGATE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYGATE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYGATE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYGATE_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.RPCURL, "POLYGATE_WALLET_RPC_URL")
	setStr(&cfg.Wallet.USDCAddress, "POLYGATE_WALLET_USDC_ADDRESS")
	setStr(&cfg.Wallet.ExchangeAddress, "POLYGATE_WALLET_EXCHANGE_ADDRESS")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYGATE_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYGATE_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYGATE_POLYMARKET_DATA_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYGATE_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.ApiKey, "POLYGATE_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "POLYGATE_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "POLYGATE_POLYMARKET_API_PASSPHRASE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "POLYGATE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "POLYGATE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POLYGATE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POLYGATE_DATABASE_NAME")
	setStr(&cfg.Database.User, "POLYGATE_DATABASE_USER")
	setStr(&cfg.Database.Password, "POLYGATE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POLYGATE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "POLYGATE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POLYGATE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POLYGATE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYGATE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYGATE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYGATE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYGATE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYGATE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYGATE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYGATE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYGATE_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYGATE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYGATE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYGATE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYGATE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYGATE_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "POLYGATE_S3_RETENTION_DAYS")

	// ── Limits ──
	setFloat64(&cfg.Limits.MaxTradeUSD, "POLYGATE_LIMITS_MAX_TRADE_USD")
	setFloat64(&cfg.Limits.MaxDailyUSD, "POLYGATE_LIMITS_MAX_DAILY_USD")
	setFloat64(&cfg.Limits.MaxPositionUSD, "POLYGATE_LIMITS_MAX_POSITION_USD")
	setInt(&cfg.Limits.MaxDailyTrades, "POLYGATE_LIMITS_MAX_DAILY_TRADES")
	setBool(&cfg.Limits.StrictMode, "POLYGATE_LIMITS_STRICT_MODE")

	// ── Monitor ──
	setBool(&cfg.Monitor.Enabled, "POLYGATE_MONITOR_ENABLED")
	setDuration(&cfg.Monitor.FetchInterval, "POLYGATE_MONITOR_FETCH_INTERVAL")
	setDuration(&cfg.Monitor.PriceInterval, "POLYGATE_MONITOR_PRICE_INTERVAL")
	setDuration(&cfg.Monitor.ReconcileEvery, "POLYGATE_MONITOR_RECONCILE_EVERY")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYGATE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYGATE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYGATE_SERVER_API_KEY")
	setStr(&cfg.Server.WebhookSecret, "POLYGATE_SERVER_WEBHOOK_SECRET")
	setInt(&cfg.Server.RatePerMinute, "POLYGATE_SERVER_RATE_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYGATE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYGATE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.WebhookURL, "POLYGATE_NOTIFY_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYGATE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYGATE_MODE")
	setStr(&cfg.LogLevel, "POLYGATE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
