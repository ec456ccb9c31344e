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
// built-in defaults, applies PAPERTRADER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known PAPERTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PAPERTRADER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PAPERTRADER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PAPERTRADER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PAPERTRADER_DATABASE_NAME")
	setStr(&cfg.Database.User, "PAPERTRADER_DATABASE_USER")
	setStr(&cfg.Database.Password, "PAPERTRADER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PAPERTRADER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "PAPERTRADER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PAPERTRADER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PAPERTRADER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PAPERTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAPERTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAPERTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAPERTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAPERTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAPERTRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PAPERTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAPERTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAPERTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAPERTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAPERTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAPERTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAPERTRADER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAPERTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAPERTRADER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAPERTRADER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAPERTRADER_SERVER_API_KEY")
	setStr(&cfg.Server.APIKeyHash, "PAPERTRADER_SERVER_API_KEY_HASH")

	// ── Trading ──
	setInt(&cfg.Trading.DefaultLeverage, "PAPERTRADER_TRADING_DEFAULT_LEVERAGE")
	setFloat64(&cfg.Trading.MarginCallLevel, "PAPERTRADER_TRADING_MARGIN_CALL_LEVEL")
	setFloat64(&cfg.Trading.StopOutLevel, "PAPERTRADER_TRADING_STOP_OUT_LEVEL")
	setBool(&cfg.Trading.StopOutInclusive, "PAPERTRADER_TRADING_STOP_OUT_INCLUSIVE")
	setInt(&cfg.Trading.MaxOpenPositions, "PAPERTRADER_TRADING_MAX_OPEN_POSITIONS")
	setDuration(&cfg.Trading.MaxHold, "PAPERTRADER_TRADING_MAX_HOLD")
	setFloat64(&cfg.Trading.VolatilityFactor, "PAPERTRADER_TRADING_VOLATILITY_FACTOR")
	setFloat64(&cfg.Trading.StartingBalance, "PAPERTRADER_TRADING_STARTING_BALANCE")
	setInt(&cfg.Trading.OrderRatePerSecond, "PAPERTRADER_TRADING_ORDER_RATE_PER_SECOND")

	// ── Risk monitoring ──
	setDuration(&cfg.RiskMon.CheckInterval, "PAPERTRADER_RISKMON_CHECK_INTERVAL")
	setFloat64(&cfg.RiskMon.VaRConfidence, "PAPERTRADER_RISKMON_VAR_CONFIDENCE")
	setDuration(&cfg.RiskMon.DrawdownWindow, "PAPERTRADER_RISKMON_DRAWDOWN_WINDOW")

	// ── Feed ──
	setStringSlice(&cfg.Feed.Symbols, "PAPERTRADER_FEED_SYMBOLS")
	setDuration(&cfg.Feed.TickInterval, "PAPERTRADER_FEED_TICK_INTERVAL")
	setFloat64(&cfg.Feed.Drift, "PAPERTRADER_FEED_DRIFT")
	setFloat64(&cfg.Feed.Volatility, "PAPERTRADER_FEED_VOLATILITY")
	setInt64(&cfg.Feed.Seed, "PAPERTRADER_FEED_SEED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PAPERTRADER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PAPERTRADER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PAPERTRADER_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Cron, "PAPERTRADER_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAPERTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAPERTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAPERTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAPERTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAPERTRADER_MODE")
	setStr(&cfg.LogLevel, "PAPERTRADER_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
