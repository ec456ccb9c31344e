// Package config defines the top-level configuration for the papertrader
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PAPERTRADER_* environment
// variables.
type Config struct {
	Database Database `toml:"database"`
	Redis    Redis    `toml:"redis"`
	S3       S3       `toml:"s3"`
	Server   Server   `toml:"server"`
	Trading  Trading  `toml:"trading"`
	RiskMon  RiskMon  `toml:"riskmon"`
	Feed     Feed     `toml:"feed"`
	Archive  Archive  `toml:"archive"`
	Notify   Notify   `toml:"notify"`
	Mode     string   `toml:"mode"`
	LogLevel string   `toml:"log_level"`
}

// Database holds PostgreSQL connection parameters.
type Database struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Redis holds Redis connection parameters.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3 holds S3-compatible object storage parameters for archives.
type S3 struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Server holds HTTP server parameters. APIKeyHash, when set, takes
// precedence over APIKey and is compared with bcrypt.
type Server struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	APIKeyHash  string   `toml:"api_key_hash"`
}

// Trading holds the account-wide trading and margin parameters.
type Trading struct {
	DefaultLeverage    int      `toml:"default_leverage"`
	MarginCallLevel    float64  `toml:"margin_call_level"`
	StopOutLevel       float64  `toml:"stop_out_level"`
	StopOutInclusive   bool     `toml:"stop_out_inclusive"`
	MaxOpenPositions   int      `toml:"max_open_positions"`
	MaxHold            duration `toml:"max_hold"`
	VolatilityFactor   float64  `toml:"volatility_factor"`
	StartingBalance    float64  `toml:"starting_balance"`
	OrderRatePerSecond int      `toml:"order_rate_per_second"`
}

// RiskMon holds the portfolio risk monitoring parameters.
type RiskMon struct {
	CheckInterval  duration           `toml:"check_interval"`
	VaRConfidence  float64            `toml:"var_confidence"`
	DrawdownWindow duration           `toml:"drawdown_window"`
	StressShocks   map[string]float64 `toml:"stress_shocks"`
}

// Feed holds the simulated price feed parameters.
type Feed struct {
	Symbols      []string `toml:"symbols"`
	TickInterval duration `toml:"tick_interval"`
	Drift        float64  `toml:"drift"`
	Volatility   float64  `toml:"volatility"`
	Seed         int64    `toml:"seed"`
}

// Archive holds the data archival parameters.
type Archive struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	Cron          string   `toml:"cron"` // optional 5-field schedule; overrides interval
}

// Notify holds notification channel credentials.
type Notify struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: Database{
			Host:          "localhost",
			Port:          5432,
			Database:      "papertrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: Redis{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "papertrader-data",
			ForcePathStyle: true,
		},
		Server: Server{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Trading: Trading{
			DefaultLeverage:    100,
			MarginCallLevel:    100,
			StopOutLevel:       50,
			StopOutInclusive:   true,
			MaxOpenPositions:   20,
			MaxHold:            duration{0}, // no time-based expiry by default
			VolatilityFactor:   1.0,
			StartingBalance:    10000,
			OrderRatePerSecond: 10,
		},
		RiskMon: RiskMon{
			CheckInterval:  duration{5 * time.Second},
			VaRConfidence:  0.95,
			DrawdownWindow: duration{30 * 24 * time.Hour},
			StressShocks: map[string]float64{
				"mild_selloff": -5,
				"crash":        -15,
				"rally":        10,
			},
		},
		Feed: Feed{
			Symbols:      []string{"EUR/USD", "GBP/USD", "XAU/USD", "BTC/USD"},
			TickInterval: duration{time.Second},
			Drift:        0,
			Volatility:   0.0004,
			Seed:         0, // 0 means seed from the clock
		},
		Archive: Archive{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Notify: Notify{
			Events: []string{"margin_call", "stop_out", "position_closed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required when archival is enabled.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Trading
	if c.Trading.DefaultLeverage < 1 {
		errs = append(errs, "trading: default_leverage must be >= 1")
	}
	if c.Trading.StopOutLevel <= 0 {
		errs = append(errs, "trading: stop_out_level must be > 0")
	}
	if c.Trading.MarginCallLevel <= c.Trading.StopOutLevel {
		errs = append(errs, "trading: margin_call_level must exceed stop_out_level")
	}
	if c.Trading.MaxOpenPositions < 1 {
		errs = append(errs, "trading: max_open_positions must be >= 1")
	}
	if c.Trading.StartingBalance <= 0 {
		errs = append(errs, "trading: starting_balance must be > 0")
	}

	// Risk monitoring
	switch c.RiskMon.VaRConfidence {
	case 0.90, 0.95, 0.99:
	default:
		errs = append(errs, fmt.Sprintf("riskmon: var_confidence must be 0.90, 0.95 or 0.99, got %v", c.RiskMon.VaRConfidence))
	}
	if c.RiskMon.CheckInterval.Duration <= 0 {
		errs = append(errs, "riskmon: check_interval must be > 0")
	}

	// Feed
	if len(c.Feed.Symbols) == 0 {
		errs = append(errs, "feed: at least one symbol is required")
	}
	if c.Feed.TickInterval.Duration <= 0 {
		errs = append(errs, "feed: tick_interval must be > 0")
	}
	if c.Feed.Volatility <= 0 {
		errs = append(errs, "feed: volatility must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
