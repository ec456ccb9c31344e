package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quillfx/papertrader/internal/blob/s3"
	cachemem "github.com/quillfx/papertrader/internal/cache/memory"
	"github.com/quillfx/papertrader/internal/cache/redis"
	"github.com/quillfx/papertrader/internal/config"
	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/notify"
	"github.com/quillfx/papertrader/internal/store/memory"
	"github.com/quillfx/papertrader/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	AccountStore   domain.AccountStore
	PositionStore  domain.PositionStore
	OrderStore     domain.OrderStore
	AssetSpecStore domain.AssetSpecStore
	LedgerStore    domain.LedgerStore
	RiskEventStore domain.RiskEventStore
	AuditStore     domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// defaultAssetSpecs seeds the in-memory spec store when no database is
// configured. The Postgres migrations seed the same instruments.
func defaultAssetSpecs() []domain.AssetSpec {
	forex := func(symbol string) domain.AssetSpec {
		return domain.AssetSpec{
			Symbol:                 symbol,
			AssetClass:             domain.AssetClassForex,
			PipSize:                0.0001,
			ContractSize:           100000,
			MaxLeverage:            500,
			MinQuantity:            1000,
			MaxQuantity:            10000000,
			CommissionRate:         0.00002,
			MaintenanceMarginRatio: 0.005,
		}
	}
	jpy := forex("USD/JPY")
	jpy.PipSize = 0.01

	return []domain.AssetSpec{
		forex("EUR/USD"),
		forex("GBP/USD"),
		jpy,
		{
			Symbol: "XAU/USD", AssetClass: domain.AssetClassMetal, PipSize: 0.01,
			ContractSize: 100, MaxLeverage: 100, MinQuantity: 1, MaxQuantity: 10000,
			CommissionRate: 0.00005, MaintenanceMarginRatio: 0.01,
		},
		{
			Symbol: "XAG/USD", AssetClass: domain.AssetClassMetal, PipSize: 0.001,
			ContractSize: 5000, MaxLeverage: 100, MinQuantity: 50, MaxQuantity: 500000,
			CommissionRate: 0.00005, MaintenanceMarginRatio: 0.01,
		},
		{
			Symbol: "US500", AssetClass: domain.AssetClassIndex, PipSize: 0.1,
			ContractSize: 10, MaxLeverage: 200, MinQuantity: 1, MaxQuantity: 100000,
			CommissionRate: 0.00003, MaintenanceMarginRatio: 0.005,
		},
		{
			Symbol: "BTC/USD", AssetClass: domain.AssetClassCrypto, PipSize: 0.01,
			ContractSize: 1, MaxLeverage: 20, MinQuantity: 0.001, MaxQuantity: 100,
			CommissionRate: 0.0005, MaintenanceMarginRatio: 0.05,
		},
		{
			Symbol: "ETH/USD", AssetClass: domain.AssetClassCrypto, PipSize: 0.01,
			ContractSize: 1, MaxLeverage: 20, MinQuantity: 0.01, MaxQuantity: 1000,
			CommissionRate: 0.0005, MaintenanceMarginRatio: 0.05,
		},
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
//
// When database.dsn/host is unset the in-memory stores are used; when
// redis.addr is unset the in-process caches are used. Both fallbacks are
// ephemeral and intended for local development.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL, or in-memory stores when unconfigured ---
	if cfg.Database.DSN != "" || cfg.Database.Host != "" {
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
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.AssetSpecStore = postgres.NewAssetSpecStore(pool)
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		deps.RiskEventStore = postgres.NewRiskEventStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		logger.Warn("wire: no database configured, using ephemeral in-memory stores")
		deps.AccountStore = memory.NewAccountStore()
		deps.PositionStore = memory.NewPositionStore()
		deps.OrderStore = memory.NewOrderStore()
		deps.AssetSpecStore = memory.NewAssetSpecStore(defaultAssetSpecs()...)
		deps.LedgerStore = memory.NewLedgerStore()
		deps.RiskEventStore = memory.NewRiskEventStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis, or in-process caches when unconfigured ---
	if cfg.Redis.Addr != "" {
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
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		logger.Warn("wire: no redis configured, using in-process caches")
		deps.PriceCache = cachemem.NewPriceCache()
		deps.RateLimiter = cachemem.NewRateLimiter()
		deps.LockManager = cachemem.NewLockManager()
		deps.SignalBus = cachemem.NewSignalBus()
	}

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.PositionStore,
			deps.OrderStore,
			deps.RiskEventStore,
			deps.AuditStore,
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
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
