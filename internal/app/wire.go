package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/perpbot/internal/blob/s3"
	"github.com/alanyoungcy/perpbot/internal/cache/redis"
	"github.com/alanyoungcy/perpbot/internal/config"
	"github.com/alanyoungcy/perpbot/internal/crypto"
	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/executor"
	"github.com/alanyoungcy/perpbot/internal/metrics"
	"github.com/alanyoungcy/perpbot/internal/platform/okx"
	"github.com/alanyoungcy/perpbot/internal/service"
	"github.com/alanyoungcy/perpbot/internal/store/filestore"
	"github.com/alanyoungcy/perpbot/internal/store/memory"
	"github.com/alanyoungcy/perpbot/internal/store/mongodb"
	"github.com/alanyoungcy/perpbot/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	LedgerStore   domain.LedgerStore
	HistoryStore  domain.TradeHistoryStore
	DecisionStore domain.DecisionLogStore
	AuditStore    domain.AuditStore

	// Redis-backed collaborators; nil without redis.addr.
	LockManager     domain.LockManager
	RateLimiter     domain.RateLimiter
	InstrumentCache domain.InstrumentCache
	SignalBus       domain.SignalBus

	// Archiver is nil without s3.bucket.
	Archiver domain.Archiver

	Venue    *okx.Client
	Ledger   *service.LedgerService // simulated mode only
	Engine   service.Engine
	Governor *service.RiskGovernor
	Cycle    *service.CycleService
	Metrics  *metrics.Metrics
}

var _ service.CycleObserver = (*metrics.Metrics)(nil)

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(metrics.Config{PushURL: cfg.Metrics.PushURL, Job: cfg.Metrics.Job}, logger),
	}

	// --- Stores ---
	closeStores, err := wireStores(ctx, cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStores)

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient, cfg.Redis.LockWait.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.InstrumentCache = redis.NewInstrumentCache(redisClient, cfg.Redis.InstrumentTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 archive (optional) ---
	if cfg.S3.Bucket != "" {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
	}

	// --- Venue ---
	creds, err := crypto.LoadCredentials(crypto.CredentialSource{
		Plain: crypto.Credentials{
			APIKey:     cfg.OKX.APIKey,
			Secret:     cfg.OKX.SecretKey,
			Passphrase: cfg.OKX.Passphrase,
		},
		File:     cfg.OKX.CredentialsFile,
		Password: cfg.OKX.CredentialsPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: okx credentials: %w", err))
	}
	deps.Venue = okx.NewClient(okx.ClientConfig{
		BaseURL:           cfg.OKX.BaseURL,
		APIKey:            creds.APIKey,
		SecretKey:         creds.Secret,
		Passphrase:        creds.Passphrase,
		Simulated:         strings.EqualFold(cfg.OKX.TradingMode, "demo"),
		Timeout:           cfg.OKX.Timeout.Duration,
		RequestsPerSecond: cfg.OKX.RequestsPerSecond,
		Burst:             cfg.OKX.Burst,
		Retry: okx.RetryConfig{
			InitialInterval: cfg.Retry.InitialBackoff.Duration,
			MaxInterval:     cfg.Retry.MaxBackoff.Duration,
			Multiplier:      cfg.Retry.Multiplier,
			MaxTries:        cfg.Retry.MaxTries,
		},
		BreakerFailures: cfg.OKX.BreakerFailures,
		BreakerCooldown: cfg.OKX.BreakerCooldown.Duration,
		SharedLimit:     cfg.OKX.SharedLimit,
		SharedWindow:    cfg.OKX.SharedWindow.Duration,
	}, logger)
	if deps.RateLimiter != nil && cfg.OKX.SharedLimit > 0 {
		deps.Venue.SetSharedLimiter(deps.RateLimiter)
	}

	// --- Engine ---
	execCfg := executorConfig(cfg)
	book := executor.NewInstrumentBook(deps.Venue, deps.InstrumentCache, logger)
	if cfg.Simulated() {
		deps.Ledger = service.NewLedgerService(deps.LedgerStore, deps.HistoryStore, service.LedgerConfig{
			InitialEquity:    cfg.Execution.InitialEquity,
			LockTTL:          cfg.Redis.LockTTL.Duration,
			HistoryRetention: cfg.History.Retention,
			SettlementStream: service.DefaultLedgerConfig().SettlementStream,
		}, logger)
		if deps.LockManager != nil {
			deps.Ledger.SetLockManager(deps.LockManager)
		}
		if deps.SignalBus != nil {
			deps.Ledger.SetSignalBus(deps.SignalBus)
		}
		if deps.AuditStore != nil {
			deps.Ledger.SetAudit(deps.AuditStore)
		}
		if deps.Archiver != nil {
			deps.Ledger.SetArchiver(deps.Archiver)
		}
		deps.Engine = executor.NewSimulatedEngine(deps.Venue, book, deps.Ledger, execCfg, logger)
	} else {
		if !deps.Venue.HasCredentials() {
			return fail(fmt.Errorf("wire: live execution: %w", domain.ErrMissingCredentials))
		}
		deps.Engine = executor.NewLiveEngine(deps.Venue, book, execCfg, logger)
	}

	// --- Governor and cycle ---
	deps.Governor = service.NewRiskGovernor(deps.Engine, riskConfig(cfg), logger)
	deps.Cycle = service.NewCycleService(deps.Governor, deps.Engine, deps.DecisionStore, service.CycleConfig{
		DecisionLogKeep: cfg.History.DecisionLogKeep,
	}, logger)
	deps.Cycle.SetObserver(deps.Metrics)

	logger.InfoContext(ctx, "wire: dependencies ready",
		slog.String("execution_mode", string(deps.Engine.Mode())),
		slog.String("store", cfg.Store.Backend),
		slog.Bool("redis", cfg.Redis.Addr != ""),
		slog.Bool("archive", deps.Archiver != nil),
	)
	return deps, cleanup, nil
}

// wireStores fills the four stores for the configured backend and returns
// the function that closes its connection.
func wireStores(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (func(), error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				pgClient.Close()
				return nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		pool := pgClient.Pool()
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		deps.HistoryStore = postgres.NewTradeHistoryStore(pool)
		deps.DecisionStore = postgres.NewDecisionLogStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		return pgClient.Close, nil

	case "mongo":
		mc, err := mongodb.New(ctx, mongodb.ClientConfig{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: cfg.Mongo.ConnectTimeout.Duration,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
			Observe:        deps.Metrics.ObserveStoreCommand,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: mongo: %w", err)
		}
		closeMongo := func() {
			if err := mc.Close(); err != nil {
				logger.Warn("wire: mongo disconnect failed", slog.String("error", err.Error()))
			}
		}
		if err := mc.EnsureIndexes(ctx); err != nil {
			closeMongo()
			return nil, fmt.Errorf("wire: mongo indexes: %w", err)
		}
		db := mc.Database()
		deps.LedgerStore = mongodb.NewLedgerStore(db)
		deps.HistoryStore = mongodb.NewTradeHistoryStore(db)
		deps.DecisionStore = mongodb.NewDecisionLogStore(db)
		deps.AuditStore = mongodb.NewAuditStore(db)
		return closeMongo, nil

	case "file":
		fc, err := filestore.New(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
		deps.LedgerStore = filestore.NewLedgerStore(fc)
		deps.HistoryStore = filestore.NewTradeHistoryStore(fc)
		deps.DecisionStore = filestore.NewDecisionLogStore(fc)
		deps.AuditStore = filestore.NewAuditStore(fc)
		logger.Info("wire: file store ready", slog.String("dir", fc.Dir()))
		return func() {}, nil

	default:
		if cfg.Simulated() {
			logger.Warn("wire: memory store keeps the simulated ledger for this process only")
		}
		deps.LedgerStore = memory.NewLedgerStore()
		deps.HistoryStore = memory.NewTradeHistoryStore()
		deps.DecisionStore = memory.NewDecisionLogStore()
		deps.AuditStore = memory.NewAuditStore()
		return func() {}, nil
	}
}

func executorConfig(cfg *config.Config) executor.Config {
	ec := executor.DefaultConfig()
	ec.QuoteCurrency = cfg.Execution.QuoteCurrency
	ec.MarginMode = strings.ToLower(cfg.Execution.MarginMode)
	ec.Majors = cfg.Execution.Majors
	ec.SlippageMajor = cfg.Execution.SlippageMajor
	ec.SlippageOther = cfg.Execution.SlippageOther
	ec.Sizing = executor.SizingConfig{
		RoundUpMinNotional: cfg.Execution.RoundUpMinNotional,
		RoundUpEquityPct:   cfg.Execution.RoundUpEquityPct,
	}
	ec.FeeBps = cfg.Execution.FeeBps
	ec.PartialCloses = cfg.Execution.PartialCloses
	return ec
}

func riskConfig(cfg *config.Config) service.RiskConfig {
	r := cfg.Risk
	return service.RiskConfig{
		Bull:               service.ExposureCaps{Long: r.Bull.Long, Short: r.Bull.Short},
		Bear:               service.ExposureCaps{Long: r.Bear.Long, Short: r.Bear.Short},
		Neutral:            service.ExposureCaps{Long: r.Neutral.Long, Short: r.Neutral.Short},
		MaxLeverage:        r.MaxLeverage,
		ExtremeMaxLeverage: r.ExtremeMaxLeverage,
		FearLow:            r.FearLow,
		FearHigh:           r.FearHigh,
		MinOrderUSD:        r.MinOrderUSD,
		Tolerance:          r.Tolerance,
		MaxPositions:       r.MaxPositions,
		DefaultStopLossPct: r.DefaultStopLossPct,
	}
}
