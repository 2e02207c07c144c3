package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbagent/internal/arbitrage"
	s3blob "github.com/alanyoungcy/arbagent/internal/blob/s3"
	"github.com/alanyoungcy/arbagent/internal/cache/redis"
	"github.com/alanyoungcy/arbagent/internal/chain"
	"github.com/alanyoungcy/arbagent/internal/config"
	"github.com/alanyoungcy/arbagent/internal/crypto"
	"github.com/alanyoungcy/arbagent/internal/domain"
	"github.com/alanyoungcy/arbagent/internal/executor"
	"github.com/alanyoungcy/arbagent/internal/feed"
	"github.com/alanyoungcy/arbagent/internal/inference"
	"github.com/alanyoungcy/arbagent/internal/notify"
	"github.com/alanyoungcy/arbagent/internal/server/handler"
	"github.com/alanyoungcy/arbagent/internal/server/ws"
	"github.com/alanyoungcy/arbagent/internal/service"
	"github.com/alanyoungcy/arbagent/internal/store/postgres"
)

// Dependencies bundles every component the modes run. It is constructed by
// Wire and torn down by the returned cleanup function. Redis and Postgres
// backed fields are nil when those backends are not configured.
type Dependencies struct {
	Wallet   *crypto.Wallet
	Contract *chain.TradingContract
	Broker   *inference.Broker
	Plans    *s3blob.ContentStore
	Prices   *feed.Aggregator
	Scanner  *arbitrage.Scanner
	Pipeline *executor.Pipeline

	ScannerService *service.ScannerService
	Hub            *ws.Hub

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Stores
	ExecutionStore domain.ExecutionStore
	AuditStore     domain.AuditStore

	Notifier *notify.Notifier

	// HealthChecks ping each external backend for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(step string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", step, err)
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- Wallet + chain ---
	wallet, err := crypto.LoadWallet(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fail("wallet", err)
	}
	deps.Wallet = wallet

	contract, closeRPC, err := chain.Dial(ctx, cfg.Chain.RPCURL, chain.Config{
		Contract:       cfg.Chain.TradingContract,
		ChainID:        cfg.Chain.ChainID,
		GasLimit:       cfg.Chain.GasLimit,
		ConfirmTimeout: cfg.Chain.ConfirmTimeout.Duration,
		PollInterval:   cfg.Chain.PollInterval.Duration,
	}, wallet.PrivateKey(), logger)
	if err != nil {
		return fail("chain", err)
	}
	closers = append(closers, closeRPC)
	deps.Contract = contract

	// --- Inference ---
	deps.Broker = inference.NewBroker(inference.Config{
		BaseURL:     cfg.Inference.BaseURL,
		APIKey:      cfg.Inference.APIKey,
		Model:       cfg.Inference.DefaultModel,
		Provider:    cfg.Inference.Provider,
		MaxTokens:   cfg.Inference.MaxTokens,
		Temperature: cfg.Inference.Temperature,
		Timeout:     cfg.Inference.Timeout.Duration,
	}, logger)

	// --- S3 plan storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.Storage.Endpoint,
		Region:         cfg.Storage.Region,
		Bucket:         cfg.Storage.Bucket,
		AccessKey:      cfg.Storage.AccessKey,
		SecretKey:      cfg.Storage.SecretKey,
		UseSSL:         cfg.Storage.UseSSL,
		ForcePathStyle: cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		return fail("s3", err)
	}
	deps.Plans = s3blob.NewContentStore(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.Storage.Prefix, logger)
	deps.HealthChecks["s3"] = s3Client.Health

	// --- Redis (optional) ---
	var quotes domain.QuoteCache
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
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		quotes = redis.NewQuoteCache(redisClient, 0)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.HealthChecks["redis"] = redisClient.Health
	} else {
		logger.InfoContext(ctx, "redis not configured: quote cache, rate limit and scanner lock disabled")
	}

	// --- PostgreSQL (optional) ---
	if cfg.Postgres.Enabled() {
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
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.ExecutionStore = postgres.NewExecutionStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.HealthChecks["postgres"] = pgClient.Health
	}

	// --- Event fan-out ---
	// With Redis the bus carries events and the hub relays it; without Redis
	// the hub is the publisher.
	deps.Hub = ws.NewHub(deps.SignalBus, cfg.Server.CORSOrigins, logger)
	var bus domain.Publisher = deps.Hub
	if deps.SignalBus != nil {
		bus = deps.SignalBus
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(
		notify.Senders(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, cfg.Notify.DiscordWebhookURL),
		cfg.Notify.Events,
		logger,
	)

	// --- Feeds, scanner, pipeline ---
	deps.Prices = feed.NewAggregator(feed.Config{
		BinanceURL:   cfg.Feeds.BinanceURL,
		CoinbaseURL:  cfg.Feeds.CoinbaseURL,
		CoingeckoURL: cfg.Feeds.CoingeckoURL,
		Timeout:      cfg.Feeds.Timeout.Duration,
	}, quotes, logger)
	deps.Scanner = arbitrage.NewScanner(deps.Prices, logger)

	deps.Pipeline = executor.NewPipeline(executor.Deps{
		Scanner:    deps.Scanner,
		Broker:     deps.Broker,
		Store:      deps.Plans,
		Contract:   deps.Contract,
		Bus:        bus,
		Executions: deps.ExecutionStore,
		Audit:      deps.AuditStore,
		Notifier:   deps.Notifier,
	}, executor.Config{
		ArbAssetAddress: cfg.Chain.ArbAssetAddress,
		SkipProof:       !cfg.Inference.GenerateProof,
	}, logger)

	deps.ScannerService = service.NewScannerService(service.ScannerDeps{
		Scanner:  deps.Scanner,
		Executor: deps.Pipeline,
		Recent:   service.NewRecentLog(service.DefaultRecentCapacity),
		Lock:     deps.LockManager,
		Bus:      bus,
		Notifier: deps.Notifier,
	}, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("wallet", wallet.Address().Hex()),
		slog.String("contract", cfg.Chain.TradingContract),
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("postgres", deps.ExecutionStore != nil),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)
	return deps, cleanup, nil
}
