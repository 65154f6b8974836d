package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/internal/engine"
	"github.com/BytebleCode/Investment-Platform/internal/handler"
	"github.com/BytebleCode/Investment-Platform/internal/ledger"
	"github.com/BytebleCode/Investment-Platform/internal/portfolio"
	"github.com/BytebleCode/Investment-Platform/internal/quotes"
	"github.com/BytebleCode/Investment-Platform/internal/strategy"
	"github.com/BytebleCode/Investment-Platform/pkg/alpaca"
	"github.com/BytebleCode/Investment-Platform/pkg/config"
	"github.com/BytebleCode/Investment-Platform/pkg/database"
	"github.com/BytebleCode/Investment-Platform/pkg/events"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
	"github.com/BytebleCode/Investment-Platform/pkg/middleware"
	"github.com/BytebleCode/Investment-Platform/pkg/response"
	"github.com/BytebleCode/Investment-Platform/pkg/telemetry"
)

const serviceName = "portfolio-engine"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("config")
	if err != nil {
		logger.Init(serviceName, "info", true)
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)
	logger.Info().Msg("Starting Portfolio Engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, &telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		CollectorURL: cfg.Telemetry.CollectorURL,
		Exporter:     cfg.Telemetry.Exporter,
		Environment:  cfg.Telemetry.Environment,
		Version:      version,
		SampleRatio:  cfg.Telemetry.SampleRatio,
		Enabled:      cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer tp.Shutdown(context.Background())

	catalog, err := strategy.LoadFile(cfg.Catalog.File)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load strategy catalog")
	}

	engCfg, taxRate, defaults, err := engineSettings(cfg, catalog)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid engine settings")
	}

	// Storage
	var (
		store       ledger.Ledger
		customStore strategy.Store
	)
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := database.NewPool(ctx, &database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, ledger.Schema, strategy.Schema); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
		go database.ReportPoolStats(ctx, pool, serviceName, 15*time.Second)
		logger.Info().Msg("Connected to database")

		store = ledger.NewPostgresStore(pool, defaults, serviceName)
		customStore = strategy.NewPostgresStore(pool, serviceName)
	default:
		logger.Warn().Msg("Using in-memory storage; state is lost on restart")
		store = ledger.NewMemoryStore(defaults)
		customStore = strategy.NewMemoryStore()
	}

	// Redis
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, caches will fall through")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Connected to Redis")
		}
		customStore = strategy.NewRedisCache(rdb, customStore, 5*time.Minute)
	}

	// Kafka
	var publisher events.Publisher
	kafkaEnabled := len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Brokers[0] != ""
	if kafkaEnabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, serviceName)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Connected to Kafka")
	} else {
		logger.Warn().Msg("Kafka not configured, events are kept in memory")
		publisher = events.NewRecorder(1000)
	}
	defer publisher.Close()

	// Quotes
	defDef, _ := catalog.Definition(defaults.Strategy)
	sim := quotes.NewSimulator(catalog, quotes.ProfileOf(defDef), cfg.Quotes.Seed)
	var primary quotes.Source = sim
	if cfg.Quotes.Provider == "alpaca" {
		if cfg.Quotes.AlpacaAPIKey == "" {
			logger.Warn().Msg("Using mock Alpaca client (no API key configured)")
			primary = quotes.NewAlpacaSource(alpaca.NewMockClient())
		} else {
			primary = quotes.NewAlpacaSource(alpaca.NewClient(alpaca.Config{
				APIKey:    cfg.Quotes.AlpacaAPIKey,
				SecretKey: cfg.Quotes.AlpacaSecretKey,
				Feed:      cfg.Quotes.AlpacaFeed,
			}))
			logger.Info().Str("feed", cfg.Quotes.AlpacaFeed).Msg("Using Alpaca market data")
		}
	}
	if rdb != nil {
		primary = quotes.NewRedisCache(rdb, primary, cfg.Quotes.CacheTTL)
	}

	chain := []quotes.Source{primary}
	if cfg.Quotes.Provider == "alpaca" {
		chain = append(chain, sim)
	}
	if cfg.Quotes.Stream && kafkaEnabled {
		stream := quotes.NewStreamCache(2 * cfg.Quotes.CacheTTL)
		sub := events.NewKafkaSubscriber(cfg.Kafka.Brokers, cfg.Kafka.GroupID, serviceName)
		defer sub.Close()
		if err := stream.Subscribe(ctx, sub); err != nil {
			logger.Fatal().Err(err).Msg("Failed to subscribe to price updates")
		}
		chain = append([]quotes.Source{stream}, chain...)

		feed := quotes.NewFeed(primary, publisher, catalog.Symbols(), cfg.Quotes.CacheTTL, serviceName)
		go feed.Run(ctx)
		logger.Info().Msg("Streaming prices over Kafka")
	}
	source := quotes.NewFallback(chain...)

	svc := portfolio.New(portfolio.Deps{
		Ledger:         store,
		Catalog:        catalog,
		Customizations: strategy.NewCustomizations(catalog, customStore),
		Engine:         engine.New(engCfg),
		Quotes:         source,
		Publisher:      publisher,
	}, portfolio.Config{Service: serviceName, TaxRate: taxRate})

	var schedulerDone chan struct{}
	if cfg.AutoTrade.Enabled {
		schedulerDone = make(chan struct{})
		scheduler := portfolio.NewScheduler(svc, cfg.AutoTrade.Accounts)
		go func() {
			defer close(schedulerDone)
			scheduler.Run(ctx)
		}()
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Portfolio Engine",
		ErrorHandler: response.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(telemetry.Middleware(serviceName))
	app.Use(middleware.Logger())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CORS(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSOrigins}))
	app.Use(metrics.Middleware(metrics.Config{
		ServiceName: serviceName,
		SkipPaths:   []string{"/health", "/metrics"},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": serviceName})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api/v1", middleware.RateLimiter(middleware.RateLimitConfig{
		Max:      cfg.Server.RateLimit,
		Duration: time.Minute,
	}))
	handler.NewHandler(svc).Register(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Portfolio Engine started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down Portfolio Engine")
	cancel()
	if schedulerDone != nil {
		<-schedulerDone
	}
	if err := app.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}

func engineSettings(cfg *config.Config, catalog *strategy.Catalog) (engine.Config, decimal.Decimal, ledger.Defaults, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("engine.%s: %w", name, err)
		}
		return d, nil
	}

	var (
		ec  engine.Config
		err error
	)
	if ec.FeeRate, err = parse("fee_rate", cfg.Engine.FeeRate); err != nil {
		return ec, decimal.Zero, ledger.Defaults{}, err
	}
	if ec.BaseTolerance, err = parse("base_tolerance", cfg.Engine.BaseTolerance); err != nil {
		return ec, decimal.Zero, ledger.Defaults{}, err
	}
	if ec.MaxCashUsage, err = parse("max_cash_usage", cfg.Engine.MaxCashUsage); err != nil {
		return ec, decimal.Zero, ledger.Defaults{}, err
	}
	tax, err := parse("tax_rate", cfg.Engine.TaxRate)
	if err != nil {
		return ec, decimal.Zero, ledger.Defaults{}, err
	}
	initial, err := parse("initial_value", cfg.Engine.InitialValue)
	if err != nil {
		return ec, decimal.Zero, ledger.Defaults{}, err
	}
	if !initial.IsPositive() {
		return ec, decimal.Zero, ledger.Defaults{}, fmt.Errorf("engine.initial_value must be positive")
	}
	if !catalog.Has(cfg.Engine.DefaultStrategy) {
		return ec, decimal.Zero, ledger.Defaults{}, fmt.Errorf("engine.default_strategy %q is not in the catalog", cfg.Engine.DefaultStrategy)
	}
	return ec, tax, ledger.Defaults{InitialValue: initial.Round(2), Strategy: cfg.Engine.DefaultStrategy}, nil
}
