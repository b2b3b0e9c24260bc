package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/presale/service/balance"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/config"
	"github.com/brojonat/presale/service/db"
	"github.com/brojonat/presale/service/evm"
	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/retry"
	"github.com/brojonat/presale/service/server"
	"github.com/brojonat/presale/service/solana"
	"github.com/brojonat/presale/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"testnet", cfg.Testnet,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := cfg.Registry()
	if err != nil {
		logger.Error("invalid network overrides", "error", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	opts := []server.Option{server.WithMetrics(metricsCollector)}

	// The purchase ledger is optional
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		store := db.NewStore(dbPool).WithMetrics(metricsCollector)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		opts = append(opts, server.WithStore(store))
	} else {
		logger.Warn("DATABASE_URL not set, purchase ledger disabled")
	}

	// Live balance reads back /raised until the worker records a snapshot.
	// One attempt per poll keeps a request from hanging on a flaky RPC.
	oracle := newOracle(registry, metricsCollector, logger)
	opts = append(opts, server.WithOracle(oracle))

	if cfg.NATSURL != "" {
		events, err := server.NewEventStream(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect event stream", "error", err)
			os.Exit(1)
		}
		defer events.Close()
		opts = append(opts, server.WithEvents(events))
	} else {
		logger.Warn("NATS_URL not set, streaming disabled")
	}

	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		// the API still serves quotes without temporal
		logger.Warn("temporal unavailable, manual raised refresh disabled", "error", err)
	} else {
		defer temporalClient.Close()
		opts = append(opts, server.WithPollTrigger(temporalClient))
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, registry, logger, opts...)

	logger.Info("server initialized, all dependencies ready",
		"networks", len(registry.Networks(cfg.Testnet)),
		"presale_start", cfg.PresaleStart.Format(time.RFC3339),
		"presale_days", cfg.PresaleDurationDays,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

func newOracle(registry *chains.Registry, m *metrics.Metrics, logger *slog.Logger) *balance.Oracle {
	once := retry.Policy{MaxAttempts: 1}
	pool := solana.NewPool(once, m, logger)
	solanaReader := balance.SolanaReader{
		For: func(n chains.NetworkInfo) (balance.SolanaBalancer, error) {
			return pool.For(string(n.Key), n.RPCURLs)
		},
	}
	return balance.NewOracle(registry, evm.NewBalanceReader(evm.DialEthClient, m, logger), solanaReader, once, m, logger)
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
