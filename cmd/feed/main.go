package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"market-metrics-lab/internal/backtest"
	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/config"
	"market-metrics-lab/internal/livefeed"
	"market-metrics-lab/internal/logging"
	"market-metrics-lab/internal/marketdata"
	"market-metrics-lab/internal/observability"
	"market-metrics-lab/internal/processor"
	"market-metrics-lab/internal/storage"
	chstore "market-metrics-lab/internal/storage/clickhouse"
	"market-metrics-lab/internal/storage/memory"
	"market-metrics-lab/internal/storage/migrations"
	pgstore "market-metrics-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Run file (YAML); supplies the symbols, metric graph and storage backend")
	endpoint := flag.String("endpoint", "", "Websocket bar feed endpoint")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	dev := flag.Bool("dev", false, "Console log encoder with colored levels")
	flag.Parse()

	// DSNs come from the environment; a local .env is optional.
	_ = godotenv.Load()

	if *configPath == "" || *endpoint == "" {
		fmt.Fprintln(os.Stderr, "--config and --endpoint are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Info("starting metrics server", zap.String("addr", *metricsAddr))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = runFeed(ctx, logger, cfg, *endpoint)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("feed failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func runFeed(ctx context.Context, logger *zap.Logger, cfg *config.Config, endpoint string) error {
	bars, progress, cleanup, err := openStores(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	syms := cfg.SymbolIDs()

	clk := clock.New()
	mgr := marketdata.NewManager(clk, bars)
	for _, sym := range syms {
		if err := mgr.Subscribe(sym); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}

	containers, err := backtest.BuildGraph(clk, mgr, syms, cfg.MetricSpecs())
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	proc := processor.New(clk, mgr, containers...)

	obs := observability.NewMetrics("", nil)

	consumer := livefeed.NewConsumer(cfg.Frequency, bars, progress, proc, obs, logger)
	if err := consumer.Restore(ctx, syms); err != nil {
		return err
	}

	clientCfg := livefeed.DefaultConfig()
	clientCfg.OnReconnect = obs.FeedReconnects.Inc
	client, err := livefeed.NewClient(ctx, endpoint, &clientCfg, logger)
	if err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}
	defer client.Close()

	for _, sym := range syms {
		if err := client.Subscribe(sym); err != nil {
			return fmt.Errorf("subscribe feed stream %s: %w", sym, err)
		}
	}

	logger.Info("consuming live bars",
		zap.String("endpoint", endpoint),
		zap.Int("symbols", len(syms)),
		zap.Int("frequency_seconds", cfg.Frequency),
	)

	return consumer.Run(ctx, client.Bars())
}

// openStores selects the configured backend. Feed checkpoints live in
// Postgres or memory; the ClickHouse backend keeps them in memory, so a
// restart relies on duplicate-insert skips instead of checkpoints.
func openStores(ctx context.Context, logger *zap.Logger, cfg *config.Config) (storage.BarStore, storage.FeedProgressStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		dsn := os.Getenv(cfg.Storage.PostgresDSNEnv)
		if dsn == "" {
			return nil, nil, nil, fmt.Errorf("env %s is empty", cfg.Storage.PostgresDSNEnv)
		}
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info("using postgres bar and progress stores")
		return pgstore.NewBarStore(pool), pgstore.NewFeedProgressStore(pool), pool.Close, nil

	case config.BackendClickHouse:
		dsn := os.Getenv(cfg.Storage.ClickHouseDSNEnv)
		if dsn == "" {
			return nil, nil, nil, fmt.Errorf("env %s is empty", cfg.Storage.ClickHouseDSNEnv)
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("using clickhouse bar store")
		cleanup := func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse connection", zap.Error(err))
			}
		}
		return chstore.NewBarStore(conn), memory.NewFeedProgressStore(), cleanup, nil

	default:
		return memory.NewBarStore(), memory.NewFeedProgressStore(), func() {}, nil
	}
}
