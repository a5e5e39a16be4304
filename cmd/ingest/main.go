package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"market-metrics-lab/internal/config"
	"market-metrics-lab/internal/csvload"
	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/logging"
	"market-metrics-lab/internal/storage"
	chstore "market-metrics-lab/internal/storage/clickhouse"
	"market-metrics-lab/internal/storage/memory"
	"market-metrics-lab/internal/storage/migrations"
	pgstore "market-metrics-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Run file (YAML); supplies the symbols, frequency and storage backend")
	files := flag.String("files", "", "Comma-separated SYMBOL=path.csv pairs; symbols must appear in the run file")
	dev := flag.Bool("dev", false, "Console log encoder with colored levels")
	flag.Parse()

	// DSNs come from the environment; a local .env is optional.
	_ = godotenv.Load()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
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

	mappings, err := parseFiles(cfg, *files)
	if err != nil {
		logger.Fatal("invalid --files", zap.Error(err))
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

	err = runIngest(ctx, logger, cfg, mappings)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("ingest failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

type fileMapping struct {
	sym  domain.SymbolID
	path string
}

// parseFiles resolves each SYMBOL=path pair against the configured symbols,
// so files can only be loaded for streams the run actually declares.
func parseFiles(cfg *config.Config, arg string) ([]fileMapping, error) {
	byName := make(map[string]domain.SymbolID)
	for _, sym := range cfg.SymbolIDs() {
		byName[sym.Symbol] = sym
	}

	var mappings []fileMapping
	for _, pair := range strings.Split(arg, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, path, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("mapping %q is not SYMBOL=path", pair)
		}
		name = strings.TrimSpace(name)
		path = strings.TrimSpace(path)
		sym, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("symbol %q is not in the run file", name)
		}
		if path == "" {
			return nil, fmt.Errorf("mapping for %q has an empty path", name)
		}
		mappings = append(mappings, fileMapping{sym: sym, path: path})
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("at least one SYMBOL=path pair is required")
	}

	return mappings, nil
}

func runIngest(ctx context.Context, logger *zap.Logger, cfg *config.Config, mappings []fileMapping) error {
	bars, cleanup, err := openBarStore(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	loader := csvload.NewLoader(bars, logger)

	total := 0
	for _, m := range mappings {
		n, err := loader.Load(ctx, m.path, m.sym)
		if err != nil {
			return err
		}
		total += n
	}

	logger.Info("ingest complete",
		zap.Int("files", len(mappings)),
		zap.Int("bars", total),
	)
	return nil
}

// openBarStore selects the configured backend. The memory backend parses and
// counts without persisting, which is how files are validated before a real
// load.
func openBarStore(ctx context.Context, logger *zap.Logger, cfg *config.Config) (storage.BarStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		dsn := os.Getenv(cfg.Storage.PostgresDSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("env %s is empty", cfg.Storage.PostgresDSNEnv)
		}
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres bar store")
		return pgstore.NewBarStore(pool), pool.Close, nil

	case config.BackendClickHouse:
		dsn := os.Getenv(cfg.Storage.ClickHouseDSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("env %s is empty", cfg.Storage.ClickHouseDSNEnv)
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using clickhouse bar store")
		cleanup := func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse connection", zap.Error(err))
			}
		}
		return chstore.NewBarStore(conn), cleanup, nil

	default:
		logger.Info("using memory bar store; bars are discarded on exit")
		return memory.NewBarStore(), func() {}, nil
	}
}
