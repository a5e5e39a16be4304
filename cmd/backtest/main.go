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

	"market-metrics-lab/internal/backtest"
	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/config"
	"market-metrics-lab/internal/csvload"
	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/logging"
	"market-metrics-lab/internal/marketdata"
	"market-metrics-lab/internal/processor"
	"market-metrics-lab/internal/reporting"
	"market-metrics-lab/internal/storage"
	chstore "market-metrics-lab/internal/storage/clickhouse"
	"market-metrics-lab/internal/storage/memory"
	"market-metrics-lab/internal/storage/migrations"
	pgstore "market-metrics-lab/internal/storage/postgres"
	"market-metrics-lab/internal/verification"
)

func main() {
	configPath := flag.String("config", "", "Run file (YAML)")
	files := flag.String("files", "", "Optional comma-separated SYMBOL=path.csv pairs to load before the run")
	verify := flag.Bool("verify", false, "Recompute the run on fresh state and compare against stored points")
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

	err = run(ctx, logger, cfg, *files, *verify)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("backtest failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, files string, verify bool) error {
	bars, points, cleanup, err := openStores(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if files != "" {
		if err := loadFiles(ctx, logger, cfg, bars, files); err != nil {
			return err
		}
	}

	syms := cfg.SymbolIDs()
	specs := cfg.MetricSpecs()
	startMs, endMs := cfg.Range()

	clk := clock.New()
	mgr := marketdata.NewManager(clk, bars)
	for _, sym := range syms {
		if err := mgr.Subscribe(sym); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}

	containers, err := backtest.BuildGraph(clk, mgr, syms, specs)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	runner := backtest.NewRunner(backtest.RunnerOptions{
		Processor: processor.New(clk, mgr, containers...),
		Manager:   mgr,
		Bars:      bars,
		Points:    points,
		Frequency: cfg.Frequency,
		Start:     startMs,
		End:       endMs,
		Log:       logger,
	})

	results, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if verify {
		if err := verifyRun(ctx, logger, cfg, bars, points); err != nil {
			return err
		}
	}

	return writeReports(ctx, logger, cfg, points, results, syms, specs)
}

func verifyRun(ctx context.Context, logger *zap.Logger, cfg *config.Config, bars storage.BarStore, points storage.MetricStore) error {
	startMs, endMs := cfg.Range()
	verifier := verification.NewVerifier(verification.VerifierOptions{
		Bars:      bars,
		Points:    points,
		Symbols:   cfg.SymbolIDs(),
		Specs:     cfg.MetricSpecs(),
		Frequency: cfg.Frequency,
		Start:     startMs,
		End:       endMs,
		Log:       logger,
	})

	report, err := verifier.VerifyRun(ctx)
	if err != nil {
		return fmt.Errorf("verify run: %w", err)
	}

	for _, d := range report.Divergences {
		logger.Warn("divergence",
			zap.String("symbol", d.Sym.String()),
			zap.String("metric", d.Metric),
			zap.Int64("timestamp_ms", d.TimestampMs),
			zap.Float64("stored", d.Stored),
			zap.Float64("recomputed", d.Recomputed),
			zap.String("missing", d.Missing),
		)
	}
	if !report.Match() {
		return fmt.Errorf("verification found %d divergences over %d points",
			len(report.Divergences), report.PointsChecked)
	}

	return nil
}

// writeReports renders the report files named in the config; empty paths skip.
func writeReports(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	points storage.MetricStore,
	results *backtest.Results,
	syms []domain.SymbolID,
	specs []domain.MetricSpec,
) error {
	rc := cfg.Report
	if rc.SummaryCSV == "" && rc.SummaryMarkdown == "" && rc.PointsCSV == "" {
		return nil
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	startMs, endMs := cfg.Range()
	run := reporting.RunInfo{
		Frequency:      cfg.Frequency,
		StartMs:        startMs,
		EndMs:          endMs,
		TicksProcessed: results.TicksProcessed,
		Symbols:        syms,
		Metrics:        names,
	}
	gen := reporting.NewGenerator(points)

	if rc.SummaryCSV != "" || rc.SummaryMarkdown != "" {
		summary, err := gen.Generate(ctx, run)
		if err != nil {
			return fmt.Errorf("generate summary: %w", err)
		}
		if rc.SummaryCSV != "" {
			if err := writeReport(logger, rc.SummaryCSV, reporting.RenderCSV(summary)); err != nil {
				return err
			}
		}
		if rc.SummaryMarkdown != "" {
			if err := writeReport(logger, rc.SummaryMarkdown, reporting.RenderMarkdown(summary)); err != nil {
				return err
			}
		}
	}

	if rc.PointsCSV != "" {
		pts, err := gen.Points(ctx, run)
		if err != nil {
			return fmt.Errorf("gather points: %w", err)
		}
		if err := writeReport(logger, rc.PointsCSV, reporting.RenderPointsCSV(pts)); err != nil {
			return err
		}
	}

	return nil
}

func writeReport(logger *zap.Logger, path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	logger.Info("wrote report", zap.String("file", path))
	return nil
}

// loadFiles parses SYMBOL=path pairs and loads each CSV into the bar store.
// With the memory backend this is the only way bars enter the run; on the
// durable backends it folds the ingest step into the run itself.
func loadFiles(ctx context.Context, logger *zap.Logger, cfg *config.Config, bars storage.BarStore, arg string) error {
	byName := make(map[string]domain.SymbolID)
	for _, sym := range cfg.SymbolIDs() {
		byName[sym.Symbol] = sym
	}

	loader := csvload.NewLoader(bars, logger)
	for _, pair := range strings.Split(arg, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, path, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("mapping %q is not SYMBOL=path", pair)
		}
		name = strings.TrimSpace(name)
		path = strings.TrimSpace(path)
		sym, ok := byName[name]
		if !ok {
			return fmt.Errorf("symbol %q is not in the run file", name)
		}
		if path == "" {
			return fmt.Errorf("mapping for %q has an empty path", name)
		}
		if _, err := loader.Load(ctx, path, sym); err != nil {
			return err
		}
	}
	return nil
}

// openStores selects the configured backend. Postgres persists bars only;
// computed points stay in memory and reach disk through the report files.
// ClickHouse persists both bars and points.
func openStores(ctx context.Context, logger *zap.Logger, cfg *config.Config) (storage.BarStore, storage.MetricStore, func(), error) {
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
		logger.Info("using postgres bar store")
		return pgstore.NewBarStore(pool), memory.NewMetricStore(), pool.Close, nil

	case config.BackendClickHouse:
		dsn := os.Getenv(cfg.Storage.ClickHouseDSNEnv)
		if dsn == "" {
			return nil, nil, nil, fmt.Errorf("env %s is empty", cfg.Storage.ClickHouseDSNEnv)
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("using clickhouse bar and metric stores")
		cleanup := func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse connection", zap.Error(err))
			}
		}
		return chstore.NewBarStore(conn), chstore.NewMetricStore(conn), cleanup, nil

	default:
		logger.Info("using memory stores; results survive only in the report files")
		return memory.NewBarStore(), memory.NewMetricStore(), func() {}, nil
	}
}
