package livefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/observability"
	"market-metrics-lab/internal/processor"
	"market-metrics-lab/internal/storage"
)

// Consumer applies live bars: persist each bar, step the graph once per new
// distinct timestamp, checkpoint per-symbol progress. Bars whose tick was
// already processed are stored but not recomputed; sentinel propagation
// covers the gap until the next round.
type Consumer struct {
	frequency int
	bars      storage.BarStore
	progress  storage.FeedProgressStore
	proc      *processor.Processor
	metrics   *observability.Metrics
	log       *zap.Logger

	lastTs   map[domain.SymbolID]int64
	lastTick int64
	started  bool
}

// NewConsumer creates a consumer stepping proc for bars of the given
// frequency. metrics must be non-nil.
func NewConsumer(
	frequency int,
	bars storage.BarStore,
	progress storage.FeedProgressStore,
	proc *processor.Processor,
	metrics *observability.Metrics,
	log *zap.Logger,
) *Consumer {
	return &Consumer{
		frequency: frequency,
		bars:      bars,
		progress:  progress,
		proc:      proc,
		metrics:   metrics,
		log:       log,
		lastTs:    make(map[domain.SymbolID]int64),
	}
}

// Restore loads per-symbol checkpoints so a restarted feed resumes where it
// stopped instead of reprocessing replayed bars.
func (c *Consumer) Restore(ctx context.Context, syms []domain.SymbolID) error {
	for _, sym := range syms {
		ts, err := c.progress.Get(ctx, sym)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("restore progress for %s: %w", sym, err)
		}
		c.lastTs[sym] = ts
		c.log.Info("restored feed progress",
			zap.String("symbol", sym.String()),
			zap.Int64("last_timestamp_ms", ts),
		)
	}
	return nil
}

// Run consumes bars until the channel closes or the context is cancelled.
// Store write failures are counted and logged, not fatal; graph stepping
// failures are.
func (c *Consumer) Run(ctx context.Context, bars <-chan *domain.Bar) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case bar, ok := <-bars:
			if !ok {
				return nil
			}
			if err := c.handleBar(ctx, bar); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) handleBar(ctx context.Context, bar *domain.Bar) error {
	c.metrics.FeedBarsReceived.Inc()
	sym := bar.Sym

	if last, ok := c.lastTs[sym]; ok && bar.TimestampMs <= last {
		c.metrics.FeedBarsSkipped.WithLabelValues("stale").Inc()
		c.log.Debug("skipped stale bar",
			zap.String("symbol", sym.String()),
			zap.Int64("timestamp_ms", bar.TimestampMs),
			zap.Int64("last_timestamp_ms", last),
		)
		return nil
	}

	if err := c.bars.Insert(ctx, bar); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Replayed after a checkpoint gap; the stored copy wins.
			c.metrics.FeedBarsSkipped.WithLabelValues("stale").Inc()
			c.lastTs[sym] = bar.TimestampMs
			return nil
		}
		c.metrics.StoreWriteErrors.WithLabelValues("insert_bar").Inc()
		c.log.Error("insert live bar failed",
			zap.Error(err),
			zap.String("symbol", sym.String()),
			zap.Int64("timestamp_ms", bar.TimestampMs),
		)
		return nil
	}

	c.metrics.FeedBarsStored.Inc()
	c.metrics.LastBarTimestamp.Set(float64(bar.TimestampMs))
	c.lastTs[sym] = bar.TimestampMs

	if !c.started || bar.TimestampMs > c.lastTick {
		start := time.Now()
		if err := c.proc.Step(ctx, bar.TimestampMs, c.frequency); err != nil {
			return fmt.Errorf("step at %d: %w", bar.TimestampMs, err)
		}
		c.lastTick = bar.TimestampMs
		c.started = true

		c.metrics.TicksProcessed.Inc()
		c.metrics.ComputeRoundLatency.Observe(time.Since(start).Seconds())
		points := 0
		for _, ct := range c.proc.Containers() {
			points += len(ct.Symbols())
		}
		c.metrics.PointsComputed.Add(float64(points))
	} else {
		c.metrics.FeedBarsSkipped.WithLabelValues("late").Inc()
	}

	if err := c.progress.Upsert(ctx, sym, bar.TimestampMs); err != nil {
		c.metrics.StoreWriteErrors.WithLabelValues("upsert_progress").Inc()
		c.log.Warn("progress checkpoint failed",
			zap.Error(err),
			zap.String("symbol", sym.String()),
		)
	}

	return nil
}
