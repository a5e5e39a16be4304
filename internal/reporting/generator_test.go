package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage/memory"
)

func testSym(symbol string) domain.SymbolID {
	return domain.SymbolID{ProductType: domain.ProductCrypto, Symbol: symbol, Frequency: domain.Freq1Min}
}

func setupTestPoints(t *testing.T) (*memory.MetricStore, domain.SymbolID) {
	t.Helper()

	ctx := context.Background()
	store := memory.NewMetricStore()
	sym := testSym("BTCUSDT")

	points := []*domain.MetricPoint{
		{Sym: sym, Metric: "sma3", TimestampMs: 60000, Value: domain.Sentinel()},
		{Sym: sym, Metric: "sma3", TimestampMs: 120000, Value: 2},
		{Sym: sym, Metric: "sma3", TimestampMs: 180000, Value: 4},
		{Sym: sym, Metric: "ret1", TimestampMs: 60000, Value: 1},
		{Sym: sym, Metric: "ret1", TimestampMs: 120000, Value: 1},
		{Sym: sym, Metric: "ret1", TimestampMs: 180000, Value: 1},
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	return store, sym
}

func testRunInfo(sym domain.SymbolID) RunInfo {
	return RunInfo{
		Frequency:      domain.Freq1Min,
		StartMs:        60000,
		EndMs:          180000,
		TicksProcessed: 3,
		Symbols:        []domain.SymbolID{sym},
		Metrics:        []string{"sma3", "ret1"},
	}
}

func TestGenerate(t *testing.T) {
	store, sym := setupTestPoints(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewGenerator(store).WithClock(func() time.Time { return fixed })

	summary, err := g.Generate(context.Background(), testRunInfo(sym))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !summary.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v, want %v", summary.GeneratedAt, fixed)
	}
	if summary.TicksProcessed != 3 {
		t.Errorf("TicksProcessed = %d, want 3", summary.TicksProcessed)
	}
	if len(summary.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(summary.Rows))
	}

	sma := summary.Rows[0]
	if sma.Metric != "sma3" || sma.Sym != sym {
		t.Errorf("unexpected first row identity: %+v", sma)
	}
	if sma.Count != 2 || sma.Sentinels != 1 {
		t.Errorf("sma3 count/sentinels = %d/%d, want 2/1", sma.Count, sma.Sentinels)
	}
	if !almostEqual(sma.Mean, 3) || !almostEqual(sma.Min, 2) || !almostEqual(sma.Max, 4) {
		t.Errorf("unexpected sma3 stats: %+v", sma.SeriesStats)
	}

	ret := summary.Rows[1]
	if ret.Metric != "ret1" || ret.Count != 3 || ret.Sentinels != 0 {
		t.Errorf("unexpected ret1 row: %+v", ret)
	}
	if !almostEqual(ret.Mean, 1) || ret.Stddev != 0 {
		t.Errorf("unexpected ret1 stats: %+v", ret.SeriesStats)
	}
}

func TestRenderCSV(t *testing.T) {
	store, sym := setupTestPoints(t)
	g := NewGenerator(store)

	summary, err := g.Generate(context.Background(), testRunInfo(sym))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	csv := RenderCSV(summary)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "product_type,symbol,frequency_seconds,metric,count,sentinels,") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "crypto,BTCUSDT,60,sma3,2,1,2.000000,4.000000,3.000000,") {
		t.Errorf("unexpected sma3 row: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], "crypto,BTCUSDT,60,ret1,3,0,") {
		t.Errorf("unexpected ret1 row: %s", lines[2])
	}
}

func TestRenderMarkdown(t *testing.T) {
	store, sym := setupTestPoints(t)
	g := NewGenerator(store)

	summary, err := g.Generate(context.Background(), testRunInfo(sym))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(summary)
	for _, want := range []string{
		"# Run Report",
		"Range: 60000 .. 180000 ms | Frequency: 60s | Ticks: 3",
		"## Series Statistics",
		"| crypto:BTCUSDT:60 | sma3 | 2 | 1 |",
		"| crypto:BTCUSDT:60 | ret1 | 3 | 0 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_NoRows(t *testing.T) {
	md := RenderMarkdown(&RunSummary{GeneratedAt: time.Unix(0, 0).UTC()})
	if !strings.Contains(md, "No series statistics available.") {
		t.Errorf("expected empty-summary fallback, got:\n%s", md)
	}
}

func TestRenderPointsCSV(t *testing.T) {
	store, sym := setupTestPoints(t)
	g := NewGenerator(store)

	points, err := g.Points(context.Background(), testRunInfo(sym))
	if err != nil {
		t.Fatalf("Points failed: %v", err)
	}
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}

	csv := RenderPointsCSV(points)
	if !strings.Contains(csv, "product_type,symbol,frequency_seconds,metric,timestamp_ms,value\n") {
		t.Errorf("missing header:\n%s", csv)
	}
	// Sentinel renders as an empty cell.
	if !strings.Contains(csv, "crypto,BTCUSDT,60,sma3,60000,\n") {
		t.Errorf("missing sentinel row:\n%s", csv)
	}
	if !strings.Contains(csv, "crypto,BTCUSDT,60,sma3,120000,2\n") {
		t.Errorf("missing value row:\n%s", csv)
	}
}
