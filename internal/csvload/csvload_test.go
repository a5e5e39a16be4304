package csvload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
	"market-metrics-lab/internal/storage/memory"
)

func writeBarFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func testSym() domain.SymbolID {
	return domain.SymbolID{ProductType: domain.ProductStock, Symbol: "AAPL", Frequency: domain.Freq1Min}
}

func TestParseReader_UnixMilliseconds(t *testing.T) {
	input := "timestamp,open,high,low,close,volume\n" +
		"60000,1.0,2.0,0.5,1.5,100\n" +
		"120000,1.5,2.5,1.0,2.0,150\n"

	bars, err := ParseReader(strings.NewReader(input), testSym())
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(bars))
	}
	if bars[0].TimestampMs != 60000 {
		t.Errorf("Expected timestamp 60000, got %d", bars[0].TimestampMs)
	}
	if bars[0].Close != 1.5 {
		t.Errorf("Expected close 1.5, got %f", bars[0].Close)
	}
	if bars[1].Volume != 150 {
		t.Errorf("Expected volume 150, got %f", bars[1].Volume)
	}
}

func TestParseReader_RFC3339(t *testing.T) {
	input := "timestamp,open,high,low,close,volume\n" +
		"2024-01-02T09:30:00Z,1.0,2.0,0.5,1.5,100\n"

	bars, err := ParseReader(strings.NewReader(input), testSym())
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("Expected 1 bar, got %d", len(bars))
	}
	if bars[0].TimestampMs != 1704187800000 {
		t.Errorf("Expected timestamp 1704187800000, got %d", bars[0].TimestampMs)
	}
}

func TestParseReader_EmptyCellsBecomeSentinels(t *testing.T) {
	input := "timestamp,open,high,low,close,volume\n" +
		"60000,1.0,,0.5,1.5,\n"

	bars, err := ParseReader(strings.NewReader(input), testSym())
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("Expected 1 bar, got %d", len(bars))
	}
	if domain.HasValue(bars[0].High) {
		t.Errorf("Expected sentinel high, got %f", bars[0].High)
	}
	if domain.HasValue(bars[0].Volume) {
		t.Errorf("Expected sentinel volume, got %f", bars[0].Volume)
	}
	if !domain.HasValue(bars[0].Close) {
		t.Error("Expected close to carry a value")
	}
}

func TestParseReader_HeaderCaseInsensitive(t *testing.T) {
	input := "Timestamp,Open,High,Low,Close,Volume\n" +
		"60000,1,2,0.5,1.5,100\n"

	bars, err := ParseReader(strings.NewReader(input), testSym())
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("Expected 1 bar, got %d", len(bars))
	}
}

func TestParseReader_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty file", ""},
		{"wrong header", "time,open,high,low,close,volume\n"},
		{"missing column", "timestamp,open,high,low,close\n"},
		{"bad timestamp", "timestamp,open,high,low,close,volume\nnoon,1,2,0.5,1.5,100\n"},
		{"empty timestamp", "timestamp,open,high,low,close,volume\n,1,2,0.5,1.5,100\n"},
		{"garbage number", "timestamp,open,high,low,close,volume\n60000,1,2,0.5,abc,100\n"},
		{"short record", "timestamp,open,high,low,close,volume\n60000,1,2\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseReader(strings.NewReader(tc.input), testSym())
			if err == nil {
				t.Fatal("Expected parse error")
			}
		})
	}
}

func TestParseReader_InvalidSymbol(t *testing.T) {
	_, err := ParseReader(strings.NewReader("timestamp,open,high,low,close,volume\n"), domain.SymbolID{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestLoader_Load(t *testing.T) {
	store := memory.NewBarStore()
	loader := NewLoader(store, zap.NewNop())
	ctx := context.Background()
	sym := testSym()

	path := writeBarFile(t, "timestamp,open,high,low,close,volume\n"+
		"60000,1.0,2.0,0.5,1.5,100\n"+
		"120000,1.5,2.5,1.0,2.0,150\n")

	n, err := loader.Load(ctx, path, sym)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 bars loaded, got %d", n)
	}

	bars, err := store.ReadRange(ctx, sym, 0, 200000)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("Expected 2 bars in store, got %d", len(bars))
	}
}

func TestLoader_LoadDuplicateFails(t *testing.T) {
	store := memory.NewBarStore()
	loader := NewLoader(store, zap.NewNop())
	ctx := context.Background()
	sym := testSym()

	path := writeBarFile(t, "timestamp,open,high,low,close,volume\n"+
		"60000,1.0,2.0,0.5,1.5,100\n")

	if _, err := loader.Load(ctx, path, sym); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}

	_, err := loader.Load(ctx, path, sym)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey on reload, got %v", err)
	}
}
