package memory

import (
	"context"
	"errors"
	"testing"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

func TestFeedProgressStore_GetBeforeUpsert(t *testing.T) {
	store := NewFeedProgressStore()
	ctx := context.Background()

	_, err := store.Get(ctx, testSym("AAPL"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFeedProgressStore_UpsertOverwrites(t *testing.T) {
	store := NewFeedProgressStore()
	ctx := context.Background()
	sym := testSym("AAPL")

	if err := store.Upsert(ctx, sym, 1000); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, sym, 2000); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	ts, err := store.Get(ctx, sym)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ts != 2000 {
		t.Errorf("Expected 2000, got %d", ts)
	}
}

func TestFeedProgressStore_InvalidSymbol(t *testing.T) {
	store := NewFeedProgressStore()
	ctx := context.Background()

	err := store.Upsert(ctx, domain.SymbolID{}, 1000)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
