package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

func testSymbol(symbol string) domain.SymbolID {
	return domain.SymbolID{
		ProductType: domain.ProductCrypto,
		Symbol:      symbol,
		Frequency:   domain.Freq1Min,
	}
}

func createTestBar(sym domain.SymbolID, ts int64, close float64) *domain.Bar {
	return &domain.Bar{
		Sym:         sym,
		TimestampMs: ts,
		Open:        close - 0.5,
		High:        close + 1.0,
		Low:         close - 1.0,
		Close:       close,
		Volume:      1000,
	}
}

func TestBarStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	// Empty insert is a no-op
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	bars := []*domain.Bar{
		createTestBar(sym, 60000, 101),
		createTestBar(sym, 120000, 102),
	}

	err = store.InsertBulk(ctx, bars)
	require.NoError(t, err)

	got, err := store.ReadRange(ctx, sym, 0, 200000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(60000), got[0].TimestampMs)
	assert.InDelta(t, 101.0, got[0].Close, 0.0001)
	assert.Equal(t, int64(120000), got[1].TimestampMs)
	assert.InDelta(t, 102.0, got[1].Close, 0.0001)
}

func TestBarStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	bars := []*domain.Bar{createTestBar(sym, 60000, 101)}

	err := store.InsertBulk(ctx, bars)
	require.NoError(t, err)

	// MergeTree would happily take the same key twice; the store must not.
	err = store.InsertBulk(ctx, bars)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestBarStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	bars := []*domain.Bar{
		createTestBar(sym, 60000, 101),
		createTestBar(sym, 60000, 102),
	}

	err := store.InsertBulk(ctx, bars)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestBarStore_Read(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	bar := createTestBar(sym, 60000, 101.5)
	err := store.Insert(ctx, bar)
	require.NoError(t, err)

	got, err := store.Read(ctx, sym, 60000)
	require.NoError(t, err)
	assert.Equal(t, sym, got.Sym)
	assert.Equal(t, int64(60000), got.TimestampMs)
	assert.InDelta(t, 101.5, got.Close, 0.0001)
	assert.InDelta(t, 1000.0, got.Volume, 0.0001)
}

func TestBarStore_ReadUnknownTimestamp(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	// Unknown timestamps return a fully sentineled bar, not an error.
	got, err := store.Read(ctx, sym, 999999)
	require.NoError(t, err)
	assert.Equal(t, sym, got.Sym)
	assert.Equal(t, int64(999999), got.TimestampMs)
	assert.True(t, got.IsSentinel())
}

func TestBarStore_MissingValuesRoundTrip(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	bar := createTestBar(sym, 60000, 101.5)
	bar.Volume = domain.Sentinel()

	err := store.Insert(ctx, bar)
	require.NoError(t, err)

	got, err := store.Read(ctx, sym, 60000)
	require.NoError(t, err)
	assert.False(t, domain.HasValue(got.Volume))
	assert.True(t, domain.HasValue(got.Close))
}

func TestBarStore_ReadRangeBounds(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	bars := []*domain.Bar{
		createTestBar(sym, 60000, 101),
		createTestBar(sym, 120000, 102),
		createTestBar(sym, 180000, 103),
	}

	err := store.InsertBulk(ctx, bars)
	require.NoError(t, err)

	// Range is inclusive on both ends.
	got, err := store.ReadRange(ctx, sym, 60000, 120000)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.ReadRange(ctx, sym, 60001, 119999)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBarStore_SymbolIsolation(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	btc := testSymbol("BTCUSDT")
	eth := testSymbol("ETHUSDT")

	bars := []*domain.Bar{
		createTestBar(btc, 60000, 101),
		createTestBar(eth, 60000, 201),
	}

	err := store.InsertBulk(ctx, bars)
	require.NoError(t, err)

	got, err := store.ReadRange(ctx, btc, 0, 200000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 101.0, got[0].Close, 0.0001)
}

func TestBarStore_Timestamps(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	sym := testSymbol("BTCUSDT")

	bars := []*domain.Bar{
		createTestBar(sym, 180000, 103),
		createTestBar(sym, 60000, 101),
		createTestBar(sym, 120000, 102),
	}

	err := store.InsertBulk(ctx, bars)
	require.NoError(t, err)

	ts, err := store.Timestamps(ctx, sym, 0, 200000)
	require.NoError(t, err)
	assert.Equal(t, []int64{60000, 120000, 180000}, ts)
}

func TestBarStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()

	err := store.Insert(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.InsertBulk(ctx, []*domain.Bar{{Sym: domain.SymbolID{}, TimestampMs: 60000}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
