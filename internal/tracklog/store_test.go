package tracklog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optjournal/optjournal/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func floatPtr(f float64) *float64 { return &f }

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Snapshot{
		PositionSlug:    "spy_2025-01-15",
		Date:            "2025-02-01",
		UnderlyingPrice: floatPtr(598.40),
		Delta:           -4.2,
		BetaDelta:       -4.2,
		Theta:           12.5,
		IVRank:          31.0,
		PoP:             floatPtr(68),
		PnL:             42.50,
		PctMaxProfit:    floatPtr(28.65),
	}
	require.NoError(t, store.AppendSnapshot(ctx, first))

	second := &Snapshot{
		PositionSlug: "spy_2025-01-15",
		Date:         "2025-02-02",
		Delta:        -3.8,
		PnL:          55.00,
	}
	require.NoError(t, store.AppendSnapshot(ctx, second))

	snaps, err := store.Snapshots(ctx, "spy_2025-01-15")
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, "2025-02-01", snaps[0].Date)
	require.NotNil(t, snaps[0].UnderlyingPrice)
	assert.InDelta(t, 598.40, *snaps[0].UnderlyingPrice, 1e-9)
	require.NotNil(t, snaps[0].PctMaxProfit)
	assert.InDelta(t, 28.65, *snaps[0].PctMaxProfit, 1e-9)

	assert.Equal(t, "2025-02-02", snaps[1].Date)
	assert.Nil(t, snaps[1].UnderlyingPrice)
	assert.Nil(t, snaps[1].PoP)
	assert.InDelta(t, 55.00, snaps[1].PnL, 1e-9)

	other, err := store.Snapshots(ctx, "qqq_2025-01-15")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecordClosedIgnoresReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pnl := decimal.NewFromFloat(120.40)
	pos := &models.Position{
		Slug:        "spy_2025-01-15",
		Strategy:    "strangle",
		Ticker:      "SPY",
		Opened:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Closed:      time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC),
		RealizedPnL: &pnl,
		Tags:        []string{"rolled", "earnings"},
	}
	require.NoError(t, store.RecordClosed(pos))

	// Replaying the same import must not duplicate the summary row.
	require.NoError(t, store.RecordClosed(pos))

	trades, err := store.ClosedTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "spy_2025-01-15", trades[0].PositionSlug)
	assert.Equal(t, "strangle", trades[0].Strategy)
	assert.Equal(t, "2025-01-15", trades[0].Opened)
	assert.Equal(t, "2025-02-20", trades[0].Closed)
	assert.InDelta(t, 120.40, trades[0].PnL, 1e-9)
	assert.Equal(t, "rolled,earnings", trades[0].Tags)
}

func TestClosedByStrategy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := func(slug, strategy string, pnl float64) {
		t.Helper()
		p := decimal.NewFromFloat(pnl)
		require.NoError(t, store.RecordClosed(&models.Position{
			Slug:        slug,
			Strategy:    strategy,
			Ticker:      "SPY",
			Opened:      time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			Closed:      time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC),
			RealizedPnL: &p,
		}))
	}
	record("spy_2025-01-02", "strangle", 100)
	record("spy_2025-01-02-2", "strangle", -20)
	record("spy_2025-01-02-3", "short-put", 35)

	stats, err := store.ClosedByStrategy(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byName := map[string]StrategyPnL{}
	for _, s := range stats {
		byName[s.Strategy] = s
	}
	assert.Equal(t, 2, byName["strangle"].Trades)
	assert.InDelta(t, 80, byName["strangle"].TotalPnL, 1e-9)
	assert.InDelta(t, 40, byName["strangle"].AvgPnL, 1e-9)
	assert.Equal(t, 1, byName["short-put"].Trades)
	assert.InDelta(t, 35, byName["short-put"].TotalPnL, 1e-9)
}
