package tracklog

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optjournal/optjournal/internal/models"
	"github.com/optjournal/optjournal/internal/tastytrade"
)

func trackedPosition() *models.Position {
	expiry := time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)
	return &models.Position{
		Slug:          "spy_2025-01-15",
		Ticker:        "SPY",
		Strategy:      "strangle",
		Status:        models.StatusOpen,
		Opened:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		InitialCredit: decimal.NewFromFloat(200),
		Legs: []models.Leg{
			{Type: models.OptionPut, Ticker: "SPY", Side: models.SideShort,
				Strike: decimal.NewFromInt(560), Expiry: expiry, Contracts: 1},
			{Type: models.OptionCall, Ticker: "SPY", Side: models.SideShort,
				Strike: decimal.NewFromInt(640), Expiry: expiry, Contracts: 1},
		},
	}
}

func TestBuildSnapshotAggregatesLegs(t *testing.T) {
	pos := trackedPosition()
	rows := []tastytrade.PositionRow{
		{Strike: decimal.NewFromInt(560), Type: models.OptionPut, ExpDate: "2025-03-21",
			Delta: 16.2, BetaDelta: 16.2, Theta: 8.1, IVRank: 24.5,
			PoP: floatPtr(71), Ext: decimal.NewFromFloat(42.50),
			UnderlyingPrice: floatPtr(601.25)},
		{Strike: decimal.NewFromInt(640), Type: models.OptionCall, ExpDate: "2025-03-21",
			Delta: -12.4, BetaDelta: -12.4, Theta: 6.3, IVRank: 24.5,
			Ext: decimal.NewFromFloat(31.00)},
	}

	snap, ok := BuildSnapshot(pos, rows, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)

	assert.Equal(t, "spy_2025-01-15", snap.PositionSlug)
	assert.Equal(t, "2025-02-01", snap.Date)
	assert.InDelta(t, 3.8, snap.Delta, 1e-9)
	assert.InDelta(t, 14.4, snap.Theta, 1e-9)
	assert.InDelta(t, 24.5, snap.IVRank, 1e-9)
	require.NotNil(t, snap.PoP)
	assert.InDelta(t, 71, *snap.PoP, 1e-9)
	require.NotNil(t, snap.UnderlyingPrice)
	assert.InDelta(t, 601.25, *snap.UnderlyingPrice, 1e-9)
	assert.InDelta(t, 73.50, snap.PnL, 1e-9)
	require.NotNil(t, snap.PctMaxProfit)
	assert.InDelta(t, 36.75, *snap.PctMaxProfit, 1e-9)
}

func TestBuildSnapshotSkipsClosedLegsAndUsedRows(t *testing.T) {
	pos := trackedPosition()
	pos.Legs[1].Status = models.LegClosed

	// Two identical put rows; only one active put leg, so one row is used.
	row := tastytrade.PositionRow{
		Strike: decimal.NewFromInt(560), Type: models.OptionPut,
		ExpDate: "2025-03-21", Ext: decimal.NewFromFloat(10),
	}
	snap, ok := BuildSnapshot(pos, []tastytrade.PositionRow{row, row},
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.InDelta(t, 10, snap.PnL, 1e-9)
}

func TestBuildSnapshotNoMatch(t *testing.T) {
	pos := trackedPosition()
	rows := []tastytrade.PositionRow{
		{Strike: decimal.NewFromInt(400), Type: models.OptionPut, ExpDate: "2025-03-21"},
	}
	_, ok := BuildSnapshot(pos, rows, time.Now())
	assert.False(t, ok)
}

func TestBuildSnapshotZeroCreditOmitsPct(t *testing.T) {
	pos := trackedPosition()
	pos.InitialCredit = decimal.Zero
	rows := []tastytrade.PositionRow{
		{Strike: decimal.NewFromInt(560), Type: models.OptionPut,
			ExpDate: "2025-03-21", Ext: decimal.NewFromFloat(10)},
	}
	snap, ok := BuildSnapshot(pos, rows, time.Now())
	require.True(t, ok)
	assert.Nil(t, snap.PctMaxProfit)
}

func TestTrackerWritesSnapshots(t *testing.T) {
	store := newTestStore(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tracker := NewTracker(store, logger)

	matched := trackedPosition()
	unmatched := trackedPosition()
	unmatched.Slug = "qqq_2025-01-15"
	unmatched.Ticker = "QQQ"
	unmatched.Legs = []models.Leg{
		{Type: models.OptionPut, Ticker: "QQQ", Side: models.SideShort,
			Strike: decimal.NewFromInt(480),
			Expiry: time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), Contracts: 1},
	}

	rows := []tastytrade.PositionRow{
		{Strike: decimal.NewFromInt(560), Type: models.OptionPut,
			ExpDate: "2025-03-21", Ext: decimal.NewFromFloat(20)},
		{Strike: decimal.NewFromInt(640), Type: models.OptionCall,
			ExpDate: "2025-03-21", Ext: decimal.NewFromFloat(15)},
	}

	ctx := context.Background()
	date := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	written, err := tracker.Track(ctx, []*models.Position{matched, unmatched}, rows, date)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	snaps, err := store.Snapshots(ctx, "spy_2025-01-15")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 35, snaps[0].PnL, 1e-9)

	none, err := store.Snapshots(ctx, "qqq_2025-01-15")
	require.NoError(t, err)
	assert.Empty(t, none)
}
