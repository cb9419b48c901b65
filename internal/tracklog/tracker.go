package tracklog

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optjournal/optjournal/internal/models"
	"github.com/optjournal/optjournal/internal/tastytrade"
)

// Tracker builds daily snapshots for open positions from a live positions
// export and appends them to the store.
type Tracker struct {
	store  *Store
	logger *logrus.Logger
}

// NewTracker wires a tracker to the log store.
func NewTracker(store *Store, logger *logrus.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// Track matches every open position's active legs against the export rows
// and appends one snapshot per matched position. Positions with no matching
// rows are reported and skipped. Returns the number of snapshots written.
func (t *Tracker) Track(ctx context.Context, positions []*models.Position, rows []tastytrade.PositionRow, date time.Time) (int, error) {
	written := 0
	for _, pos := range positions {
		snap, ok := BuildSnapshot(pos, rows, date)
		if !ok {
			t.logger.WithField("position", pos.Slug).Warn("no positions-export rows match, skipping")
			continue
		}
		if err := t.store.AppendSnapshot(ctx, snap); err != nil {
			return written, err
		}
		t.logger.WithFields(logrus.Fields{
			"position": pos.Slug,
			"pnl":      snap.PnL,
		}).Info("logged tracking snapshot")
		written++
	}
	return written, nil
}

// BuildSnapshot aggregates the export rows matching the position's active
// legs: greeks are summed across legs, IV rank, PoP and underlying price are
// taken from the first match, and PnL is the summed extrinsic value. Returns
// false when no leg matches.
func BuildSnapshot(pos *models.Position, rows []tastytrade.PositionRow, date time.Time) (*Snapshot, bool) {
	var matched []*tastytrade.PositionRow
	used := make([]bool, len(rows))
	for _, leg := range pos.ActiveLegs() {
		for i := range rows {
			if used[i] || !rows[i].MatchesLeg(leg) {
				continue
			}
			used[i] = true
			matched = append(matched, &rows[i])
			break
		}
	}
	if len(matched) == 0 {
		return nil, false
	}

	snap := &Snapshot{
		PositionSlug:    pos.Slug,
		Date:            date.Format(models.DateLayout),
		UnderlyingPrice: matched[0].UnderlyingPrice,
		IVRank:          matched[0].IVRank,
		PoP:             matched[0].PoP,
	}
	for _, row := range matched {
		snap.Delta += row.Delta
		snap.BetaDelta += row.BetaDelta
		snap.Theta += row.Theta
		snap.PnL += row.Ext.InexactFloat64()
	}
	if !pos.InitialCredit.IsZero() {
		pct := math.Round(snap.PnL/pos.InitialCredit.InexactFloat64()*100*100) / 100
		snap.PctMaxProfit = &pct
	}
	return snap, true
}
