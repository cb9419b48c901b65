// Package tracklog keeps the per-position time-series log and the
// closed-trade summary in a sqlite database. One snapshot row is appended
// per open position per tracking run; one closed-trade row is appended when
// a position is archived. The JSON position records stay authoritative;
// this database only feeds reporting.
package tracklog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/optjournal/optjournal/internal/models"
)

// Store wraps the sqlite tracking database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening tracking db: %w", err)
	}

	// WAL mode so the dashboard can read while a tracking run writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot is one tracking-run row for one position.
type Snapshot struct {
	PositionSlug    string
	Date            string // calendar date, models.DateLayout
	UnderlyingPrice *float64
	Delta           float64
	BetaDelta       float64
	Theta           float64
	IVRank          float64
	PoP             *float64
	PnL             float64
	PctMaxProfit    *float64
}

// AppendSnapshot inserts one tracking row.
func (s *Store) AppendSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (position_slug, date, underlying_price, delta,
			beta_delta, theta, iv_rank, pop, pnl, pct_max_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.PositionSlug, snap.Date, snap.UnderlyingPrice, snap.Delta,
		snap.BetaDelta, snap.Theta, snap.IVRank, snap.PoP, snap.PnL, snap.PctMaxProfit,
	)
	return err
}

// Snapshots returns all tracking rows for one position, oldest first.
func (s *Store) Snapshots(ctx context.Context, slug string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_slug, date, underlying_price, delta, beta_delta,
			theta, iv_rank, pop, pnl, pct_max_profit
		FROM snapshots WHERE position_slug = ? ORDER BY date, id`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.PositionSlug, &snap.Date, &snap.UnderlyingPrice,
			&snap.Delta, &snap.BetaDelta, &snap.Theta, &snap.IVRank,
			&snap.PoP, &snap.PnL, &snap.PctMaxProfit); err != nil {
			return nil, err
		}
		results = append(results, snap)
	}
	return results, rows.Err()
}

// ClosedTrade is one row of the closed-trade summary.
type ClosedTrade struct {
	PositionSlug string
	Strategy     string
	Ticker       string
	Opened       string
	Closed       string
	PnL          float64
	Tags         string // comma-joined
}

// RecordClosed appends the summary row for an archived position. It
// implements the engine's ClosedRecorder. Replaying an archive is a no-op
// thanks to the slug primary key.
func (s *Store) RecordClosed(pos *models.Position) error {
	pnl := 0.0
	if pos.RealizedPnL != nil {
		pnl = pos.RealizedPnL.InexactFloat64()
	}
	closed := ""
	if !pos.Closed.IsZero() {
		closed = pos.Closed.Format(models.DateLayout)
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO closed_trades (position_slug, strategy, ticker,
			opened, closed, pnl, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pos.Slug, pos.Strategy, pos.Ticker,
		pos.Opened.Format(models.DateLayout), closed, pnl, strings.Join(pos.Tags, ","),
	)
	return err
}

// ClosedTrades returns the full summary, oldest close first.
func (s *Store) ClosedTrades(ctx context.Context) ([]ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_slug, strategy, ticker, opened, closed, pnl, tags
		FROM closed_trades ORDER BY closed, position_slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ClosedTrade
	for rows.Next() {
		var ct ClosedTrade
		if err := rows.Scan(&ct.PositionSlug, &ct.Strategy, &ct.Ticker,
			&ct.Opened, &ct.Closed, &ct.PnL, &ct.Tags); err != nil {
			return nil, err
		}
		results = append(results, ct)
	}
	return results, rows.Err()
}

// StrategyPnL is a row from the v_closed_by_strategy view.
type StrategyPnL struct {
	Strategy string
	Trades   int
	TotalPnL float64
	AvgPnL   float64
}

// ClosedByStrategy returns per-strategy totals over the closed summary.
func (s *Store) ClosedByStrategy(ctx context.Context) ([]StrategyPnL, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy, trades, total_pnl, avg_pnl FROM v_closed_by_strategy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StrategyPnL
	for rows.Next() {
		var sp StrategyPnL
		if err := rows.Scan(&sp.Strategy, &sp.Trades, &sp.TotalPnL, &sp.AvgPnL); err != nil {
			return nil, err
		}
		results = append(results, sp)
	}
	return results, rows.Err()
}
