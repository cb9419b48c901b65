// Package stats summarizes performance over archived positions.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/optjournal/optjournal/internal/models"
)

// Group is one aggregation bucket (a strategy, a ticker or a tag).
type Group struct {
	Key      string          `json:"key"`
	Count    int             `json:"count"`
	TotalPnL decimal.Decimal `json:"totalPnl"`
	AvgPnL   decimal.Decimal `json:"avgPnl"`
}

// Report is the full analytics summary over closed trades.
type Report struct {
	TotalTrades int             `json:"totalTrades"`
	Winners     int             `json:"winners"`
	WinRate     float64         `json:"winRate"` // percent
	AvgHoldDays float64         `json:"avgHoldDays"`
	TotalPnL    decimal.Decimal `json:"totalPnl"`
	AvgPnL      decimal.Decimal `json:"avgPnl"`
	ByStrategy  []Group         `json:"byStrategy"`
	ByTicker    []Group         `json:"byTicker"`
	ByTag       []Group         `json:"byTag"`
}

// Compute builds the report from archived positions. Records without a close
// date are skipped; a position counts as a winner only on positive PnL.
func Compute(positions []*models.Position) *Report {
	r := &Report{
		TotalPnL: decimal.Zero,
		AvgPnL:   decimal.Zero,
	}

	byStrategy := map[string][]decimal.Decimal{}
	byTicker := map[string][]decimal.Decimal{}
	byTag := map[string][]decimal.Decimal{}

	holdDays := 0
	for _, pos := range positions {
		if pos.Closed.IsZero() {
			continue
		}
		pnl := decimal.Zero
		if pos.RealizedPnL != nil {
			pnl = *pos.RealizedPnL
		}

		r.TotalTrades++
		if pnl.IsPositive() {
			r.Winners++
		}
		holdDays += pos.HoldDays()
		r.TotalPnL = r.TotalPnL.Add(pnl)

		byStrategy[pos.Strategy] = append(byStrategy[pos.Strategy], pnl)
		byTicker[pos.Ticker] = append(byTicker[pos.Ticker], pnl)
		for _, tag := range pos.Tags {
			byTag[tag] = append(byTag[tag], pnl)
		}
	}

	if r.TotalTrades > 0 {
		r.WinRate = float64(r.Winners) / float64(r.TotalTrades) * 100
		r.AvgHoldDays = float64(holdDays) / float64(r.TotalTrades)
		r.AvgPnL = r.TotalPnL.DivRound(decimal.NewFromInt(int64(r.TotalTrades)), 2)
	}
	r.TotalPnL = r.TotalPnL.Round(2)

	r.ByStrategy = buildGroups(byStrategy)
	r.ByTicker = buildGroups(byTicker)
	r.ByTag = buildGroups(byTag)
	return r
}

func buildGroups(buckets map[string][]decimal.Decimal) []Group {
	groups := make([]Group, 0, len(buckets))
	for key, pnls := range buckets {
		total := decimal.Zero
		for _, p := range pnls {
			total = total.Add(p)
		}
		groups = append(groups, Group{
			Key:      key,
			Count:    len(pnls),
			TotalPnL: total.Round(2),
			AvgPnL:   total.DivRound(decimal.NewFromInt(int64(len(pnls))), 2),
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// Render writes the report as the plain-text summary the stats command prints.
func (r *Report) Render(w io.Writer) {
	if r.TotalTrades == 0 {
		fmt.Fprintln(w, "No closed trades found in the archive.")
		return
	}

	fmt.Fprintln(w, "Overall Summary")
	fmt.Fprintln(w, "---------------")
	fmt.Fprintf(w, "Total trades: %d\n", r.TotalTrades)
	fmt.Fprintf(w, "Win rate: %.1f%%\n", r.WinRate)
	fmt.Fprintf(w, "Average hold time: %.1f days\n", r.AvgHoldDays)
	fmt.Fprintf(w, "Total PnL: $%s\n", r.TotalPnL.StringFixed(2))
	fmt.Fprintf(w, "Average PnL per trade: $%s\n", r.AvgPnL.StringFixed(2))

	renderGroups(w, "By Strategy", r.ByStrategy)
	renderGroups(w, "By Ticker", r.ByTicker)
	renderGroups(w, "By Tag", r.ByTag)
}

func renderGroups(w io.Writer, heading string, groups []Group) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n%s\n", heading, strings.Repeat("-", len(heading)))
	for _, g := range groups {
		fmt.Fprintf(w, "%-16s count=%-4d total=$%-12s avg=$%s\n",
			g.Key, g.Count, g.TotalPnL.StringFixed(2), g.AvgPnL.StringFixed(2))
	}
}
