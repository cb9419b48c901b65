package tastytrade

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optjournal/optjournal/internal/models"
)

// Positions-export column names.
const (
	posColStrike     = "Strike Price"
	posColCallPut    = "Call/Put"
	posColExpDate    = "Exp Date"
	posColDelta      = "Delta"
	posColBetaDelta  = "β Delta"
	posColTheta      = "Theta"
	posColIVRank     = "IV Rank"
	posColPoP        = "PoP"
	posColExt        = "Ext"
	posColUnderlying = "Underlying"
)

// PositionRow is one option row from the live positions export. Numeric
// fields the export leaves blank or renders unparseable come back nil.
type PositionRow struct {
	Strike          decimal.Decimal
	Type            models.OptionType
	ExpDate         string // raw, formats vary across exports
	Delta           float64
	BetaDelta       float64
	Theta           float64
	IVRank          float64
	PoP             *float64
	Ext             decimal.Decimal // extrinsic value, the per-leg PnL proxy
	UnderlyingPrice *float64
}

// ReadPositions parses the live positions export. Rows without a strike or
// option type (futures, equity rows) are skipped.
func ReadPositions(f io.Reader) ([]PositionRow, error) {
	rows, err := readHeadered(f)
	if err != nil {
		return nil, fmt.Errorf("reading positions export: %w", err)
	}

	var out []PositionRow
	for _, row := range rows {
		var typ models.OptionType
		switch strings.ToLower(strings.TrimSpace(row[posColCallPut])) {
		case "put":
			typ = models.OptionPut
		case "call":
			typ = models.OptionCall
		default:
			continue
		}
		strike, err := parseAmount(row[posColStrike])
		if err != nil || strike.IsZero() {
			continue
		}
		ext, err := parseAmount(row[posColExt])
		if err != nil {
			continue
		}

		out = append(out, PositionRow{
			Strike:          strike,
			Type:            typ,
			ExpDate:         strings.TrimSpace(row[posColExpDate]),
			Delta:           floatOrZero(row[posColDelta]),
			BetaDelta:       floatOrZero(row[posColBetaDelta]),
			Theta:           floatOrZero(row[posColTheta]),
			IVRank:          floatOrZero(row[posColIVRank]),
			PoP:             floatOrNil(strings.TrimSuffix(strings.TrimSpace(row[posColPoP]), "%")),
			Ext:             ext,
			UnderlyingPrice: floatOrNil(row[posColUnderlying]),
		})
	}
	return out, nil
}

// MatchesLeg ties a positions-export row to a stored leg by strike, option
// type and expiry. Exp Date formats drift between exports, so the row date
// is parsed when possible and otherwise matched on the day-of-month
// substring.
func (r *PositionRow) MatchesLeg(leg *models.Leg) bool {
	if r.Type != leg.Type || !r.Strike.Equal(leg.Strike) {
		return false
	}
	for _, layout := range expDateLayouts {
		if d, err := time.Parse(layout, r.ExpDate); err == nil {
			return models.SameDay(d, leg.Expiry)
		}
	}
	return strings.Contains(r.ExpDate, leg.Expiry.Format("02"))
}

var expDateLayouts = []string{
	"2006-01-02",
	"1/2/06",
	"01/02/2006",
	"Jan 2, 2006",
	"Jan 02 2006",
	"2 Jan 06",
}

func floatOrZero(raw string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 64)
	if err != nil {
		return 0
	}
	return f
}

func floatOrNil(raw string) *float64 {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
