package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mar21() time.Time { return time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC) }

func shortPut(strike float64) Leg {
	return Leg{
		Type:       OptionPut,
		Ticker:     "SPY",
		Side:       SideShort,
		Strike:     decimal.NewFromFloat(strike),
		Expiry:     mar21(),
		Contracts:  1,
		EntryPrice: decimal.NewFromFloat(1.50),
	}
}

func TestNewPosition(t *testing.T) {
	opened := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	pos := NewPosition("SPY", opened)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, StatusOpen, pos.Status)
	assert.Equal(t, "SPY", pos.Ticker)
	assert.True(t, pos.Closed.IsZero())

	other := NewPosition("SPY", opened)
	assert.NotEqual(t, pos.ID, other.ID)
}

func TestSameContract(t *testing.T) {
	base := shortPut(100)

	same := shortPut(100)
	same.Contracts = 3
	same.EntryPrice = decimal.NewFromFloat(9.99)
	assert.True(t, base.SameContract(&same), "count and price must not matter")

	// Expiry compares by calendar day, not instant.
	sameDay := shortPut(100)
	sameDay.Expiry = time.Date(2025, 3, 21, 15, 30, 0, 0, time.UTC)
	assert.True(t, base.SameContract(&sameDay))

	tests := []struct {
		name   string
		mutate func(*Leg)
	}{
		{"different type", func(l *Leg) { l.Type = OptionCall }},
		{"different side", func(l *Leg) { l.Side = SideLong }},
		{"different strike", func(l *Leg) { l.Strike = decimal.NewFromInt(105) }},
		{"different ticker", func(l *Leg) { l.Ticker = "QQQ" }},
		{"different expiry", func(l *Leg) { l.Expiry = l.Expiry.AddDate(0, 1, 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := shortPut(100)
			tt.mutate(&other)
			assert.False(t, base.SameContract(&other))
		})
	}
}

func TestFindActiveLegFirstMatch(t *testing.T) {
	pos := NewPosition("SPY", mar21())
	first := shortPut(100)
	second := shortPut(100)
	pos.Legs = []Leg{first, second}

	want := shortPut(100)
	got := pos.FindActiveLeg(&want)
	require.NotNil(t, got)
	assert.Same(t, &pos.Legs[0], got)

	// Terminal legs are skipped, so a replay lands on the next active one.
	pos.Legs[0].Status = LegClosed
	got = pos.FindActiveLeg(&want)
	require.NotNil(t, got)
	assert.Same(t, &pos.Legs[1], got)

	pos.Legs[1].Status = LegExpired
	assert.Nil(t, pos.FindActiveLeg(&want))
}

func TestActiveLegsAndTerminal(t *testing.T) {
	pos := NewPosition("SPY", mar21())
	assert.False(t, pos.AllLegsTerminal(), "a position with no legs is not terminal")

	pos.Legs = []Leg{shortPut(100), shortPut(95)}
	assert.Len(t, pos.ActiveLegs(), 2)
	assert.False(t, pos.AllLegsTerminal())

	pos.Legs[0].Status = LegClosed
	assert.Len(t, pos.ActiveLegs(), 1)

	pos.Legs[1].Status = LegExpired
	assert.Empty(t, pos.ActiveLegs())
	assert.True(t, pos.AllLegsTerminal())
}

func TestNetCreditFromActiveLegs(t *testing.T) {
	pos := NewPosition("SPY", mar21())

	short := shortPut(100)
	short.Contracts = 2
	short.EntryPrice = decimal.NewFromFloat(1.50)

	long := shortPut(95)
	long.Side = SideLong
	long.EntryPrice = decimal.NewFromFloat(0.60)

	closed := shortPut(110)
	closed.Status = LegClosed
	closed.EntryPrice = decimal.NewFromFloat(5.00)

	pos.Legs = []Leg{short, long, closed}

	// 2*1.50 - 0.60, the closed leg contributes nothing.
	assert.Equal(t, "2.40", pos.NetCreditFromActiveLegs().StringFixed(2))
}

func TestTagsAndOrderIDs(t *testing.T) {
	pos := NewPosition("SPY", mar21())

	pos.AddTag("rolled")
	pos.AddTag("rolled")
	assert.Equal(t, []string{"rolled"}, pos.Tags)
	assert.True(t, pos.HasTag("rolled"))
	assert.False(t, pos.HasTag("earnings"))

	pos.AddOrderIDs("1001", "", "1002", "1001")
	assert.Equal(t, []string{"1001", "1002"}, pos.OrderIDs)
}

func TestAppendNote(t *testing.T) {
	pos := NewPosition("SPY", mar21())
	pos.AppendNote("first")
	pos.AppendNote("second")
	assert.Equal(t, "first\nsecond", pos.Notes)
}

func TestHoldDays(t *testing.T) {
	pos := NewPosition("SPY", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 0, pos.HoldDays())

	pos.Closed = time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, pos.HoldDays())
}

func TestPositionJSONOmitsEmptyLifecycleFields(t *testing.T) {
	pos := NewPosition("SPY", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	pos.Legs = []Leg{shortPut(100)}

	data, err := json.Marshal(pos)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"closed"`)
	assert.NotContains(t, string(data), `"realized_pnl"`)
	assert.NotContains(t, string(data), `"status":""`)

	pnl := decimal.NewFromFloat(42.50)
	pos.Closed = time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	pos.RealizedPnL = &pnl
	pos.Legs[0].Status = LegExpired

	data, err = json.Marshal(pos)
	require.NoError(t, err)

	var back Position
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, SameDay(pos.Closed, back.Closed))
	require.NotNil(t, back.RealizedPnL)
	assert.True(t, pnl.Equal(*back.RealizedPnL))
	assert.Equal(t, LegExpired, back.Legs[0].Status)
}

func TestEventLegConversion(t *testing.T) {
	ev := LegEvent{
		Instrument: Instrument{
			Ticker: "SPY",
			Type:   OptionPut,
			Strike: decimal.NewFromInt(100),
			Expiry: mar21(),
		},
		Intent:    IntentOpen,
		Side:      SideShort,
		Contracts: 2,
		Price:     decimal.NewFromFloat(1.50),
	}
	leg := ev.Leg()
	assert.Equal(t, "SPY", leg.Ticker)
	assert.Equal(t, SideShort, leg.Side)
	assert.Equal(t, 2, leg.Contracts)
	assert.True(t, leg.Active())
}

func TestInstrumentComplete(t *testing.T) {
	full := Instrument{Ticker: "SPY", Type: OptionPut, Strike: decimal.NewFromInt(100), Expiry: mar21()}
	assert.True(t, full.Complete())

	missing := full
	missing.Strike = decimal.Zero
	assert.False(t, missing.Complete())

	noExpiry := full
	noExpiry.Expiry = time.Time{}
	assert.False(t, noExpiry.Complete())
}
