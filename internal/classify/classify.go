// Package classify labels a set of option legs with a named strategy using
// structural pattern matching: leg counts by type and side, strike ordering
// and expiry relationships. It is a heuristic over a small fixed set of
// shapes, not a general strategy solver; new shapes are added by inserting a
// rule at the right priority.
package classify

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/optjournal/optjournal/internal/models"
)

// Recognized strategy labels.
const (
	Calendar112      = "Calendar 1-1-2"
	Strangle         = "Strangle"
	IronCondor       = "Iron Condor"
	PutCondor        = "Put Condor"
	BrokenWingCondor = "Broken Wing Put Condor"
	RatioSpread112   = "Ratio Spread (1-1-2)"
	PutVertical      = "Put Vertical"
	CallVertical     = "Call Vertical"
	PutSpread        = "Put Spread"
	CallSpread       = "Call Spread"
	ShortPut         = "Short Put"
	ShortCall        = "Short Call"
	Unnamed          = "Unnamed"
)

// wingTolerance is the max strike-width difference for a condor to count as
// symmetric.
var wingTolerance = decimal.NewFromFloat(0.01)

// fingerprint is an order-independent summary of a leg set. Legs are
// partitioned by (type, side) so classification cannot depend on input
// order.
type fingerprint struct {
	legs       []models.Leg
	puts       []models.Leg
	calls      []models.Leg
	shortPuts  []models.Leg
	longPuts   []models.Leg
	shortCalls []models.Leg
	longCalls  []models.Leg
}

func fingerprintOf(legs []models.Leg) *fingerprint {
	fp := &fingerprint{legs: legs}
	for _, l := range legs {
		switch {
		case l.Type == models.OptionPut && l.Side == models.SideShort:
			fp.puts = append(fp.puts, l)
			fp.shortPuts = append(fp.shortPuts, l)
		case l.Type == models.OptionPut:
			fp.puts = append(fp.puts, l)
			fp.longPuts = append(fp.longPuts, l)
		case l.Type == models.OptionCall && l.Side == models.SideShort:
			fp.calls = append(fp.calls, l)
			fp.shortCalls = append(fp.shortCalls, l)
		default:
			fp.calls = append(fp.calls, l)
			fp.longCalls = append(fp.longCalls, l)
		}
	}
	return fp
}

func (fp *fingerprint) shorts() int { return len(fp.shortPuts) + len(fp.shortCalls) }
func (fp *fingerprint) longs() int  { return len(fp.longPuts) + len(fp.longCalls) }

// rules are evaluated in priority order; the first match wins. Some leg sets
// satisfy multiple loose predicates, so order matters.
var rules = []struct {
	name  string
	match func(fp *fingerprint) (string, bool)
}{
	{"calendar-112", matchCalendar112},
	{"strangle", matchStrangle},
	{"iron-condor", matchIronCondor},
	{"put-condor", matchPutCondor},
	{"ratio-112", matchRatioSpread112},
	{"two-leg", matchTwoLeg},
	{"single-short", matchSingleShort},
}

// Label classifies a leg set. It is pure, total (falls back to Unnamed) and
// independent of input order.
func Label(legs []models.Leg) string {
	fp := fingerprintOf(legs)
	for _, r := range rules {
		if label, ok := r.match(fp); ok {
			return label
		}
	}
	return Unnamed
}

// matchCalendar112 matches three puts, two short and one long, where the
// long put forms a debit spread at one short put's expiry while the other
// short put sits at a different (nearer) expiry.
func matchCalendar112(fp *fingerprint) (string, bool) {
	if len(fp.legs) != 3 || len(fp.puts) != 3 || len(fp.shortPuts) != 2 || len(fp.longPuts) != 1 {
		return "", false
	}
	long := fp.longPuts[0]
	var atLongExpiry, elsewhere int
	for _, s := range fp.shortPuts {
		if models.SameDay(s.Expiry, long.Expiry) {
			atLongExpiry++
		} else if !s.Expiry.After(long.Expiry) {
			elsewhere++
		}
	}
	return Calendar112, atLongExpiry == 1 && elsewhere == 1
}

func matchStrangle(fp *fingerprint) (string, bool) {
	ok := len(fp.legs) == 2 && len(fp.shortPuts) == 1 && len(fp.shortCalls) == 1
	return Strangle, ok
}

func matchIronCondor(fp *fingerprint) (string, bool) {
	ok := len(fp.legs) == 4 &&
		len(fp.shortPuts) == 1 && len(fp.longPuts) == 1 &&
		len(fp.shortCalls) == 1 && len(fp.longCalls) == 1
	return IronCondor, ok
}

// matchPutCondor matches four puts at one expiry forming
// long-short-short-long by ascending strike. Symmetric wings (within
// wingTolerance) are a Put Condor, anything else a broken wing.
func matchPutCondor(fp *fingerprint) (string, bool) {
	if len(fp.legs) != 4 || len(fp.puts) != 4 || len(fp.shortPuts) != 2 || len(fp.longPuts) != 2 {
		return "", false
	}
	for _, l := range fp.puts[1:] {
		if !models.SameDay(l.Expiry, fp.puts[0].Expiry) {
			return "", false
		}
	}
	byStrike := make([]models.Leg, len(fp.puts))
	copy(byStrike, fp.puts)
	sort.Slice(byStrike, func(i, j int) bool {
		return byStrike[i].Strike.LessThan(byStrike[j].Strike)
	})
	sides := []models.Side{models.SideLong, models.SideShort, models.SideShort, models.SideLong}
	for i, want := range sides {
		if byStrike[i].Side != want {
			return "", false
		}
	}
	lowerWing := byStrike[1].Strike.Sub(byStrike[0].Strike)
	upperWing := byStrike[3].Strike.Sub(byStrike[2].Strike)
	if lowerWing.Sub(upperWing).Abs().LessThanOrEqual(wingTolerance) {
		return PutCondor, true
	}
	return BrokenWingCondor, true
}

// matchRatioSpread112 matches three puts, two short at the same expiry plus
// one long. Evaluated after the calendar rule, so cross-expiry shapes have
// already been taken.
func matchRatioSpread112(fp *fingerprint) (string, bool) {
	if len(fp.legs) != 3 || len(fp.puts) != 3 || len(fp.shortPuts) != 2 || len(fp.longPuts) != 1 {
		return "", false
	}
	ok := models.SameDay(fp.shortPuts[0].Expiry, fp.shortPuts[1].Expiry)
	return RatioSpread112, ok
}

func matchTwoLeg(fp *fingerprint) (string, bool) {
	if len(fp.legs) != 2 {
		return "", false
	}
	switch {
	case len(fp.puts) == 2:
		if len(fp.shortPuts) == 1 {
			return PutVertical, true
		}
		return PutSpread, true
	case len(fp.calls) == 2:
		if len(fp.shortCalls) == 1 {
			return CallVertical, true
		}
		return CallSpread, true
	}
	return "", false
}

func matchSingleShort(fp *fingerprint) (string, bool) {
	if len(fp.legs) != 1 || fp.shorts() != 1 {
		return "", false
	}
	if len(fp.shortPuts) == 1 {
		return ShortPut, true
	}
	return ShortCall, true
}
