package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Intent says whether a leg event opens or offsets a position leg.
type Intent string

const (
	// IntentOpen establishes a new leg.
	IntentOpen Intent = "open"
	// IntentClose offsets an existing leg.
	IntentClose Intent = "close"
	// IntentExpire marks contracts lapsing worthless at expiration.
	IntentExpire Intent = "expire"
)

// Instrument is the full identity of one option contract.
type Instrument struct {
	Ticker string          // normalized root symbol
	Type   OptionType
	Strike decimal.Decimal
	Expiry time.Time
}

// Complete reports whether every identity field is populated. Events with an
// incomplete instrument must not enter the reconciliation engine.
func (i Instrument) Complete() bool {
	return i.Ticker != "" && i.Type.Valid() && i.Strike.IsPositive() && !i.Expiry.IsZero()
}

// LegEvent is one normalized broker transaction row: a single fill (or
// expiration) against a single option contract.
type LegEvent struct {
	Instrument Instrument
	Intent     Intent
	Side       Side            // resulting position side, not trade direction
	Contracts  int             // positive contract count
	Price      decimal.Decimal // per-contract, sign-normalized
	Fees       decimal.Decimal // non-negative
	GrossValue decimal.Decimal // signed cash effect: credit positive, debit negative
	OrderID    string          // may be empty
	TradeDate  time.Time
}

// Leg builds the persisted leg this event would establish.
func (e *LegEvent) Leg() Leg {
	return Leg{
		Type:       e.Instrument.Type,
		Ticker:     e.Instrument.Ticker,
		Side:       e.Side,
		Strike:     e.Instrument.Strike,
		Expiry:     e.Instrument.Expiry,
		Contracts:  e.Contracts,
		EntryPrice: e.Price,
	}
}
