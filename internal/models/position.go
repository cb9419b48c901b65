// Package models defines the persisted journal entities: positions and their
// option legs.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OptionType identifies the option contract kind.
type OptionType string

const (
	// OptionPut is a put option.
	OptionPut OptionType = "put"
	// OptionCall is a call option.
	OptionCall OptionType = "call"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == OptionPut || t == OptionCall
}

// Side is the resulting position side of a leg, not the trade direction.
type Side string

const (
	// SideShort means premium was sold.
	SideShort Side = "short"
	// SideLong means premium was bought.
	SideLong Side = "long"
)

// Valid returns true if the Side is one of the defined constants.
func (s Side) Valid() bool {
	return s == SideShort || s == SideLong
}

// LegStatus tracks a leg's lifecycle. The empty string means the leg is
// still active; transitions are one-way and terminal.
type LegStatus string

const (
	// LegActive is the zero value: the leg is still open.
	LegActive LegStatus = ""
	// LegClosed means the leg was bought or sold back.
	LegClosed LegStatus = "closed"
	// LegExpired means the leg lapsed worthless at expiration.
	LegExpired LegStatus = "expired"
)

// PositionStatus is the position-level lifecycle state.
type PositionStatus string

const (
	// StatusOpen marks a live position stored in the open directory.
	StatusOpen PositionStatus = "open"
	// StatusClosed marks a terminated position stored in the archive.
	StatusClosed PositionStatus = "closed"
)

// DateLayout is the calendar-date format used in notes, slugs and logs.
const DateLayout = "2006-01-02"

// Leg is one option contract position within a multi-leg strategy. Legs are
// immutable once created except for the Status transition.
type Leg struct {
	Type       OptionType      `json:"type"`
	Ticker     string          `json:"ticker"`
	Side       Side            `json:"side"`
	Strike     decimal.Decimal `json:"strike"`
	Expiry     time.Time       `json:"expiry"`
	Contracts  int             `json:"contracts"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Status     LegStatus       `json:"status,omitempty"`
}

// Active reports whether the leg has not reached a terminal status.
func (l *Leg) Active() bool {
	return l.Status == LegActive
}

// SameContract reports whether both legs reference the same option contract
// on the same side. Contract count and price are not part of the identity.
func (l *Leg) SameContract(other *Leg) bool {
	return l.Type == other.Type &&
		l.Ticker == other.Ticker &&
		l.Side == other.Side &&
		l.Strike.Equal(other.Strike) &&
		SameDay(l.Expiry, other.Expiry)
}

// Describe returns a short human-readable form, e.g. "short PUT 100 (2025-03-21)".
func (l *Leg) Describe() string {
	return fmt.Sprintf("%s %s %s (%s)",
		l.Side, strings.ToUpper(string(l.Type)), l.Strike.String(), l.Expiry.Format(DateLayout))
}

// Position is the aggregate journal record for one reconstructed strategy.
type Position struct {
	ID            string           `json:"id"`
	Slug          string           `json:"slug,omitempty"` // storage key, assigned by the store
	Strategy      string           `json:"strategy"`
	Ticker        string           `json:"ticker"`
	Status        PositionStatus   `json:"status"`
	Opened        time.Time        `json:"opened"`
	Closed        time.Time        `json:"closed,omitzero"`
	InitialCredit decimal.Decimal  `json:"initial_credit"`
	RealizedPnL   *decimal.Decimal `json:"realized_pnl,omitempty"`
	RollCount     int              `json:"roll_count"`
	OrderIDs      []string         `json:"order_ids"`
	Tags          []string         `json:"tags"`
	Notes         string           `json:"notes"`
	Legs          []Leg            `json:"legs"`
}

// NewPosition creates an open position shell with a fresh UUID. Legs, credit
// and classification are filled in by the reconciliation engine.
func NewPosition(ticker string, opened time.Time) *Position {
	return &Position{
		ID:       uuid.NewString(),
		Ticker:   ticker,
		Status:   StatusOpen,
		Opened:   opened,
		OrderIDs: make([]string, 0),
		Tags:     make([]string, 0),
		Legs:     make([]Leg, 0),
	}
}

// ActiveLegs returns pointers to all legs that have not reached a terminal
// status, in record order.
func (p *Position) ActiveLegs() []*Leg {
	var active []*Leg
	for i := range p.Legs {
		if p.Legs[i].Active() {
			active = append(active, &p.Legs[i])
		}
	}
	return active
}

// AllLegsTerminal reports whether every leg is closed or expired.
func (p *Position) AllLegsTerminal() bool {
	for i := range p.Legs {
		if p.Legs[i].Active() {
			return false
		}
	}
	return len(p.Legs) > 0
}

// FindActiveLeg returns the first active leg matching the given contract and
// side, or nil. First-match-in-list-order is the documented policy when
// duplicate strikes exist.
func (p *Position) FindActiveLeg(want *Leg) *Leg {
	for i := range p.Legs {
		l := &p.Legs[i]
		if l.Active() && l.SameContract(want) {
			return l
		}
	}
	return nil
}

// NetCreditFromActiveLegs recomputes the position credit from all currently
// active legs: a short leg contributes +entry*contracts, a long leg the
// negative. Result is rounded to cents. Fees are netted only at creation and
// at each roll, an accepted approximation.
func (p *Position) NetCreditFromActiveLegs() decimal.Decimal {
	total := decimal.Zero
	for i := range p.Legs {
		l := &p.Legs[i]
		if !l.Active() {
			continue
		}
		amount := l.EntryPrice.Mul(decimal.NewFromInt(int64(l.Contracts)))
		if l.Side == SideShort {
			total = total.Add(amount)
		} else {
			total = total.Sub(amount)
		}
	}
	return total.Round(2)
}

// AddTag appends the tag unless the position already carries it.
func (p *Position) AddTag(tag string) {
	if !p.HasTag(tag) {
		p.Tags = append(p.Tags, tag)
	}
}

// HasTag reports whether the position carries the given tag.
func (p *Position) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddOrderIDs appends order identifiers, skipping duplicates and blanks.
func (p *Position) AddOrderIDs(ids ...string) {
	for _, id := range ids {
		if id == "" || p.hasOrderID(id) {
			continue
		}
		p.OrderIDs = append(p.OrderIDs, id)
	}
}

func (p *Position) hasOrderID(id string) bool {
	for _, existing := range p.OrderIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// AppendNote adds a line to the append-only notes log.
func (p *Position) AppendNote(line string) {
	if p.Notes == "" {
		p.Notes = line
		return
	}
	p.Notes += "\n" + line
}

// HoldDays returns the number of calendar days the position was held, or
// zero while it is still open.
func (p *Position) HoldDays() int {
	if p.Closed.IsZero() {
		return 0
	}
	return int(p.Closed.Sub(p.Opened).Hours() / 24)
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
