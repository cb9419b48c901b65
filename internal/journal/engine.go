// Package journal implements the position reconciliation engine: it groups
// normalized broker events into order batches, matches them against open
// position records, and applies create, roll, expiration and close
// mutations.
//
// The same logical position is observed only through a sequence of partial
// order-level mutations, so the engine has to merge them, tolerate
// double-reported rows, and decide when a position's life is over.
package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/optjournal/optjournal/internal/classify"
	"github.com/optjournal/optjournal/internal/models"
	"github.com/optjournal/optjournal/internal/storage"
)

// TagRolled is added to a position on every roll merge.
const TagRolled = "rolled"

// ClosedRecorder receives positions at the moment they are archived, so the
// closed-trade summary can be appended outside the engine.
type ClosedRecorder interface {
	RecordClosed(pos *models.Position) error
}

// Engine reconciles leg events against the position store. All processing is
// synchronous and single-threaded; each mutation is staged in memory and
// written to storage only after it has fully computed.
type Engine struct {
	store    storage.Interface
	recorder ClosedRecorder // may be nil
	logger   *logrus.Logger
}

// NewEngine wires the engine to a store and an optional closed-trade
// recorder.
func NewEngine(store storage.Interface, recorder ClosedRecorder, logger *logrus.Logger) *Engine {
	return &Engine{store: store, recorder: recorder, logger: logger}
}

// OpenPosition builds a fresh position from a batch of opening events. All
// events must share the trade date and normalized root ticker, carry a
// complete instrument, and have open intent; a closing trade cannot start a
// position.
func (e *Engine) OpenPosition(events []models.LegEvent) (*models.Position, error) {
	if err := validateBatch(events); err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].Intent != models.IntentOpen {
			return nil, fmt.Errorf("%w: cannot open a position with a %s event (%s)",
				ErrValidation, events[i].Intent, describeEvent(&events[i]))
		}
	}

	pos := models.NewPosition(events[0].Instrument.Ticker, events[0].TradeDate)
	gross, fees := decimal.Zero, decimal.Zero
	for i := range events {
		ev := &events[i]
		pos.Legs = append(pos.Legs, ev.Leg())
		gross = gross.Add(ev.GrossValue)
		fees = fees.Add(ev.Fees)
		pos.AddOrderIDs(ev.OrderID)
	}
	pos.InitialCredit = gross.Sub(fees).Round(2)
	pos.Strategy = classify.Label(pos.Legs)

	e.logger.WithFields(logrus.Fields{
		"ticker":   pos.Ticker,
		"strategy": pos.Strategy,
		"credit":   pos.InitialCredit.String(),
		"legs":     len(pos.Legs),
	}).Info("opened position")
	return pos, nil
}

// MergeRoll applies a roll batch to an existing position: closing events
// mark the first matching active leg closed, opening events append new legs.
// Unmatched closing events are dropped with a warning; broker exports
// occasionally double-report fills and a replayed close finds its leg
// already closed. The merge is idempotent at the leg level only: roll count,
// tags and notes still advance on replay, so callers must merge each order
// batch at most once (tracked via order ids upstream).
func (e *Engine) MergeRoll(pos *models.Position, events []models.LegEvent) error {
	if err := validateBatch(events); err != nil {
		return err
	}

	var rollFees = decimal.Zero
	var orderRefs []string
	for i := range events {
		ev := &events[i]
		rollFees = rollFees.Add(ev.Fees)
		if ev.OrderID != "" {
			orderRefs = append(orderRefs, ev.OrderID)
		}

		switch ev.Intent {
		case models.IntentClose:
			want := ev.Leg()
			if n := countActiveMatches(pos, &want); n > 1 {
				e.logger.WithField("event", describeEvent(ev)).
					Warn("ambiguous close match, using first active leg in record order")
			}
			if leg := pos.FindActiveLeg(&want); leg != nil {
				leg.Status = models.LegClosed
			} else {
				e.logger.WithFields(logrus.Fields{
					"position": pos.Slug,
					"event":    describeEvent(ev),
				}).Warn("no active leg matches closing event, dropping")
			}
		case models.IntentOpen:
			pos.Legs = append(pos.Legs, ev.Leg())
		default:
			return fmt.Errorf("%w: unexpected %s event in roll batch", ErrValidation, ev.Intent)
		}
	}

	pos.RollCount++
	pos.AddTag(TagRolled)
	pos.AppendNote(fmt.Sprintf("Rolled on %s (order #%s)",
		events[0].TradeDate.Format(models.DateLayout), orderRef(orderRefs)))
	// Fresh sum over active legs rather than an incremental update, to avoid
	// drift across repeated rolls. Netting only this batch's fees is an
	// accepted approximation.
	pos.InitialCredit = pos.NetCreditFromActiveLegs().Sub(rollFees).Round(2)
	pos.AddOrderIDs(orderRefs...)
	return nil
}

// ApplyExpirations marks active short legs whose contracts lapsed worthless.
// A leg matches only on exact (strike, expiry, type, short side, contract
// count). When every leg has reached a terminal status the position is
// closed with the last processed expiry date; the caller archives. Returns
// whether anything changed and whether the position is now terminal.
func (e *Engine) ApplyExpirations(pos *models.Position, events []models.LegEvent) (modified, terminal bool) {
	var lastExpiry time.Time
	for i := range events {
		ev := &events[i]
		lastExpiry = ev.Instrument.Expiry
		leg := findExpiringLeg(pos, ev)
		if leg == nil {
			continue
		}
		leg.Status = models.LegExpired
		pos.AppendNote(fmt.Sprintf("Expired worthless: %s %s (%s)",
			strings.ToUpper(string(leg.Type)), leg.Strike.String(), leg.Expiry.Format(models.DateLayout)))
		modified = true
	}
	if modified && pos.AllLegsTerminal() {
		pos.Status = models.StatusClosed
		pos.Closed = lastExpiry
		pos.AppendNote(fmt.Sprintf("Closed via expiration on %s", lastExpiry.Format(models.DateLayout)))
		terminal = true
	}
	return modified, terminal
}

// CloseExplicit terminates a position whose remaining active legs are fully
// accounted for by the closing events. Realized PnL is the net cash of the
// closing batch. Individual leg statuses are left as they are; the
// position-level status is the terminal record.
func (e *Engine) CloseExplicit(pos *models.Position, events []models.LegEvent, closeDate time.Time) error {
	if err := validateBatch(events); err != nil {
		return err
	}
	pnl := decimal.Zero
	for i := range events {
		pnl = pnl.Add(events[i].GrossValue.Sub(events[i].Fees))
		pos.AddOrderIDs(events[i].OrderID)
	}
	pnl = pnl.Round(2)
	e.close(pos, pnl, closeDate)
	return nil
}

// CloseManual terminates a position with a caller-supplied realized PnL.
func (e *Engine) CloseManual(pos *models.Position, pnl decimal.Decimal, closeDate time.Time) {
	e.close(pos, pnl.Round(2), closeDate)
}

func (e *Engine) close(pos *models.Position, pnl decimal.Decimal, closeDate time.Time) {
	pos.Status = models.StatusClosed
	pos.Closed = closeDate
	pos.RealizedPnL = &pnl
	pos.AppendNote(fmt.Sprintf("Closed on %s (realized PnL %s)",
		closeDate.Format(models.DateLayout), pnl.String()))
	e.logger.WithFields(logrus.Fields{
		"position": pos.Slug,
		"pnl":      pnl.String(),
	}).Info("closed position")
}

// validateBatch enforces the engine entry invariants: a non-empty batch of
// fully-specified instruments sharing one trade date and root ticker.
func validateBatch(events []models.LegEvent) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: empty event batch", ErrValidation)
	}
	first := &events[0]
	for i := range events {
		ev := &events[i]
		if !ev.Instrument.Complete() {
			return fmt.Errorf("%w: incomplete instrument in event (%s)", ErrValidation, describeEvent(ev))
		}
		if ev.Contracts <= 0 {
			return fmt.Errorf("%w: non-positive contract count in event (%s)", ErrValidation, describeEvent(ev))
		}
		if !models.SameDay(ev.TradeDate, first.TradeDate) {
			return fmt.Errorf("%w: batch spans trade dates %s and %s", ErrValidation,
				first.TradeDate.Format(models.DateLayout), ev.TradeDate.Format(models.DateLayout))
		}
		if ev.Instrument.Ticker != first.Instrument.Ticker {
			return fmt.Errorf("%w: batch spans tickers %s and %s", ErrValidation,
				first.Instrument.Ticker, ev.Instrument.Ticker)
		}
	}
	return nil
}

func countActiveMatches(pos *models.Position, want *models.Leg) int {
	n := 0
	for i := range pos.Legs {
		l := &pos.Legs[i]
		if l.Active() && l.SameContract(want) {
			n++
		}
	}
	return n
}

// findExpiringLeg requires an exact (strike, expiry, type, short, contracts)
// match; expiration events always describe a short position's contracts
// lapsing.
func findExpiringLeg(pos *models.Position, ev *models.LegEvent) *models.Leg {
	for i := range pos.Legs {
		l := &pos.Legs[i]
		if l.Active() &&
			l.Side == models.SideShort &&
			l.Type == ev.Instrument.Type &&
			l.Strike.Equal(ev.Instrument.Strike) &&
			models.SameDay(l.Expiry, ev.Instrument.Expiry) &&
			l.Contracts == ev.Contracts {
			return l
		}
	}
	return nil
}

func describeEvent(ev *models.LegEvent) string {
	return fmt.Sprintf("%s %s %s %s %s exp %s", ev.Intent, ev.Side, ev.Instrument.Ticker,
		ev.Instrument.Type, ev.Instrument.Strike.String(), ev.Instrument.Expiry.Format(models.DateLayout))
}

func orderRef(ids []string) string {
	if len(ids) == 0 {
		return "n/a"
	}
	return strings.Join(ids, ", #")
}
