package journal

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optjournal/optjournal/internal/models"
)

// Action is the kind of mutation a proposal would commit.
type Action string

const (
	// ActionOpen creates a new position record.
	ActionOpen Action = "open"
	// ActionRoll merges close+open legs into an existing position.
	ActionRoll Action = "roll"
	// ActionClose terminates a position from an all-closing batch.
	ActionClose Action = "close"
	// ActionExpire marks legs lapsed worthless, possibly terminating.
	ActionExpire Action = "expire"
)

// Batch is one atomic strategy action: all option trades for one underlying
// root on one trade date, regardless of broker order-id boundaries. That
// reconstructs combination trades posted as separate orders, at the known
// cost of merging two genuinely unrelated same-day same-ticker trades.
type Batch struct {
	TradeDate   time.Time
	Root        string
	Trades      []models.LegEvent
	Expirations []models.LegEvent
}

// GroupBatches partitions events by (trade date, normalized root), keeping
// expiration events separate from trades inside each batch. Batches come
// back ordered by date then root so imports are deterministic.
func GroupBatches(events []models.LegEvent) []Batch {
	index := make(map[string]*Batch)
	var keys []string
	for i := range events {
		ev := events[i]
		key := ev.TradeDate.Format(models.DateLayout) + "|" + ev.Instrument.Ticker
		b, ok := index[key]
		if !ok {
			b = &Batch{TradeDate: ev.TradeDate, Root: ev.Instrument.Ticker}
			index[key] = b
			keys = append(keys, key)
		}
		if ev.Intent == models.IntentExpire {
			b.Expirations = append(b.Expirations, ev)
		} else {
			b.Trades = append(b.Trades, ev)
		}
	}
	sort.Strings(keys)
	batches := make([]Batch, 0, len(keys))
	for _, key := range keys {
		batches = append(batches, *index[key])
	}
	return batches
}

// Proposal is a staged mutation offered to the caller for approval. Result
// holds the fully-computed position; nothing touches storage until Commit.
// The decision point can therefore live in a CLI prompt, an API, or a batch
// auto-approve without the engine knowing.
type Proposal struct {
	Action   Action
	Target   string // slug of the existing position, empty for ActionOpen
	Result   *models.Position
	Events   []models.LegEvent
	Terminal bool // for ActionExpire: all legs reached a terminal status
}

// Summary renders a one-line human-readable description for confirmation
// prompts.
func (p *Proposal) Summary() string {
	switch p.Action {
	case ActionOpen:
		return fmt.Sprintf("open %s %s on %s, %d leg(s), credit %s",
			p.Result.Ticker, p.Result.Strategy, p.Result.Opened.Format(models.DateLayout),
			len(p.Result.Legs), p.Result.InitialCredit.String())
	case ActionRoll:
		return fmt.Sprintf("roll %s (roll #%d, credit now %s)",
			p.Target, p.Result.RollCount, p.Result.InitialCredit.String())
	case ActionClose:
		return fmt.Sprintf("close %s (realized PnL %s)", p.Target, p.Result.RealizedPnL.String())
	case ActionExpire:
		if p.Terminal {
			return fmt.Sprintf("expire %s (all legs terminal, archiving)", p.Target)
		}
		return fmt.Sprintf("expire legs of %s", p.Target)
	}
	return string(p.Action)
}

// Plan reconciles one batch against the open positions and returns the
// staged mutations. Validation failures abort the whole batch; a roll or
// close batch that matches no open position returns ErrNoMatch so the caller
// can report it and move on.
func (e *Engine) Plan(batch Batch) ([]*Proposal, error) {
	open, err := e.store.ListOpen()
	if err != nil {
		return nil, fmt.Errorf("listing open positions: %w", err)
	}

	var proposals []*Proposal

	// Expirations first: they may settle legs the trade batch no longer
	// references. They apply to any open position holding the lapsed
	// contract. Trade proposals are then planned against the staged results,
	// never the pre-expiration records, so a later commit cannot overwrite an
	// expired leg status. Positions the expirations terminate are no longer
	// candidates for the trade batch at all.
	working := make([]*models.Position, 0, len(open))
	for _, pos := range open {
		staged, err := clonePosition(pos)
		if err != nil {
			return nil, err
		}
		modified, terminal := e.ApplyExpirations(staged, batch.Expirations)
		if !modified {
			working = append(working, pos)
			continue
		}
		proposals = append(proposals, &Proposal{
			Action:   ActionExpire,
			Target:   pos.Slug,
			Result:   staged,
			Events:   batch.Expirations,
			Terminal: terminal,
		})
		if !terminal {
			working = append(working, staged)
		}
	}

	if len(batch.Trades) == 0 {
		return proposals, nil
	}

	closes, opens := splitByIntent(batch.Trades)
	switch {
	case len(closes) > 0 && len(opens) > 0:
		p, err := e.planRoll(working, batch)
		if err != nil {
			return proposals, err
		}
		if p != nil {
			proposals = append(proposals, p)
		}
	case len(closes) > 0:
		p, err := e.planClose(working, batch)
		if err != nil {
			return proposals, err
		}
		proposals = append(proposals, p)
	default:
		pos, err := e.OpenPosition(batch.Trades)
		if err != nil {
			return proposals, err
		}
		proposals = append(proposals, &Proposal{Action: ActionOpen, Result: pos, Events: batch.Trades})
	}
	return proposals, nil
}

// planRoll targets the first open position on the batch root with an active
// leg matching any closing event. A batch whose order ids the target already
// carries has been merged before; merging is at-most-once per order, so the
// replay is skipped rather than re-staged (nil proposal, no error).
func (e *Engine) planRoll(open []*models.Position, batch Batch) (*Proposal, error) {
	closes, _ := splitByIntent(batch.Trades)
	target := findRollTarget(open, batch.Root, closes)
	if target == nil {
		return nil, fmt.Errorf("roll batch for %s on %s: %w",
			batch.Root, batch.TradeDate.Format(models.DateLayout), ErrNoMatch)
	}
	if ids := orderIDsOf(batch.Trades); len(ids) > 0 && hasAllOrderIDs(target, ids) {
		e.logger.WithFields(logrus.Fields{
			"position": target.Slug,
			"date":     batch.TradeDate.Format(models.DateLayout),
		}).Info("roll batch already recorded on position, skipping replay")
		return nil, nil
	}
	staged, err := clonePosition(target)
	if err != nil {
		return nil, err
	}
	if err := e.MergeRoll(staged, batch.Trades); err != nil {
		return nil, err
	}
	return &Proposal{Action: ActionRoll, Target: target.Slug, Result: staged, Events: batch.Trades}, nil
}

// planClose targets the open position whose remaining active legs the
// closing events fully account for.
func (e *Engine) planClose(open []*models.Position, batch Batch) (*Proposal, error) {
	for _, pos := range open {
		if pos.Ticker != batch.Root || !coversAllActive(pos, batch.Trades) {
			continue
		}
		staged, err := clonePosition(pos)
		if err != nil {
			return nil, err
		}
		if err := e.CloseExplicit(staged, batch.Trades, batch.TradeDate); err != nil {
			return nil, err
		}
		return &Proposal{Action: ActionClose, Target: pos.Slug, Result: staged, Events: batch.Trades}, nil
	}
	return nil, fmt.Errorf("close batch for %s on %s: %w",
		batch.Root, batch.TradeDate.Format(models.DateLayout), ErrNoMatch)
}

// Commit persists an approved proposal. Terminal proposals archive the
// record and feed the closed-trade recorder.
func (e *Engine) Commit(p *Proposal) error {
	switch p.Action {
	case ActionOpen:
		return e.store.Create(p.Result)
	case ActionRoll:
		return e.store.Save(p.Result)
	case ActionExpire:
		if p.Terminal {
			return e.archive(p.Result)
		}
		return e.store.Save(p.Result)
	case ActionClose:
		return e.archive(p.Result)
	}
	return fmt.Errorf("unknown proposal action %q", p.Action)
}

func (e *Engine) archive(pos *models.Position) error {
	if err := e.store.Archive(pos); err != nil {
		return err
	}
	if e.recorder != nil {
		if err := e.recorder.RecordClosed(pos); err != nil {
			// The record is archived; a summary failure should not undo it.
			e.logger.WithError(err).WithField("position", pos.Slug).
				Warn("failed to record closed trade summary")
		}
	}
	return nil
}

func splitByIntent(events []models.LegEvent) (closes, opens []models.LegEvent) {
	for _, ev := range events {
		if ev.Intent == models.IntentClose {
			closes = append(closes, ev)
		} else {
			opens = append(opens, ev)
		}
	}
	return closes, opens
}

func orderIDsOf(events []models.LegEvent) []string {
	var ids []string
	for i := range events {
		if events[i].OrderID != "" {
			ids = append(ids, events[i].OrderID)
		}
	}
	return ids
}

func hasAllOrderIDs(pos *models.Position, ids []string) bool {
	for _, id := range ids {
		found := false
		for _, existing := range pos.OrderIDs {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func findRollTarget(open []*models.Position, root string, closes []models.LegEvent) *models.Position {
	for _, pos := range open {
		if pos.Ticker != root {
			continue
		}
		for i := range closes {
			want := closes[i].Leg()
			if pos.FindActiveLeg(&want) != nil {
				return pos
			}
		}
	}
	return nil
}

// coversAllActive reports whether the closing events account for every
// remaining active leg and none of them misses.
func coversAllActive(pos *models.Position, closes []models.LegEvent) bool {
	active := pos.ActiveLegs()
	if len(active) == 0 || len(closes) != len(active) {
		return false
	}
	used := make([]bool, len(active))
	for i := range closes {
		want := closes[i].Leg()
		matched := false
		for j, leg := range active {
			if !used[j] && leg.SameContract(&want) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// clonePosition deep-copies a record so a staged mutation never touches the
// loaded original before approval.
func clonePosition(pos *models.Position) (*models.Position, error) {
	data, err := json.Marshal(pos)
	if err != nil {
		return nil, fmt.Errorf("staging position %s: %w", pos.Slug, err)
	}
	var clone models.Position
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("staging position %s: %w", pos.Slug, err)
	}
	return &clone, nil
}
