// Package tastytrade reads tastytrade CSV exports: the transaction history
// export that feeds the reconciliation engine, and the live positions export
// used for daily tracking snapshots.
package tastytrade

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/optjournal/optjournal/internal/models"
	"github.com/optjournal/optjournal/internal/ticker"
)

// Transaction-export column names.
const (
	colDate       = "Date"
	colType       = "Type"
	colSubType    = "Sub Type"
	colAction     = "Action"
	colSymbol     = "Symbol"
	colInstrument = "Instrument Type"
	colValue      = "Value"
	colQuantity   = "Quantity"
	colAvgPrice   = "Average Price"
	colFees       = "Fees"
	colRoot       = "Root Symbol"
	colUnderlying = "Underlying Symbol"
	colExpiration = "Expiration Date"
	colStrike     = "Strike Price"
	colCallOrPut  = "Call or Put"
	colOrderID    = "Order #"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/06",
	"01/02/2006",
	"1/2/2006",
}

// TransactionReader converts transaction-export rows into normalized leg
// events. Non-option rows and rows it cannot parse are skipped with a
// warning; one bad row never aborts the file.
type TransactionReader struct {
	logger *logrus.Logger
}

// NewTransactionReader returns a reader logging skips to the given logger.
func NewTransactionReader(logger *logrus.Logger) *TransactionReader {
	return &TransactionReader{logger: logger}
}

// Read parses a transaction export. Trade rows on option instruments become
// open/close events; Receive Deliver rows with an Expiration sub type become
// expire events. Everything else is filtered out.
func (r *TransactionReader) Read(f io.Reader) ([]models.LegEvent, error) {
	rows, err := readHeadered(f)
	if err != nil {
		return nil, fmt.Errorf("reading transaction export: %w", err)
	}

	var events []models.LegEvent
	for i, row := range rows {
		var (
			ev     *models.LegEvent
			rowErr error
		)
		switch {
		case row[colType] == "Trade" && isOptionInstrument(row[colInstrument]):
			ev, rowErr = r.tradeEvent(row)
		case row[colType] == "Receive Deliver" && row[colSubType] == "Expiration":
			ev, rowErr = r.expirationEvent(row)
		default:
			continue
		}
		if rowErr != nil {
			r.logger.WithError(rowErr).WithField("row", i+2).
				Warn("skipping unparseable transaction row")
			continue
		}
		events = append(events, *ev)
	}
	return events, nil
}

func isOptionInstrument(instrument string) bool {
	return instrument == "Equity Option" || instrument == "Future Option"
}

func (r *TransactionReader) tradeEvent(row map[string]string) (*models.LegEvent, error) {
	intent, side, err := parseAction(row[colAction])
	if err != nil {
		return nil, err
	}
	instr, err := parseInstrument(row)
	if err != nil {
		return nil, err
	}
	tradeDate, err := parseDate(row[colDate])
	if err != nil {
		return nil, err
	}
	contracts, err := parseContracts(row[colQuantity])
	if err != nil {
		return nil, err
	}
	price, err := ParseCents(row[colAvgPrice])
	if err != nil {
		return nil, fmt.Errorf("average price: %w", err)
	}
	gross, err := parseAmount(row[colValue])
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	fees, err := parseAmount(row[colFees])
	if err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}

	return &models.LegEvent{
		Instrument: instr,
		Intent:     intent,
		Side:       side,
		Contracts:  contracts,
		Price:      price,
		Fees:       fees.Abs(),
		GrossValue: gross,
		OrderID:    strings.TrimSpace(row[colOrderID]),
		TradeDate:  tradeDate,
	}, nil
}

func (r *TransactionReader) expirationEvent(row map[string]string) (*models.LegEvent, error) {
	instr, err := parseInstrument(row)
	if err != nil {
		return nil, err
	}
	tradeDate, err := parseDate(row[colDate])
	if err != nil {
		return nil, err
	}
	contracts, err := parseContracts(row[colQuantity])
	if err != nil {
		return nil, err
	}
	// Expirations always describe a short position's contracts lapsing
	// worthless.
	return &models.LegEvent{
		Instrument: instr,
		Intent:     models.IntentExpire,
		Side:       models.SideShort,
		Contracts:  contracts,
		TradeDate:  tradeDate,
	}, nil
}

// parseAction collapses the broker action enum to intent and resulting
// position side. A buy-to-close offsets a short leg, so its side is short;
// side always names the leg the event belongs to, never the trade
// direction.
func parseAction(action string) (models.Intent, models.Side, error) {
	switch action {
	case "BUY_TO_OPEN":
		return models.IntentOpen, models.SideLong, nil
	case "SELL_TO_OPEN":
		return models.IntentOpen, models.SideShort, nil
	case "BUY_TO_CLOSE":
		return models.IntentClose, models.SideShort, nil
	case "SELL_TO_CLOSE":
		return models.IntentClose, models.SideLong, nil
	}
	return "", "", fmt.Errorf("unknown action %q", action)
}

func parseInstrument(row map[string]string) (models.Instrument, error) {
	root := strings.TrimSpace(row[colRoot])
	if root == "" {
		root = strings.TrimSpace(row[colUnderlying])
	}
	if root == "" {
		return models.Instrument{}, fmt.Errorf("missing root symbol")
	}

	var typ models.OptionType
	switch strings.ToLower(strings.TrimSpace(row[colCallOrPut])) {
	case "put":
		typ = models.OptionPut
	case "call":
		typ = models.OptionCall
	default:
		return models.Instrument{}, fmt.Errorf("unknown option type %q", row[colCallOrPut])
	}

	strike, err := parseAmount(row[colStrike])
	if err != nil {
		return models.Instrument{}, fmt.Errorf("strike: %w", err)
	}
	expiry, err := parseDate(row[colExpiration])
	if err != nil {
		return models.Instrument{}, fmt.Errorf("expiration: %w", err)
	}

	return models.Instrument{
		Ticker: ticker.Normalize(root),
		Type:   typ,
		Strike: strike,
		Expiry: expiry,
	}, nil
}

// ParseCents parses a comma-thousands cents string like "1,500.00" into
// sign-normalized per-contract dollars (15.00).
func ParseCents(raw string) (decimal.Decimal, error) {
	cents, err := parseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return cents.Abs().Div(decimal.NewFromInt(100)), nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	return d, nil
}

func parseContracts(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// Some exports render quantities as decimals ("2.0").
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing quantity %q: %w", raw, err)
	}
	return int(f), nil
}

func parseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// readHeadered reads a CSV with a header row into name-keyed maps. Column
// names are trimmed because exports occasionally pad them.
func readHeadered(f io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV record: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
