package history

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"p2pcalc/modules/numfmt"
	"p2pcalc/modules/state"
)

const maxIDLength = 64

// ErrInvalidImport marks a document that failed shape validation. Nothing
// from such a document is applied.
var ErrInvalidImport = errors.New("invalid history import")

// importEntry mirrors state.HistoryItem with pointers so that missing and
// null fields can be told apart from zeros.
type importEntry struct {
	ID             *string  `json:"id"`
	Timestamp      *float64 `json:"timestamp"`
	FiatAmount     *float64 `json:"fiatAmount"`
	CryptoAmount   *float64 `json:"cryptoAmount"`
	ProfitTarget   *float64 `json:"profitTarget"`
	CalculatedRate *float64 `json:"calculatedRate"`
	SellPrice      *float64 `json:"sellPrice"`
}

// ParseJSON validates and decodes a structured history document: either a
// bare array of entries or an object with a "history" (or "items") list.
// Every entry needs a non-empty string id and numeric fiatAmount and
// cryptoAmount.
func ParseJSON(data []byte) ([]state.HistoryItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidImport)
	}

	var raw []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
	case '{':
		var container map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &container); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
		list, ok := container["history"]
		if !ok {
			list, ok = container["items"]
		}
		if !ok {
			return nil, fmt.Errorf("%w: no history list in document", ErrInvalidImport)
		}
		if err := json.Unmarshal(list, &raw); err != nil || raw == nil {
			return nil, fmt.Errorf("%w: history is not a list", ErrInvalidImport)
		}
	default:
		return nil, fmt.Errorf("%w: document is neither a list nor an object", ErrInvalidImport)
	}

	items := make([]state.HistoryItem, 0, len(raw))
	for i, entryRaw := range raw {
		var entry importEntry
		if err := json.Unmarshal(entryRaw, &entry); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidImport, i, err)
		}
		item, err := entry.toItem()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidImport, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (e importEntry) toItem() (state.HistoryItem, error) {
	if e.ID == nil {
		return state.HistoryItem{}, errors.New("missing id")
	}
	if err := checkID(*e.ID); err != nil {
		return state.HistoryItem{}, err
	}
	if e.FiatAmount == nil {
		return state.HistoryItem{}, errors.New("missing fiatAmount")
	}
	if e.CryptoAmount == nil {
		return state.HistoryItem{}, errors.New("missing cryptoAmount")
	}

	item := state.HistoryItem{
		ID:           *e.ID,
		FiatAmount:   *e.FiatAmount,
		CryptoAmount: *e.CryptoAmount,
		SellPrice:    e.SellPrice,
	}
	if e.Timestamp != nil {
		item.Timestamp = int64(*e.Timestamp)
	}
	if e.ProfitTarget != nil {
		item.ProfitTarget = *e.ProfitTarget
	}
	if e.CalculatedRate != nil {
		item.CalculatedRate = *e.CalculatedRate
	}
	return item, checkAmounts(item)
}

// checkID rejects ids that are empty, oversized or carry markup or quotes.
func checkID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("missing id")
	case len(id) > maxIDLength:
		return fmt.Errorf("id longer than %d bytes", maxIDLength)
	case numfmt.SanitizeInput(id) != id:
		return fmt.Errorf("id %q contains markup or quotes", id)
	}
	return nil
}

// checkAmounts rejects NaN and infinities, which cannot be stored as JSON.
func checkAmounts(item state.HistoryItem) error {
	names := []string{"fiatAmount", "cryptoAmount", "profitTarget", "calculatedRate", "sellPrice"}
	values := []float64{item.FiatAmount, item.CryptoAmount, item.ProfitTarget, item.CalculatedRate, 0}
	if item.SellPrice != nil {
		values[4] = *item.SellPrice
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not a finite number", names[i])
		}
	}
	return nil
}

// ParseCSV decodes rows written by ExportCSV. Columns are matched by header
// name; id, fiat_amount and crypto_amount are required.
func ParseCSV(r io.Reader) ([]state.HistoryItem, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidImport, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "fiat_amount", "crypto_amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidImport, required)
		}
	}

	var items []state.HistoryItem
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidImport, line, err)
		}
		item, err := parseCSVRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidImport, line, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseCSVRow(row []string, cols map[string]int) (state.HistoryItem, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var item state.HistoryItem
	item.ID = field("id")
	if err := checkID(item.ID); err != nil {
		return item, err
	}

	var err error
	if item.FiatAmount, err = strconv.ParseFloat(field("fiat_amount"), 64); err != nil {
		return item, fmt.Errorf("fiat_amount: %w", err)
	}
	if item.CryptoAmount, err = strconv.ParseFloat(field("crypto_amount"), 64); err != nil {
		return item, fmt.Errorf("crypto_amount: %w", err)
	}
	if v := field("rate"); v != "" {
		if item.CalculatedRate, err = strconv.ParseFloat(v, 64); err != nil {
			return item, fmt.Errorf("rate: %w", err)
		}
	}
	if v := field("profit"); v != "" {
		if item.ProfitTarget, err = strconv.ParseFloat(v, 64); err != nil {
			return item, fmt.Errorf("profit: %w", err)
		}
	}
	if v := field("sell_price"); v != "" {
		sell, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return item, fmt.Errorf("sell_price: %w", err)
		}
		item.SellPrice = &sell
	}
	if v := field("timestamp"); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return item, fmt.Errorf("timestamp: %w", err)
		}
		item.Timestamp = ts.UnixMilli()
	}
	return item, checkAmounts(item)
}

// Merge combines the current log with imported entries. Entries whose id is
// already present are skipped (the existing copy wins), the result is ordered
// newest first and capped at state.MaxHistory.
func Merge(existing, imported []state.HistoryItem) []state.HistoryItem {
	seen := make(map[string]bool, len(existing)+len(imported))
	merged := make([]state.HistoryItem, 0, len(existing)+len(imported))

	for _, list := range [][]state.HistoryItem{existing, imported} {
		for _, item := range list {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			merged = append(merged, item)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	if len(merged) > state.MaxHistory {
		merged = merged[:state.MaxHistory]
	}
	return merged
}
