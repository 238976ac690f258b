package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"p2pcalc/modules/state"
)

const exportVersion = 1

var csvHeader = []string{"id", "timestamp", "fiat_amount", "crypto_amount", "rate", "profit", "sell_price"}

// Document is the structured export format.
type Document struct {
	Version    int                 `json:"version"`
	ExportedAt time.Time           `json:"exportedAt"`
	History    []state.HistoryItem `json:"history"`
}

// ExportCSV writes items as comma-separated rows with a header line.
func ExportCSV(w io.Writer, items []state.HistoryItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, item := range items {
		sell := ""
		if item.SellPrice != nil {
			sell = formatFloat(*item.SellPrice)
		}
		row := []string{
			item.ID,
			item.Time().UTC().Format(time.RFC3339Nano),
			formatFloat(item.FiatAmount),
			formatFloat(item.CryptoAmount),
			formatFloat(item.CalculatedRate),
			formatFloat(item.ProfitTarget),
			sell,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %s: %w", item.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportJSON writes items as an indented Document.
func ExportJSON(w io.Writer, items []state.HistoryItem, now time.Time) error {
	if items == nil {
		items = []state.HistoryItem{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Document{Version: exportVersion, ExportedAt: now.UTC(), History: items}); err != nil {
		return fmt.Errorf("encoding history document: %w", err)
	}
	return nil
}

// ExportFilename names a download, e.g. "p2p-history-2026-10-15.csv".
func ExportFilename(ext string, now time.Time) string {
	return fmt.Sprintf("p2p-history-%s.%s", now.Format("2006-01-02"), ext)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
