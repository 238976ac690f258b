package history

import (
	"strings"

	"p2pcalc/modules/numfmt"
	"p2pcalc/modules/state"
)

// Kind partitions the log by outcome.
type Kind string

const (
	KindAll    Kind = "all"
	KindProfit Kind = "profit" // profitTarget > 0
	KindLoss   Kind = "loss"   // profitTarget <= 0
)

// ParseKind maps a query parameter to a Kind, defaulting to KindAll.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindProfit:
		return KindProfit
	case KindLoss:
		return KindLoss
	default:
		return KindAll
	}
}

// Filter returns the items of the given kind whose amounts or rate contain
// query, in either the displayed ("5 000,00") or plain ("5000") form. An
// empty query matches everything.
func Filter(items []state.HistoryItem, query string, kind Kind) []state.HistoryItem {
	needle := normalizeSearch(query)
	out := make([]state.HistoryItem, 0, len(items))
	for _, item := range items {
		if !kind.matches(item) {
			continue
		}
		if needle != "" && !strings.Contains(searchText(item), needle) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (k Kind) matches(item state.HistoryItem) bool {
	switch k {
	case KindProfit:
		return item.ProfitTarget > 0
	case KindLoss:
		return item.ProfitTarget <= 0
	default:
		return true
	}
}

func searchText(item state.HistoryItem) string {
	values := []float64{item.FiatAmount, item.CryptoAmount, item.CalculatedRate, item.ProfitTarget}
	parts := make([]string, 0, len(values)*2)
	for _, v := range values {
		parts = append(parts,
			normalizeSearch(numfmt.FormatCurrency(v)),
			numfmt.FormatAmountForClipboard(v, 8),
		)
	}
	return strings.Join(parts, "|")
}

// normalizeSearch folds grouping spaces away so "5 000" and "5000" match the
// same entries.
func normalizeSearch(s string) string {
	return strings.Join(strings.Fields(s), "")
}
