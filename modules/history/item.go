package history

import (
	"time"

	"github.com/google/uuid"

	"p2pcalc/modules/state"
)

// NewItem builds a history entry for a saved calculation. sellPrice is
// recorded only when positive.
func NewItem(fiat, crypto, profit, rate, sellPrice float64, now time.Time) state.HistoryItem {
	item := state.HistoryItem{
		ID:             uuid.NewString(),
		Timestamp:      now.UnixMilli(),
		FiatAmount:     fiat,
		CryptoAmount:   crypto,
		ProfitTarget:   profit,
		CalculatedRate: rate,
	}
	if sellPrice > 0 {
		item.SellPrice = &sellPrice
	}
	return item
}
