// Package history derives read-only views over the saved calculation log:
// statistics, search, export and import.
package history

import (
	"math"

	"p2pcalc/modules/state"
)

// Stats aggregates a history log. It is recomputed on every read.
type Stats struct {
	Count           int     `json:"count"`
	TotalProfit     float64 `json:"totalProfit"`
	TotalFiat       float64 `json:"totalFiat"`
	TotalCrypto     float64 `json:"totalCrypto"`
	AverageRate     float64 `json:"averageRate"`
	ProfitableCount int     `json:"profitableCount"`
	ProfitPercent   float64 `json:"profitPercent"`
	SuccessRatio    float64 `json:"successRatio"`
}

// Compute aggregates items. It returns false and a zero Stats when items is
// empty; averages over an empty log are undefined and must not be shown.
func Compute(items []state.HistoryItem) (Stats, bool) {
	if len(items) == 0 {
		return Stats{}, false
	}

	var s Stats
	var rateSum float64
	for _, item := range items {
		s.TotalProfit += item.ProfitTarget
		s.TotalFiat += item.FiatAmount
		s.TotalCrypto += item.CryptoAmount
		rateSum += item.CalculatedRate
		if item.ProfitTarget > 0 {
			s.ProfitableCount++
		}
	}

	s.Count = len(items)
	s.AverageRate = rateSum / float64(s.Count)
	if s.TotalFiat != 0 {
		s.ProfitPercent = s.TotalProfit / s.TotalFiat * 100
	}
	s.SuccessRatio = float64(s.ProfitableCount) / float64(s.Count)

	// Sums of very large amounts can overflow.
	for _, v := range []*float64{&s.TotalProfit, &s.TotalFiat, &s.TotalCrypto, &s.AverageRate, &s.ProfitPercent} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	return s, true
}
