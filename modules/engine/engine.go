// Package engine holds the P2P rate arithmetic. Every function is pure and
// returns finite numbers: incomplete or degenerate input yields zeros.
package engine

// CalculationResult is what the calculator shows for a desired profit.
type CalculationResult struct {
	BreakEvenRate float64 `json:"breakEvenRate"`
	TargetRate    float64 `json:"targetRate"`
	Profit        float64 `json:"profit"`
	SpreadPercent float64 `json:"spreadPercent"`
}

// ProfitResult is what the calculator shows for a chosen sell rate.
type ProfitResult struct {
	BreakEvenRate float64 `json:"breakEvenRate"`
	SellRate      float64 `json:"sellRate"`
	Profit        float64 `json:"profit"`
	SpreadPercent float64 `json:"spreadPercent"`
	IsProfit      bool    `json:"isProfit"`
}

// CommissionSplit separates received crypto into the counterparty's cut and
// the part left to resell.
type CommissionSplit struct {
	CommissionAmount   float64 `json:"commissionAmount"`
	NetAfterCommission float64 `json:"netAfterCommission"`
}

// EffectiveCrypto returns the crypto left after the counterparty keeps
// commissionPercent of it.
func EffectiveCrypto(cryptoReceived, commissionPercent float64) float64 {
	return cryptoReceived * (1 - commissionPercent/100)
}

// Calculate solves for the resale rate that realizes desiredProfit on top of
// recovering fiatGiven.
func Calculate(fiatGiven, cryptoReceived, desiredProfit, commissionPercent float64) CalculationResult {
	if !isComplete(fiatGiven, cryptoReceived) {
		return CalculationResult{}
	}

	effective := EffectiveCrypto(cryptoReceived, commissionPercent)
	if !(effective > 0) || !isFinite(effective) {
		return CalculationResult{}
	}

	breakEven := fiatGiven / effective
	target := (fiatGiven + desiredProfit) / effective

	return CalculationResult{
		BreakEvenRate: finiteOrZero(breakEven),
		TargetRate:    finiteOrZero(target),
		Profit:        finiteOrZero(desiredProfit),
		SpreadPercent: spreadPercent(breakEven, target),
	}
}

// CalculateProfit solves for the profit realized when the effective crypto is
// resold at sellRate. With zero commission this is sellRate*crypto - fiat.
func CalculateProfit(fiatGiven, cryptoReceived, sellRate, commissionPercent float64) ProfitResult {
	if !isComplete(fiatGiven, cryptoReceived) {
		return ProfitResult{}
	}

	effective := EffectiveCrypto(cryptoReceived, commissionPercent)
	if !(effective > 0) || !isFinite(effective) {
		return ProfitResult{}
	}

	breakEven := finiteOrZero(fiatGiven / effective)
	res := ProfitResult{BreakEvenRate: breakEven}
	if sellRate == 0 || !isFinite(sellRate) {
		return res
	}

	res.SellRate = sellRate
	res.Profit = finiteOrZero(sellRate*effective - fiatGiven)
	res.SpreadPercent = spreadPercent(breakEven, sellRate)
	res.IsProfit = res.Profit > 0
	return res
}

// SplitCommission returns the commission amount and the net crypto after it.
func SplitCommission(cryptoReceived, commissionPercent float64) CommissionSplit {
	if cryptoReceived == 0 || commissionPercent == 0 || !isFinite(cryptoReceived) || !isFinite(commissionPercent) {
		return CommissionSplit{NetAfterCommission: finiteOrZero(cryptoReceived)}
	}
	commission := finiteOrZero(cryptoReceived * commissionPercent / 100)
	return CommissionSplit{
		CommissionAmount:   commission,
		NetAfterCommission: finiteOrZero(cryptoReceived - commission),
	}
}

func isComplete(fiatGiven, cryptoReceived float64) bool {
	return fiatGiven != 0 && cryptoReceived != 0 && isFinite(fiatGiven) && isFinite(cryptoReceived)
}

// spreadPercent is the markup of rate over base, 0 when base is 0.
func spreadPercent(base, rate float64) float64 {
	if base == 0 {
		return 0
	}
	return finiteOrZero((rate - base) / base * 100)
}
