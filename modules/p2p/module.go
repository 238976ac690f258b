// Package p2p answers free-text queries such as "5000 65.91 100 1%" with
// break-even, target rate, spread and profit cards.
package p2p

import (
	"context"
	"fmt"
	"strings"

	"p2pcalc/commontypes"
	"p2pcalc/modules/engine"
	"p2pcalc/modules/numfmt"
	"p2pcalc/modules/state"
)

const (
	scoreBreakEven  = 100
	scoreMain       = 95
	scoreSpread     = 90
	scoreCommission = 85
	scoreUsage      = 50

	// Rates and profits are copied with two decimals, crypto volumes with eight.
	copyRatePrecision   = 2
	copyVolumePrecision = 8
)

type P2PModule struct {
	iconPath string
	eval     Evaluator
}

func NewP2PModule(iconPath string, eval Evaluator) *P2PModule {
	if iconPath == "" {
		iconPath = "https://img.icons8.com/badges/100/exchange.png"
	}
	return &P2PModule{iconPath: iconPath, eval: eval}
}

func (m *P2PModule) Name() string {
	return "P2P"
}

func (m *P2PModule) DefaultIconPath() string {
	return m.iconPath
}

func (m *P2PModule) ProcessQuery(ctx context.Context, query string, store *state.Store) ([]commontypes.Result, error) {
	l := labelsFor(store)
	trimmed := strings.TrimSpace(query)
	if strings.EqualFold(trimmed, keyword) {
		return []commontypes.Result{{
			Title:    l.UsageTitle,
			SubTitle: l.UsageSubTitle,
			Score:    scoreUsage,
			Action:   commontypes.Action{Method: commontypes.MethodChangeQuery, Parameters: []any{keyword + " ", false}},
		}}, nil
	}

	req, err := parseQuery(trimmed, m.eval)
	if err != nil {
		// Not every query is meant for this module.
		return nil, nil
	}

	if req.HasSell {
		return m.sellRateResults(req, l), nil
	}
	return m.targetRateResults(req, l), nil
}

func (m *P2PModule) targetRateResults(req Request, l labels) []commontypes.Result {
	res := engine.Calculate(req.Fiat, req.Crypto, req.Profit, req.Commission)
	if res.IsZero() {
		return nil
	}

	results := []commontypes.Result{m.breakEvenCard(req, res.BreakEvenRate, l)}
	if req.Profit != 0 {
		results = append(results,
			commontypes.Result{
				Title:    numfmt.FormatRate(res.TargetRate),
				SubTitle: fmt.Sprintf("%s · "+l.ForProfitOf, l.TargetRate, numfmt.FormatCurrency(res.Profit)),
				Score:    scoreMain,
				Action:   commontypes.CopyAction(numfmt.FormatAmountForClipboard(res.TargetRate, copyRatePrecision)),
			},
			spreadCard(res.SpreadPercent, l),
		)
	}
	return append(results, commissionCards(req, l)...)
}

func (m *P2PModule) sellRateResults(req Request, l labels) []commontypes.Result {
	res := engine.CalculateProfit(req.Fiat, req.Crypto, req.SellRate, req.Commission)
	if res.BreakEvenRate == 0 {
		return nil
	}

	results := []commontypes.Result{m.breakEvenCard(req, res.BreakEvenRate, l)}
	if res.SellRate != 0 {
		label := l.Profit
		title := numfmt.FormatCurrency(res.Profit)
		if res.IsProfit {
			title = "+" + title
		} else if res.Profit < 0 {
			label = l.Loss
		}
		results = append(results,
			commontypes.Result{
				Title:    title,
				SubTitle: fmt.Sprintf("%s "+l.AtSellRate, label, numfmt.FormatRate(res.SellRate)),
				Score:    scoreMain,
				Action:   commontypes.CopyAction(numfmt.FormatAmountForClipboard(res.Profit, copyRatePrecision)),
			},
			spreadCard(res.SpreadPercent, l),
		)
	}
	return append(results, commissionCards(req, l)...)
}

func (m *P2PModule) breakEvenCard(req Request, rate float64, l labels) commontypes.Result {
	given := fmt.Sprintf(l.FromGivenTaken,
		numfmt.FormatCurrency(req.Fiat),
		numfmt.FormatAmountForClipboard(req.Crypto, copyVolumePrecision))
	return commontypes.Result{
		Title:    numfmt.FormatRate(rate),
		SubTitle: fmt.Sprintf("%s · %s · %s", l.BreakEven, given, l.CopyHint),
		Score:    scoreBreakEven,
		Action:   commontypes.CopyAction(numfmt.FormatAmountForClipboard(rate, copyRatePrecision)),
	}
}

func spreadCard(spread float64, l labels) commontypes.Result {
	value := numfmt.FormatAmountForClipboard(spread, copyRatePrecision)
	return commontypes.Result{
		Title:    value + "%",
		SubTitle: l.Spread,
		Score:    scoreSpread,
		Action:   commontypes.CopyAction(value),
	}
}

func commissionCards(req Request, l labels) []commontypes.Result {
	if req.Commission == 0 {
		return nil
	}
	split := engine.SplitCommission(req.Crypto, req.Commission)
	net := numfmt.FormatAmountForClipboard(split.NetAfterCommission, copyVolumePrecision)
	return []commontypes.Result{{
		Title: net,
		SubTitle: fmt.Sprintf("%s %s%% (%s) · %s", l.Commission,
			numfmt.FormatAmountForClipboard(req.Commission, copyRatePrecision),
			numfmt.FormatAmountForClipboard(split.CommissionAmount, copyVolumePrecision),
			l.NetAfterFee),
		Score:  scoreCommission,
		Action: commontypes.CopyAction(net),
	}}
}
