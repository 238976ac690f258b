package p2p

import "p2pcalc/modules/state"

type labels struct {
	BreakEven      string
	TargetRate     string
	Spread         string
	Profit         string
	Loss           string
	AtSellRate     string
	Commission     string
	NetAfterFee    string
	CopyHint       string
	UsageTitle     string
	UsageSubTitle  string
	ForProfitOf    string
	FromGivenTaken string
}

var translations = map[state.Language]labels{
	state.LanguageRU: {
		BreakEven:      "Себестоимость",
		TargetRate:     "Курс продажи",
		Spread:         "Спред",
		Profit:         "Твой заработок",
		Loss:           "Убыток",
		AtSellRate:     "по курсу %s",
		Commission:     "Комиссия",
		NetAfterFee:    "к продаже после комиссии",
		CopyHint:       "Enter, чтобы скопировать",
		UsageTitle:     "P2P Калькулятор",
		UsageSubTitle:  "сумма объем [прибыль] [комиссия%] или сумма объем @курс",
		ForProfitOf:    "для прибыли %s",
		FromGivenTaken: "%s за %s",
	},
	state.LanguageEN: {
		BreakEven:      "Break-even",
		TargetRate:     "Selling Rate",
		Spread:         "Spread",
		Profit:         "Your Profit",
		Loss:           "Loss",
		AtSellRate:     "at rate %s",
		Commission:     "Commission",
		NetAfterFee:    "left to sell after commission",
		CopyHint:       "Enter to copy",
		UsageTitle:     "P2P Calculator",
		UsageSubTitle:  "amount volume [profit] [commission%] or amount volume @rate",
		ForProfitOf:    "for a profit of %s",
		FromGivenTaken: "%s for %s",
	},
}

func labelsFor(store *state.Store) labels {
	if store == nil {
		return translations[state.DefaultLanguage]
	}
	if l, ok := translations[store.Preferences().Language]; ok {
		return l
	}
	return translations[state.DefaultLanguage]
}
