package numfmt

import (
	"math"
	"strconv"
	"strings"

	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"
)

// ru-RU grouping: no-break space between thousands, decimal comma.
const (
	currencyThousand  = "\u00a0"
	currencyDecimal   = ","
	currencyPrecision = 2
)

// FormatCurrency renders amount with exactly two fractional digits using the
// ru-RU convention, e.g. 5000 -> "5 000,00". Rounding is done on the
// shortest decimal representation of the float, so 1.005 renders as "1,01".
func FormatCurrency(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	ac := accounting.Accounting{
		Symbol:    "",
		Precision: currencyPrecision,
		Thousand:  currencyThousand,
		Decimal:   currencyDecimal,
	}
	return ac.FormatMoneyDecimal(decimal.NewFromFloat(amount))
}

// FormatCurrencyWithSymbol appends a currency symbol after the amount.
func FormatCurrencyWithSymbol(amount float64, symbol string) string {
	formatted := FormatCurrency(amount)
	if symbol == "" {
		return formatted
	}
	return formatted + " " + symbol
}

// FormatRate formats exchange rates with precision that depends on magnitude.
// Negative rates keep their sign; only NaN and infinities render as "N/A".
func FormatRate(rate float64) string {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return "N/A"
	}
	if rate < 0 {
		return "-" + FormatRate(-rate)
	}
	if rate == 0 {
		return "0"
	}

	var formatted string
	switch {
	case rate < 0.0001:
		formatted = strconv.FormatFloat(rate, 'f', 8, 64)
	case rate < 1:
		formatted = strconv.FormatFloat(rate, 'f', 6, 64)
	case rate < 1000000:
		formatted = strconv.FormatFloat(rate, 'f', 4, 64)
	default:
		formatted = strconv.FormatFloat(rate, 'e', 2, 64)
	}

	if !strings.Contains(formatted, "e") && strings.Contains(formatted, ".") {
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
	}
	return formatted
}

// FormatAmountForClipboard renders a plain machine-readable amount: no
// grouping, period decimal separator, trailing zeros trimmed.
func FormatAmountForClipboard(amount float64, precision int) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "0"
	}
	formatted := strconv.FormatFloat(amount, 'f', precision, 64)
	if strings.Contains(formatted, ".") {
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
	}
	if formatted == "-0" {
		return "0"
	}
	return formatted
}
