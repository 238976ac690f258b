package numfmt

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// maxFractionDigits is the longest fractional part FormatInputNumber keeps.
// USDT and most assets quoted in the calculator settle at 8 decimals.
const maxFractionDigits = 8

var (
	leadingNumberRegex = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?`)
	digitsOnlyRegex    = regexp.MustCompile(`^\d+$`)
)

// ParseNumber converts user-typed text into a float64. Whitespace (including
// no-break spaces used as thousands separators) is dropped and the first comma
// is read as the decimal separator. The longest leading decimal literal is
// parsed; anything that does not yield a finite number becomes 0.
func ParseNumber(text string) float64 {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	clean = strings.Replace(clean, ",", ".", 1)

	literal := leadingNumberRegex.FindString(clean)
	if literal == "" {
		return 0
	}

	value, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

// FormatInputNumber filters text while the user is typing. It does not
// convert to a number: digits, commas and periods survive, commas become
// periods, periods after the first are dropped so the digits that follow join
// the fractional part, and the fractional part is cut to 8 digits. A trailing
// period is kept so typing can continue ("123." stays "123.").
func FormatInputNumber(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	seenPoint := false
	fraction := 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			if seenPoint {
				if fraction >= maxFractionDigits {
					continue
				}
				fraction++
			}
			b.WriteRune(r)
		case r == '.' || r == ',':
			if seenPoint {
				continue
			}
			seenPoint = true
			b.WriteByte('.')
		}
	}
	return b.String()
}

// NormalizeNumberString resolves thousands and decimal separators in a number
// token taken from a free-text query, returning a string strconv can parse.
// When both separators appear the last one is the decimal separator. A lone
// comma is decimal only if it is followed by one to three digits.
func NormalizeNumberString(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")

	dotIdx := strings.LastIndex(s, ".")
	commaIdx := strings.LastIndex(s, ",")

	if dotIdx != -1 && commaIdx != -1 {
		if commaIdx > dotIdx {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	} else if commaIdx != -1 {
		parts := strings.Split(s, ",")
		lastPart := parts[len(parts)-1]
		if len(parts) == 2 && len(lastPart) >= 1 && len(lastPart) <= 3 && digitsOnlyRegex.MatchString(lastPart) {
			s = parts[0] + "." + lastPart
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}
