package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"p2pcalc/commontypes"
	"p2pcalc/modules/numfmt"
	"p2pcalc/modules/state"
)

const calculatorScore = 75

// ErrNotNumeric is returned by Evaluate when an expression compiles but does
// not produce a finite number.
var ErrNotNumeric = errors.New("expression result is not a finite number")

type CalculatorModule struct {
	iconPath string
	mathEnv  map[string]interface{}
}

func NewCalculatorModule(iconPath string) *CalculatorModule {
	mathEnv := map[string]interface{}{
		"pi":    math.Pi,
		"sqrt":  func(x float64) float64 { return math.Sqrt(x) },
		"abs":   func(x float64) float64 { return math.Abs(x) },
		"pow":   func(base, exp float64) float64 { return math.Pow(base, exp) },
		"ceil":  func(x float64) float64 { return math.Ceil(x) },
		"floor": func(x float64) float64 { return math.Floor(x) },
		"round": func(x float64) float64 { return math.Round(x) },
		"min":   func(x, y float64) float64 { return math.Min(x, y) },
		"max":   func(x, y float64) float64 { return math.Max(x, y) },
		"mod":   func(x, y float64) float64 { return math.Mod(x, y) },
		// roundn(x, n) rounds to n decimal places.
		"roundn": func(x float64, n int) (float64, error) {
			if n < 0 || n > 12 {
				return 0, fmt.Errorf("roundn: precision %d out of range", n)
			}
			p := math.Pow(10, float64(n))
			return math.Round(x*p) / p, nil
		},
	}

	if iconPath == "" {
		iconPath = "https://img.icons8.com/badges/100/calculator.png"
	}

	return &CalculatorModule{
		iconPath: iconPath,
		mathEnv:  mathEnv,
	}
}

func (m *CalculatorModule) Name() string {
	return "Calculator"
}

func (m *CalculatorModule) DefaultIconPath() string {
	return m.iconPath
}

// A number literal is either space-grouped thousands ("5 000,50") or digits
// with "." and "," separators ("1.234,56"). Inside a function call a comma
// separates arguments, so argNumberRegex leaves it alone.
var (
	numberRegex    = regexp.MustCompile(`^(?:[0-9]{1,3}(?:[ \x{00a0}][0-9]{3})+(?:[.,][0-9]+)*|[0-9]+(?:[.,][0-9]+)*)`)
	argNumberRegex = regexp.MustCompile(`^(?:[0-9]{1,3}(?:[ \x{00a0}][0-9]{3})+(?:\.[0-9]+)?|[0-9]+(?:\.[0-9]+)?)`)
)

// preprocessQuery turns "%" into a division by 100 and normalizes grouped or
// comma-decimal numbers so expr sees plain literals.
func preprocessQuery(query string) string {
	processed := strings.ReplaceAll(query, "%", "/100.0")

	var b strings.Builder
	b.Grow(len(processed))
	// One entry per open parenthesis: true when it opens a call.
	var calls []bool
	for i := 0; i < len(processed); {
		re := numberRegex
		if len(calls) > 0 && calls[len(calls)-1] {
			re = argNumberRegex
		}
		if isDigit(processed[i]) && (i == 0 || !isIdentByte(processed[i-1])) {
			if n := len(re.FindString(processed[i:])); n > 0 {
				b.WriteString(numfmt.NormalizeNumberString(processed[i : i+n]))
				i += n
				continue
			}
		}

		switch c := processed[i]; c {
		case '(':
			calls = append(calls, i > 0 && isIdentByte(processed[i-1]))
		case ')':
			if len(calls) > 0 {
				calls = calls[:len(calls)-1]
			}
		}
		b.WriteByte(processed[i])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isCalculation reports whether query asks for arithmetic rather than just
// listing numbers.
func isCalculation(query string) bool {
	return strings.ContainsAny(query, "+-*/%^()")
}

// Evaluate computes an arithmetic expression such as "5000+2,5%*100" and
// returns its numeric value.
func (m *CalculatorModule) Evaluate(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, errors.New("empty expression")
	}

	program, err := expr.Compile(preprocessQuery(trimmed), expr.Env(m.mathEnv))
	if err != nil {
		return 0, fmt.Errorf("compiling %q: %w", trimmed, err)
	}

	output, err := expr.Run(program, m.mathEnv)
	if err != nil {
		return 0, fmt.Errorf("evaluating %q: %w", trimmed, err)
	}

	var value float64
	switch v := output.(type) {
	case float64:
		value = v
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	default:
		return 0, ErrNotNumeric
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNotNumeric
	}
	return value, nil
}

func (m *CalculatorModule) ProcessQuery(ctx context.Context, query string, store *state.Store) ([]commontypes.Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || !isCalculation(trimmed) {
		return nil, nil
	}

	value, err := m.Evaluate(trimmed)
	if err != nil {
		return nil, nil
	}

	resultStr := strconv.FormatFloat(value, 'f', 8, 64)
	resultStr = strings.TrimRight(resultStr, "0")
	resultStr = strings.TrimRight(resultStr, ".")
	if resultStr == "-0" {
		resultStr = "0"
	}

	subTitle := fmt.Sprintf("Result for: %s", trimmed)
	if store == nil || store.Preferences().Language == state.LanguageRU {
		subTitle = fmt.Sprintf("Результат: %s", trimmed)
	}

	return []commontypes.Result{{
		Title:    resultStr,
		SubTitle: subTitle,
		IcoPath:  m.DefaultIconPath(),
		Score:    calculatorScore,
		Action:   commontypes.CopyAction(resultStr),
	}}, nil
}
