package engine

import (
	"math"
)

const floatEpsilon = 1e-9

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func finiteOrZero(value float64) float64 {
	if !isFinite(value) {
		return 0
	}
	return value
}

// FloatEquals compares two floats with epsilon tolerance
func FloatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatEpsilon
}

// IsFinite reports whether every field of r is a finite number.
func (r CalculationResult) IsFinite() bool {
	return isFinite(r.BreakEvenRate) && isFinite(r.TargetRate) && isFinite(r.Profit) && isFinite(r.SpreadPercent)
}

// IsZero reports whether r is the result of incomplete input.
func (r CalculationResult) IsZero() bool {
	return r == CalculationResult{}
}
