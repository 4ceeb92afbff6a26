package accounting

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept by replay arithmetic.
const Scale int32 = 10

var (
	// positionEpsilon is the magnitude below which a position is flat.
	positionEpsilon = decimal.New(1, -9)
	// roundingEpsilon is the magnitude below which a rounded value is zero.
	roundingEpsilon = decimal.New(1, -Scale)
)

// Round rounds d to Scale fractional digits.
func Round(d decimal.Decimal) decimal.Decimal {
	r := d.Round(Scale)
	if r.Abs().LessThan(roundingEpsilon) {
		return decimal.Zero
	}
	return r
}

// IsFlat reports whether a position is effectively zero.
func IsFlat(position decimal.Decimal) bool {
	return position.Abs().LessThan(positionEpsilon)
}

// ParseNumber parses a numeric string. Empty or malformed input
// returns ok=false and a zero value.
func ParseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseNullNumber parses a numeric string into a NullDecimal.
// Malformed or empty input yields an invalid (null) value.
func ParseNullNumber(s string) decimal.NullDecimal {
	d, ok := ParseNumber(s)
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}
