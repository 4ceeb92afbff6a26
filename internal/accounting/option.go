package accounting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OptionType is call or put.
type OptionType string

const (
	OptionCall OptionType = "C"
	OptionPut  OptionType = "P"
)

// OptionContract is the parsed form of an option symbol such as
// BTC-27DEC24-30000-C or ETH-28JUN24-3000-P-USDT.
type OptionContract struct {
	Underlying string
	Expiry     string
	Strike     decimal.NullDecimal // invalid when the strike segment is not numeric
	Type       OptionType
}

// ParseOptionSymbol extracts option type and strike from a contract symbol.
func ParseOptionSymbol(symbol string) (OptionContract, error) {
	parts := strings.Split(strings.TrimSpace(symbol), "-")
	if len(parts) < 4 {
		return OptionContract{}, fmt.Errorf("option symbol %q: expected BASE-EXPIRY-STRIKE-TYPE", symbol)
	}

	var typ OptionType
	switch strings.ToUpper(parts[3]) {
	case "C":
		typ = OptionCall
	case "P":
		typ = OptionPut
	default:
		return OptionContract{}, fmt.Errorf("option symbol %q: unknown option type %q", symbol, parts[3])
	}

	return OptionContract{
		Underlying: parts[0],
		Expiry:     parts[1],
		Strike:     ParseNullNumber(parts[2]),
		Type:       typ,
	}, nil
}

// IntrinsicValue returns the in-the-money payoff at settlement.
func IntrinsicValue(typ OptionType, strike, settlement decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	if typ == OptionCall {
		v = settlement.Sub(strike)
	} else {
		v = strike.Sub(settlement)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return Round(v)
}
