package accounting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionSymbol(t *testing.T) {
	c, err := ParseOptionSymbol("BTC-27DEC24-30000-C")
	require.NoError(t, err)
	assert.Equal(t, "BTC", c.Underlying)
	assert.Equal(t, "27DEC24", c.Expiry)
	assert.Equal(t, OptionCall, c.Type)
	require.True(t, c.Strike.Valid)
	assert.True(t, c.Strike.Decimal.Equal(decimal.NewFromInt(30000)))

	c, err = ParseOptionSymbol("ETH-28JUN24-3000-p-USDT")
	require.NoError(t, err)
	assert.Equal(t, OptionPut, c.Type)

	_, err = ParseOptionSymbol("BTCUSDT")
	assert.Error(t, err)

	_, err = ParseOptionSymbol("BTC-27DEC24-30000-X")
	assert.Error(t, err)
}

func TestIntrinsicValue(t *testing.T) {
	strike := decimal.NewFromInt(3000)
	spot := decimal.NewFromInt(3200)

	assert.True(t, IntrinsicValue(OptionCall, strike, spot).Equal(decimal.NewFromInt(200)))
	assert.True(t, IntrinsicValue(OptionPut, strike, spot).IsZero())
	assert.True(t, IntrinsicValue(OptionPut, spot, strike).Equal(decimal.NewFromInt(200)))
}

func TestParseNumber(t *testing.T) {
	v, ok := ParseNumber(" 1.5 ")
	assert.True(t, ok)
	assert.True(t, v.Equal(decimal.RequireFromString("1.5")))

	_, ok = ParseNumber("")
	assert.False(t, ok)

	_, ok = ParseNumber("abc")
	assert.False(t, ok)
	assert.False(t, ParseNullNumber("n/a").Valid)
}

func TestRound(t *testing.T) {
	v := Round(decimal.RequireFromString("0.123456789012345"))
	assert.Equal(t, "0.123456789", v.String())

	assert.True(t, Round(decimal.RequireFromString("0.00000000000004")).IsZero())
	assert.True(t, IsFlat(decimal.RequireFromString("0.0000000001")))
	assert.False(t, IsFlat(decimal.RequireFromString("0.00000001")))
}
