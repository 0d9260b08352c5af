package broker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatOCC(t *testing.T) {
	symbol, err := FormatOCC(Contract{
		Ticker: "aapl",
		Right:  "call",
		Strike: decimal.NewFromInt(150),
		Expiry: time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL240119C00150000", symbol)

	symbol, err = FormatOCC(Contract{
		Ticker: "SPY",
		Right:  "put",
		Strike: decimal.RequireFromString("452.5"),
		Expiry: time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "SPY250321P00452500", symbol)

	_, err = FormatOCC(Contract{Ticker: "", Right: "call", Strike: decimal.NewFromInt(1)})
	assert.Error(t, err)
	_, err = FormatOCC(Contract{Ticker: "NVDA", Right: "call", Strike: decimal.Zero})
	assert.Error(t, err)
}

func TestParseOCC(t *testing.T) {
	c, err := ParseOCC("SPY250321P00452500")
	require.NoError(t, err)
	assert.Equal(t, "SPY", c.Ticker)
	assert.Equal(t, "put", c.Right)
	assert.True(t, decimal.RequireFromString("452.5").Equal(c.Strike))
	assert.Equal(t, "2025-03-21", c.Expiry.Format(time.DateOnly))

	for _, bad := range []string{"", "AAPL", "AAPL240119X00150000", "AAPL241399C00150000", "AAPL240119C0015000A"} {
		_, err := ParseOCC(bad)
		assert.Error(t, err, bad)
	}
}

func TestOCCRoundTrip(t *testing.T) {
	in := Contract{
		Ticker: "NVDA",
		Right:  "call",
		Strike: decimal.RequireFromString("142.5"),
		Expiry: time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
	}
	symbol, err := FormatOCC(in)
	require.NoError(t, err)
	out, err := ParseOCC(symbol)
	require.NoError(t, err)
	assert.Equal(t, in.Ticker, out.Ticker)
	assert.Equal(t, in.Right, out.Right)
	assert.True(t, in.Strike.Equal(out.Strike))
	assert.True(t, in.Expiry.Equal(out.Expiry))
}

func TestRoundToTick(t *testing.T) {
	d := decimal.RequireFromString
	assert.Equal(t, "3.05", RoundToTick(d("3.01"), SideBuy).StringFixed(2))
	assert.Equal(t, "3.00", RoundToTick(d("3.04"), SideSell).StringFixed(2))
	assert.Equal(t, "1.24", RoundToTick(d("1.235"), SideBuy).StringFixed(2))
	assert.Equal(t, "1.23", RoundToTick(d("1.235"), SideSell).StringFixed(2))
}

func TestMidOf(t *testing.T) {
	d := decimal.RequireFromString
	assert.Equal(t, "2.10", MidOf(d("2.00"), d("2.20"), d("1.00")).StringFixed(2))
	assert.Equal(t, "1.00", MidOf(d("0"), d("2.20"), d("1.00")).StringFixed(2))
	assert.True(t, MidOf(d("0"), d("0"), d("0")).IsZero())
}
