package swap

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumOutputExample(t *testing.T) {
	quoted, ok := new(big.Int).SetString("78500000000000000000", 10)
	require.True(t, ok)

	minOut, err := MinimumOutput(quoted, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "78107500000000000000", minOut.String())

	got, err := MinReceived("78.5", 18, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "78.1075", got)
}

func TestMinimumOutputTruncates(t *testing.T) {
	// 999 * 0.995 = 994.005
	minOut, err := MinimumOutput(big.NewInt(999), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(994), minOut.Int64())

	got, err := MinReceived("78.5", 2, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "78.1", got)
}

func TestMinimumOutputMonotonic(t *testing.T) {
	quoted := big.NewInt(123_456_789_012)
	prev, err := MinimumOutput(quoted, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, quoted, prev)

	for s := decimal.RequireFromString("0.1"); s.LessThan(hundred); s = s.Add(decimal.RequireFromString("0.7")) {
		cur, err := MinimumOutput(quoted, s)
		require.NoError(t, err)
		assert.True(t, cur.Cmp(prev) <= 0, "slippage %s raised the floor", s)
		prev = cur
	}
}

func TestValidateSlippage(t *testing.T) {
	assert.NoError(t, ValidateSlippage(decimal.Zero))
	assert.NoError(t, ValidateSlippage(decimal.RequireFromString("99.99")))
	assert.ErrorIs(t, ValidateSlippage(decimal.NewFromInt(100)), ErrInvalidSlippage)
	assert.ErrorIs(t, ValidateSlippage(decimal.NewFromInt(-1)), ErrInvalidSlippage)

	_, err := MinimumOutput(big.NewInt(100), decimal.NewFromInt(150))
	assert.ErrorIs(t, err, ErrInvalidSlippage)
}

func TestIsHighRisk(t *testing.T) {
	assert.False(t, IsHighRisk(decimal.NewFromInt(5)))
	assert.True(t, IsHighRisk(decimal.RequireFromString("5.01")))
	for _, p := range SlippagePresets {
		assert.False(t, IsHighRisk(p))
	}
}
