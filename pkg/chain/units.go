package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// ParseUnits converts a human decimal string into integer base units.
// Fractional digits beyond decimals are truncated, never rounded up.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative: %s", amount)
	}

	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// FormatUnits converts integer base units into an exact decimal string ("78.5", "1", "0.000001")
func FormatUnits(value *big.Int, decimals uint8) string {
	return ToDecimal(value, decimals).String()
}

// ToDecimal converts base units into a decimal value
func ToDecimal(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// FromDecimal converts a decimal value into base units, truncating extra precision
func FromDecimal(value decimal.Decimal, decimals uint8) *big.Int {
	return value.Shift(int32(decimals)).Truncate(0).BigInt()
}

// Gwei converts a gwei amount into wei
func Gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

// MaxAllowance is the unlimited approval amount (2^256 - 1)
func MaxAllowance() *big.Int {
	return new(big.Int).Set(math.MaxBig256)
}
