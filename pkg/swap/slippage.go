package swap

import (
	"errors"
	"fmt"
	"math/big"

	"ti-portal/pkg/chain"

	"github.com/shopspring/decimal"
)

// ErrInvalidSlippage is returned for a slippage outside [0, 100)
var ErrInvalidSlippage = errors.New("slippage must be at least 0 and below 100 percent")

var (
	hundred          = decimal.NewFromInt(100)
	highRiskSlippage = decimal.NewFromInt(5)

	// SlippagePresets are the quick choices offered next to a custom value
	SlippagePresets = []decimal.Decimal{
		decimal.RequireFromString("0.1"),
		decimal.RequireFromString("0.5"),
		decimal.RequireFromString("1.0"),
	}
)

// ValidateSlippage checks that s is a usable percentage
func ValidateSlippage(s decimal.Decimal) error {
	if s.IsNegative() || s.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: got %s", ErrInvalidSlippage, s)
	}
	return nil
}

// IsHighRisk reports slippage above 5%, which is allowed but flagged
func IsHighRisk(s decimal.Decimal) bool {
	return s.GreaterThan(highRiskSlippage)
}

// MinimumOutput returns floor(quoted * (100 - slippage) / 100) in base units
func MinimumOutput(quoted *big.Int, slippage decimal.Decimal) (*big.Int, error) {
	if err := ValidateSlippage(slippage); err != nil {
		return nil, err
	}
	if quoted == nil || quoted.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	keep := hundred.Sub(slippage)
	minOut := decimal.NewFromBigInt(quoted, 0).Mul(keep).Shift(-2).Truncate(0)
	return minOut.BigInt(), nil
}

// MinReceived is MinimumOutput for a human amount, formatted for display
func MinReceived(amountOut string, decimals uint8, slippage decimal.Decimal) (string, error) {
	raw, err := chain.ParseUnits(amountOut, decimals)
	if err != nil {
		return "", err
	}
	minOut, err := MinimumOutput(raw, slippage)
	if err != nil {
		return "", err
	}
	return chain.FormatUnits(minOut, decimals), nil
}
