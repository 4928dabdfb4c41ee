// Package parser reads the free-form swap commands typed on the command line.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"ti-portal/pkg/types"

	"github.com/shopspring/decimal"
)

// ErrInvalidCommand is returned for input that is not "<amount> <token> to <token>"
var ErrInvalidCommand = errors.New("invalid swap command")

const usage = "expected 'swap <amount> <token> to <token>', e.g. 'swap 10 USDT to TI'"

// symbolAliases maps alternative names onto the symbols the portal trades
var symbolAliases = map[string]string{
	"WBNB":    "BNB", // the router unwraps it
	"BSC-USD": "USDT",
}

// ParseSwapCommand parses a swap command. The leading "swap" is optional and
// "for" may stand in for "to":
//   - "swap 10 USDT to TI"
//   - "0.5 BNB to TI"
//   - "1000 TI for USDT"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	fields := strings.Fields(strings.ToUpper(command))
	if len(fields) > 0 && fields[0] == "SWAP" {
		fields = fields[1:]
	}
	if len(fields) != 4 || (fields[2] != "TO" && fields[2] != "FOR") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, usage)
	}

	amount, err := decimal.NewFromString(fields[0])
	if err != nil || strings.ContainsAny(fields[0], "eE+-") {
		return nil, fmt.Errorf("%w: %q is not an amount", ErrInvalidCommand, fields[0])
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidCommand)
	}

	return &types.SwapRequest{
		Amount:      fields[0],
		SourceToken: fields[1],
		DestToken:   fields[3],
	}, nil
}

// ValidateSwapRequest checks that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	switch {
	case req.Amount == "":
		return fmt.Errorf("amount is required")
	case req.SourceToken == "":
		return fmt.Errorf("source token is required")
	case req.DestToken == "":
		return fmt.Errorf("destination token is required")
	case strings.EqualFold(req.SourceToken, req.DestToken):
		return fmt.Errorf("source and destination token must differ")
	}
	return nil
}

// NormalizeTokenSymbol upper-cases a symbol and resolves aliases
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if alias, ok := symbolAliases[symbol]; ok {
		return alias
	}
	return symbol
}
