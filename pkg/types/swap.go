package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the sentinel address that stands for the chain's native coin
var NativeAddress = common.Address{}

// NativeDecimals is fixed for the native coin; contract tokens report their own
const NativeDecimals = 18

// Token describes an asset the portal can display or trade
type Token struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Glyph    string         `json:"glyph"`
}

// IsNative reports whether the token is the chain's native coin
func (t Token) IsNative() bool {
	return t.Address == NativeAddress
}

// Is compares tokens by address, ignoring display fields
func (t Token) Is(other Token) bool {
	return t.Address == other.Address
}

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
}

// SwapQuote is the router's answer for one input amount.
// A failed quote has AmountOut "0" and an empty Path.
type SwapQuote struct {
	AmountOut string           `json:"amount_out"`
	Path      []common.Address `json:"path"`
}

// ZeroQuote is returned whenever no route could be priced
func ZeroQuote() SwapQuote {
	return SwapQuote{AmountOut: "0"}
}

// Available reports whether the quote carries a usable route
func (q SwapQuote) Available() bool {
	return len(q.Path) > 0 && q.AmountOut != "" && q.AmountOut != "0"
}

// PathString renders the path as a hex address list
func (q SwapQuote) PathString() string {
	parts := make([]string, len(q.Path))
	for i, addr := range q.Path {
		parts[i] = addr.Hex()
	}
	return strings.Join(parts, " -> ")
}

// TokenList is the set of assets configured for the portal
type TokenList []Token

// BySymbol finds a token by case-insensitive symbol
func (l TokenList) BySymbol(symbol string) (Token, bool) {
	for _, t := range l {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// ByAddress finds a token by contract address
func (l TokenList) ByAddress(addr common.Address) (Token, bool) {
	for _, t := range l {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}
