package swap

import (
	"context"
	"math/big"
	"time"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/quote"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gas limits used when the swap cannot be simulated
const (
	approveAndSellGas  uint64 = 400_000 // token -> native, approval still needed
	approveAndTradeGas uint64 = 450_000 // token -> token, approval still needed
	fallbackSwapGas    uint64 = 350_000 // simulation failed
)

// GasEstimate is the expected network fee for a swap
type GasEstimate struct {
	Limit       uint64          `json:"limit,omitempty"`
	Native      decimal.Decimal `json:"native"`
	USD         decimal.Decimal `json:"usd"`
	Placeholder bool            `json:"placeholder"`
}

// PlaceholderGas is shown before a wallet is connected
func PlaceholderGas() GasEstimate {
	return GasEstimate{
		Native:      decimal.RequireFromString("0.0015"),
		USD:         decimal.RequireFromString("0.90"),
		Placeholder: true,
	}
}

// NativeString formats the native cost with 5 decimals
func (g GasEstimate) NativeString() string {
	return g.Native.StringFixed(5)
}

// USDString formats the USD cost with 2 decimals
func (g GasEstimate) USDString() string {
	return g.USD.StringFixed(2)
}

// GasEstimator simulates swaps to price them
type GasEstimator struct {
	Ledger    chain.Ledger
	NativeUSD decimal.Decimal
	Deadline  time.Duration
	Log       *zap.Logger
}

// Estimate prices the swap described by res for account. Approval-pending
// swaps use fixed limits since they cannot be simulated yet.
func (g GasEstimator) Estimate(ctx context.Context, account common.Address, in, out types.Token, res quote.Result) GasEstimate {
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}
	if len(res.Path) < 2 || res.AmountIn == nil {
		return GasEstimate{Native: decimal.Zero, USD: decimal.Zero}
	}

	kind := chain.KindFor(in.IsNative(), out.IsNative())
	limit, err := g.limit(ctx, account, kind, in, res)
	if err != nil {
		log.Debug("swap simulation failed, using fallback gas", zap.Error(err))
		limit = fallbackSwapGas
	}

	gasPrice, err := g.Ledger.GasPrice(ctx)
	if err != nil || gasPrice == nil {
		log.Debug("gas price unavailable, using placeholder", zap.Error(err))
		return PlaceholderGas()
	}

	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(limit))
	native := chain.ToDecimal(cost, types.NativeDecimals)
	return GasEstimate{
		Limit:  limit,
		Native: native,
		USD:    native.Mul(g.NativeUSD).Round(2),
	}
}

func (g GasEstimator) limit(ctx context.Context, account common.Address, kind chain.SwapKind, in types.Token, res quote.Result) (uint64, error) {
	if kind != chain.SwapNativeForTokens {
		allowance, err := g.Ledger.Allowance(ctx, in.Address, account, g.Ledger.Router())
		if err != nil {
			return 0, err
		}
		if allowance.Cmp(res.AmountIn) < 0 {
			if kind == chain.SwapTokensForNative {
				return approveAndSellGas, nil
			}
			return approveAndTradeGas, nil
		}
	}

	return g.Ledger.EstimateSwap(ctx, account, chain.SwapCall{
		Kind:         kind,
		AmountIn:     res.AmountIn,
		AmountOutMin: big.NewInt(0),
		Path:         res.Path,
		Recipient:    account,
		Deadline:     time.Now().Add(g.Deadline),
	})
}
