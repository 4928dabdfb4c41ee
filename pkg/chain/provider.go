package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainParams is the metadata a wallet needs to add and switch to a network
type ChainParams struct {
	ChainID        string   `json:"chainId"` // hex, e.g. "0x38"
	ChainName      string   `json:"chainName"`
	NativeName     string   `json:"nativeName"`
	NativeSymbol   string   `json:"nativeSymbol"`
	NativeDecimals uint8    `json:"nativeDecimals"`
	RPCURLs        []string `json:"rpcUrls"`
	ExplorerURLs   []string `json:"blockExplorerUrls"`
}

// TxRequest is a transaction the wallet is asked to sign and broadcast
type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64 // zero means estimate
	Label string // shown in the confirmation prompt
}

// Provider is the wallet-provider boundary: account authorization, network
// management, reads, and signed writes. Only one request should be in flight
// at a time; callers serialize through the active flow.
type Provider interface {
	// Detect reports whether a provider is present and answering
	Detect(ctx context.Context) bool
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
	AddChain(ctx context.Context, params ChainParams) error

	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// NormalizeChainID canonicalizes a hex chain ID ("0x038" -> "0x38")
func NormalizeChainID(id string) (string, error) {
	n, err := hexutil.DecodeBig(id)
	if err != nil {
		// hexutil rejects leading zeros; retry leniently
		v, ok := new(big.Int).SetString(trimHexPrefix(id), 16)
		if !ok {
			return "", err
		}
		n = v
	}
	return hexutil.EncodeBig(n), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
