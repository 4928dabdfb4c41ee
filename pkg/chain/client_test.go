package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRouter  = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	testToken   = common.HexToAddress("0x8b5be89c0f4eabbe51fd13cf21824b65b79527f3")
	testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bscParams   = ChainParams{
		ChainID:        "0x38",
		ChainName:      "Binance Smart Chain Mainnet",
		NativeSymbol:   "BNB",
		NativeDecimals: 18,
		RPCURLs:        []string{"https://bsc-dataseed1.binance.org/"},
		ExplorerURLs:   []string{"https://bscscan.com/"},
	}
)

type fakeProvider struct {
	present     bool
	accounts    []common.Address
	accountsErr error
	chainID     string
	known       map[string]bool
	added       []ChainParams
	switchErr   error

	balance  *big.Int
	callFn   func(msg ethereum.CallMsg) ([]byte, error)
	gasPrice *big.Int
	gasErr   error

	sent          []TxRequest
	sendErr       error
	receiptStatus uint64
	receiptMisses int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		present:       true,
		accounts:      []common.Address{testAccount},
		chainID:       "0x1",
		known:         map[string]bool{"0x1": true},
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (p *fakeProvider) Detect(context.Context) bool { return p.present }

func (p *fakeProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return p.accounts, p.accountsErr
}

func (p *fakeProvider) ChainID(context.Context) (string, error) { return p.chainID, nil }

func (p *fakeProvider) SwitchChain(_ context.Context, id string) error {
	if p.switchErr != nil {
		return p.switchErr
	}
	if !p.known[id] {
		return codeError{code: 4902, msg: "Unrecognized chain ID " + id}
	}
	p.chainID = id
	return nil
}

func (p *fakeProvider) AddChain(_ context.Context, params ChainParams) error {
	p.added = append(p.added, params)
	p.known[params.ChainID] = true
	return nil
}

func (p *fakeProvider) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	if p.balance == nil {
		return nil, errors.New("connection refused")
	}
	return p.balance, nil
}

func (p *fakeProvider) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if p.callFn == nil {
		return nil, errors.New("connection refused")
	}
	return p.callFn(msg)
}

func (p *fakeProvider) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 210_000, nil
}

func (p *fakeProvider) SuggestGasPrice(context.Context) (*big.Int, error) {
	return p.gasPrice, p.gasErr
}

func (p *fakeProvider) SendTransaction(_ context.Context, req TxRequest) (common.Hash, error) {
	if p.sendErr != nil {
		return common.Hash{}, p.sendErr
	}
	p.sent = append(p.sent, req)
	return common.BigToHash(big.NewInt(int64(len(p.sent)))), nil
}

func (p *fakeProvider) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if p.receiptMisses > 0 {
		p.receiptMisses--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: p.receiptStatus, TxHash: hash}, nil
}

func newTestClient(p Provider) *Client {
	return NewClient(p, bscParams, testRouter,
		WithDetectRetry(1, time.Millisecond),
		WithReceiptPoll(time.Millisecond))
}

func TestConnectAddsUnknownChain(t *testing.T) {
	p := newFakeProvider()
	c := newTestClient(p)

	addr, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAccount, addr)
	assert.Equal(t, "0x38", p.chainID)
	require.Len(t, p.added, 1)
	assert.Equal(t, "Binance Smart Chain Mainnet", p.added[0].ChainName)

	account, ok := c.Account()
	assert.True(t, ok)
	assert.Equal(t, testAccount, account)
}

func TestConnectSkipsSwitchOnTargetChain(t *testing.T) {
	p := newFakeProvider()
	p.chainID = "0x38"
	p.switchErr = errors.New("should not switch")

	_, err := newTestClient(p).Connect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.added)
}

func TestConnectWithoutProvider(t *testing.T) {
	_, err := newTestClient(nil).Connect(context.Background())
	assert.ErrorIs(t, err, ErrWalletNotFound)

	p := newFakeProvider()
	p.present = false
	_, err = newTestClient(p).Connect(context.Background())
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestConnectPropagatesRejection(t *testing.T) {
	p := newFakeProvider()
	p.switchErr = codeError{code: 4001, msg: "User rejected the request."}

	c := newTestClient(p)
	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)

	_, ok := c.Account()
	assert.False(t, ok)
}

func TestGetBalanceDegradesToZero(t *testing.T) {
	p := newFakeProvider()
	c := newTestClient(p)

	assert.True(t, c.GetBalance(context.Background(), testAccount, common.Address{}).IsZero())
	assert.True(t, c.GetBalance(context.Background(), testAccount, testToken).IsZero())

	p.balance, _ = new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", c.GetBalance(context.Background(), testAccount, common.Address{}).String())
}

func TestGetBalanceReadsTokenDecimals(t *testing.T) {
	p := newFakeProvider()
	p.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		method, err := erc20Contract.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "decimals":
			return method.Outputs.Pack(uint8(6))
		case "balanceOf":
			return method.Outputs.Pack(big.NewInt(2_500_000))
		}
		return nil, errors.New("unexpected call " + method.Name)
	}

	got := newTestClient(p).GetBalance(context.Background(), testAccount, testToken)
	assert.Equal(t, "2.5", got.String())
}

func TestGetFeeEstimateFallback(t *testing.T) {
	p := newFakeProvider()
	p.gasErr = errors.New("method not found")
	c := newTestClient(p)

	fee := c.GetFeeEstimate(context.Background())
	assert.True(t, fee.Fallback)
	assert.Equal(t, Gwei(3), fee.GasPriceWei)

	p.gasErr = nil
	p.gasPrice = Gwei(5)
	fee = c.GetFeeEstimate(context.Background())
	assert.False(t, fee.Fallback)
	assert.Equal(t, Gwei(5), fee.GasPriceWei)
}

func TestAmountsOutUnpacksRouterResult(t *testing.T) {
	p := newFakeProvider()
	p.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		assert.Equal(t, testRouter, *msg.To)
		method := routerContract.Methods["getAmountsOut"]
		return method.Outputs.Pack([]*big.Int{big.NewInt(100), big.NewInt(785)})
	}

	amounts, err := newTestClient(p).AmountsOut(context.Background(), big.NewInt(100), []common.Address{testToken, testAccount})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, int64(785), amounts[1].Int64())
}

func TestWritesRequireConnection(t *testing.T) {
	_, err := newTestClient(newFakeProvider()).Transfer(context.Background(), testToken, testAccount, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTransferWaitsForReceipt(t *testing.T) {
	p := newFakeProvider()
	p.receiptMisses = 2
	c := newTestClient(p)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	receipt, err := c.Transfer(context.Background(), testToken, testAccount, big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Len(t, p.sent, 1)
	assert.Equal(t, testToken, p.sent[0].To)

	args, err := erc20Contract.Methods["transfer"].Inputs.Unpack(p.sent[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, testAccount, args[0])
	assert.Equal(t, int64(42), args[1].(*big.Int).Int64())
}

func TestRevertedReceiptIsTransferError(t *testing.T) {
	p := newFakeProvider()
	p.receiptStatus = types.ReceiptStatusFailed
	c := newTestClient(p)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	_, err = c.Approve(context.Background(), testToken, testRouter, MaxAllowance())
	var txErr *TransferError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "approve", txErr.Op)
}

func TestSendRejectionIsClassified(t *testing.T) {
	p := newFakeProvider()
	c := newTestClient(p)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	p.sendErr = codeError{code: 4001, msg: "User denied transaction signature."}
	_, err = c.Swap(context.Background(), SwapCall{
		Kind:         SwapTokensForTokens,
		AmountIn:     big.NewInt(1),
		AmountOutMin: big.NewInt(0),
		Path:         []common.Address{testToken, testAccount},
		Recipient:    testAccount,
		Deadline:     time.Now().Add(20 * time.Minute),
	})
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestSwapCallPackAttachesNativeValue(t *testing.T) {
	call := SwapCall{
		Kind:         SwapNativeForTokens,
		AmountIn:     big.NewInt(1000),
		AmountOutMin: big.NewInt(900),
		Path:         []common.Address{testAccount, testToken},
		Recipient:    testAccount,
		Deadline:     time.Unix(1_700_000_000, 0),
	}

	data, value, err := call.Pack()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), value.Int64())

	method, err := routerContract.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactETHForTokensSupportingFeeOnTransferTokens", method.Name)

	call.Kind = SwapTokensForNative
	data, value, err = call.Pack()
	require.NoError(t, err)
	assert.Zero(t, value.Sign())
	method, err = routerContract.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactTokensForETHSupportingFeeOnTransferTokens", method.Name)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, SwapNativeForTokens, KindFor(true, false))
	assert.Equal(t, SwapTokensForNative, KindFor(false, true))
	assert.Equal(t, SwapTokensForTokens, KindFor(false, false))
}
