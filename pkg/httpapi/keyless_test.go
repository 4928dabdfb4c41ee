package httpapi

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/quote"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wbnb = types.Token{Symbol: "WBNB", Address: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Decimals: 18}

const nodeABI = `[
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

// newNode serves eth_call for token decimals and a router that turns 1 USDT
// into 7.85 Ti
func newNode(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(nodeABI))
	require.NoError(t, err)
	decimals := map[common.Address]uint8{usdt.Address: 18, ti.Address: 9, wbnb.Address: 18}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		reply := func(result interface{}) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
		}
		fail := func(msg string) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": -32000, "message": msg},
			})
		}

		switch req.Method {
		case "eth_chainId":
			reply("0x38")
		case "eth_call":
			atomic.AddInt32(calls, 1)
			var args callArgs
			if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &args) != nil || args.To == nil {
				fail("bad call")
				return
			}
			input := args.Input
			if len(input) == 0 {
				input = args.Data
			}
			if len(input) < 4 {
				fail("execution reverted")
				return
			}
			method, err := parsed.MethodById(input[:4])
			if err != nil {
				fail("execution reverted")
				return
			}
			var out []byte
			switch method.Name {
			case "decimals":
				d, ok := decimals[*args.To]
				if !ok {
					fail("execution reverted")
					return
				}
				out, err = method.Outputs.Pack(d)
			case "getAmountsOut":
				values, uerr := method.Inputs.Unpack(input[4:])
				if uerr != nil {
					fail(uerr.Error())
					return
				}
				amountIn := values[0].(*big.Int)
				path := values[1].([]common.Address)
				amounts := make([]*big.Int, len(path))
				amounts[0] = amountIn
				for i := 1; i < len(path); i++ {
					amounts[i] = big.NewInt(0)
				}
				// 18 -> 9 decimals at 7.85 Ti per USDT
				last := new(big.Int).Mul(amountIn, big.NewInt(785))
				amounts[len(path)-1] = last.Div(last, big.NewInt(100_000_000_000))
				out, err = method.Outputs.Pack(amounts)
			}
			if err != nil {
				fail(err.Error())
				return
			}
			reply(hexutil.Bytes(out))
		default:
			fail("method not found")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQuoteWithoutWalletKey(t *testing.T) {
	var calls int32
	node := newNode(t, &calls)

	reader, err := chain.NewReadProvider(node.URL)
	require.NoError(t, err)
	t.Cleanup(reader.Close)

	client := chain.NewClient(reader, chain.ChainParams{ChainID: "0x38"}, common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E"))
	s := newTestServerWithQuotes(t, decimal.Zero, quote.NewEngine(client, wbnb, nil))

	rec := s.do(http.MethodGet, "/api/quote?amount=10&from=USDT&to=Ti", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"amount_in":"10","amount_out":"78.5","path":["USDT","BNB","Ti"],"available":true}`, rec.Body.String())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "two decimals reads and one router call")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Quotes.WithLabelValues("ok")))
}
