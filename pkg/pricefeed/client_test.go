package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var token = common.HexToAddress("0x8b5be89c0f4eabbe51fd13cf21824b65b79527f3")

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFirstPair(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, strings.ToLower(token.Hex())))
		_, _ = w.Write([]byte(`{"pairs":[{"dexId":"pancakeswap","priceUsd":"0.0213"},{"priceUsd":"9"}]}`))
	})

	c := New(srv.URL+"/latest/dex/tokens/", token)
	price, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.0213", price.String())
}

func TestFetchRetries(t *testing.T) {
	var calls int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"pairs":[{"priceUsd":"0.5"}]}`))
	})

	c := New(srv.URL, token, WithRetry(3, time.Millisecond))
	price, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.5", price.String())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLatestFallsBack(t *testing.T) {
	fallback := decimal.RequireFromString("0.125")

	for name, body := range map[string]string{
		"no pairs":   `{"pairs":[]}`,
		"null pairs": `{"pairs":null}`,
		"zero price": `{"pairs":[{"priceUsd":"0"}]}`,
		"bad json":   `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			c := New(srv.URL, token, WithRetry(1, 0))
			assert.True(t, fallback.Equal(c.Latest(context.Background(), fallback)))
		})
	}
}

func TestWatchCachesPrice(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs":[{"priceUsd":"0.02"}]}`))
	})

	c := New(srv.URL, token, WithRetry(1, 0))
	ch := make(chan decimal.Decimal, 4)
	sub := c.Subscribe(ch)
	defer sub.Unsubscribe()

	c.Watch(context.Background(), time.Hour, func() decimal.Decimal { return decimal.RequireFromString("0.125") })
	defer c.Stop()

	assert.Equal(t, "0.02", c.Current().String())
	assert.Equal(t, "0.02", (<-ch).String())
}
