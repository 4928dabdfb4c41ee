package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a := New("")
	b := New("")
	a.ChatMessages.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ChatMessages))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ChatMessages))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	m.SetPrice(decimal.RequireFromString("0.125"))
	m.Registrations.WithLabelValues("new").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_price_token_usd 0.125")
	assert.Contains(t, string(body), `test_airdrop_registrations_total{result="new"} 1`)
}
