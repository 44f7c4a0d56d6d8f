package coingecko

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, APIKey: "demo-key", Timeout: 2 * time.Second}, zerolog.Nop())
}

func TestContractInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/ethereum/contract/0xabc", r.URL.Path)
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"dai","name":"Dai","market_data":{"current_price":{"usd":1.0001}}}`))
	})

	payload, err := client.ContractInfo(context.Background(), "ethereum", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "Dai", payload["name"])

	md, ok := payload["market_data"].(map[string]any)
	require.True(t, ok)
	price, ok := md["current_price"].(map[string]any)["usd"].(json.Number)
	require.True(t, ok, "numbers must decode as json.Number")
	assert.Equal(t, "1.0001", price.String())
}

func TestContractInfoNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"coin not found"}`))
	})

	_, err := client.ContractInfo(context.Background(), "solana", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "coin not found")
}

func TestServerErrorIsNotNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Search(context.Background(), "pepe")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "429")
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "pepe coin", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"coins":[{"id":"pepe","name":"Pepe","symbol":"PEPE","market_cap_rank":30},{"id":"pepe-2","name":"Pepe 2.0","symbol":"PEPE2.0"}]}`))
	})

	coins, err := client.Search(context.Background(), "pepe coin")
	require.NoError(t, err)
	require.Len(t, coins, 2)
	assert.Equal(t, "pepe", coins[0].ID)
	require.NotNil(t, coins[0].MarketCapRank)
	assert.Equal(t, 30, *coins[0].MarketCapRank)
	assert.Nil(t, coins[1].MarketCapRank)
}

func TestCoinPlatforms(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/pepe", r.URL.Path)
		q := r.URL.Query()
		for _, key := range []string{"localization", "tickers", "market_data", "community_data", "developer_data", "sparkline"} {
			assert.Equal(t, "false", q.Get(key), key)
		}
		_, _ = w.Write([]byte(`{"id":"pepe","name":"Pepe","platforms":{"ethereum":"0x6982508145454ce325ddbe47a25d4ec3d2311933"}}`))
	})

	platforms, err := client.CoinPlatforms(context.Background(), "pepe")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ethereum": "0x6982508145454ce325ddbe47a25d4ec3d2311933"}, platforms)
}

func TestMarketChart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/dai/market_chart", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"prices":[[1700000000000,0.999],[1700003600000,1.001]]}`))
	})

	points, err := client.MarketChart(context.Background(), "dai", 7)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), points[0].Time)
	assert.InDelta(t, 1.001, points[1].PriceUSD, 1e-9)
}

func TestArgumentValidation(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	ctx := context.Background()

	_, err := client.ContractInfo(ctx, "", "0xabc")
	assert.Error(t, err)
	_, err = client.Search(ctx, "  ")
	assert.Error(t, err)
	_, err = client.CoinPlatforms(ctx, "")
	assert.Error(t, err)
	_, err = client.MarketChart(ctx, "dai", 0)
	assert.Error(t, err)
}
