package prompt

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callwatch/internal/llm"
	"callwatch/internal/token"
)

func sampleRecord() *token.Record {
	rank := int64(24)
	return &token.Record{
		Name:            "Dai",
		Symbol:          "DAI",
		PlatformID:      "ethereum",
		CurrentPriceUSD: decimal.NewNullDecimal(decimal.RequireFromString("0.99985")),
		PriceChangePct: map[token.Horizon]decimal.NullDecimal{
			token.Horizon24h: decimal.NewNullDecimal(decimal.RequireFromString("0.01")),
		},
		MarketCapRank:   &rank,
		ListedExchanges: []string{"Binance", "Coinbase Exchange", "Kraken"},
	}
}

func TestAssembleWithData(t *testing.T) {
	msgs := Assemble(sampleRecord(), "new call DAI, send it")
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)

	body := msgs[1].Content
	assert.Contains(t, body, "Token Name : Dai")
	assert.Contains(t, body, "Token Price : 0.99985")
	assert.Contains(t, body, "Price Change Percentage in 24h : 0.01")
	assert.Contains(t, body, "Price Change Percentage in 7d : n/a")
	assert.Contains(t, body, "Market Cap Rank - All Coins on Coingecko : 24")
	assert.Contains(t, body, "Twitter Followers : n/a")
	assert.Contains(t, body, "Exchanges Listed : Binance - Coinbase Exchange - Kraken")
	assert.True(t, strings.HasSuffix(body, "new call DAI, send it"))
	assert.Contains(t, body, "Do not reflect the data")
}

func TestAssembleWithoutData(t *testing.T) {
	msgs := Assemble(nil, "hello")
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)

	body := msgs[0].Content
	assert.Contains(t, body, "hello")
	assert.Contains(t, body, "Summary of Key Metrics")
	assert.Contains(t, body, "Transparency in Reasoning")
	for _, f := range Fields(sampleRecord()) {
		assert.NotContains(t, body, f.Label+" :", "unexpected field %q", f.Label)
	}
}

func TestFieldsCoverEveryHorizon(t *testing.T) {
	fields := Fields(&token.Record{})
	labels := make(map[string]string, len(fields))
	for _, f := range fields {
		labels[f.Label] = f.Value
	}
	for _, h := range token.Horizons {
		v, ok := labels["Price Change Percentage in "+string(h)]
		assert.True(t, ok, string(h))
		assert.Equal(t, "n/a", v)
	}
	assert.Equal(t, "n/a", labels["Exchanges Listed"])
}
