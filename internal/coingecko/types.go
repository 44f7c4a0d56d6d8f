package coingecko

import (
	"encoding/json"
	"time"
)

// SearchCoin is one entry of the /search coins list.
type SearchCoin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	APISymbol     string `json:"api_symbol"`
	MarketCapRank *int   `json:"market_cap_rank"`
}

// PricePoint is one sample of a market chart.
type PricePoint struct {
	Time     time.Time
	PriceUSD float64
}

type searchResponse struct {
	Coins []SearchCoin `json:"coins"`
}

type coinDetailResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

type marketChartResponse struct {
	Prices [][]json.Number `json:"prices"`
}
