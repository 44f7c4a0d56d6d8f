package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayTickers is how many tickers survive normalisation.
const DisplayTickers = 5

// Horizon is a price change window.
type Horizon string

const (
	Horizon1h   Horizon = "1h"
	Horizon24h  Horizon = "24h"
	Horizon7d   Horizon = "7d"
	Horizon14d  Horizon = "14d"
	Horizon30d  Horizon = "30d"
	Horizon60d  Horizon = "60d"
	Horizon200d Horizon = "200d"
	Horizon1y   Horizon = "1y"
)

// Horizons lists every window in display order.
var Horizons = []Horizon{Horizon1h, Horizon24h, Horizon7d, Horizon14d, Horizon30d, Horizon60d, Horizon200d, Horizon1y}

var errIncomplete = errors.New("incomplete token payload")

// Ticker is a single exchange listing kept for the debug dump.
type Ticker struct {
	Market string              `json:"market"`
	Base   string              `json:"base"`
	Target string              `json:"target"`
	Last   decimal.NullDecimal `json:"last"`
	Volume decimal.NullDecimal `json:"volume"`
}

// Record is the normalised view of a CoinGecko coin payload. Every field is
// a scalar; currency maps are reduced to usd and locale maps to en.
type Record struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	CoinID          string `json:"coin_id"`
	PlatformID      string `json:"platform_id"`
	ContractAddress string `json:"contract_address"`

	CurrentPriceUSD decimal.NullDecimal `json:"current_price_usd"`
	MarketCapUSD    decimal.NullDecimal `json:"market_cap_usd"`
	ATHUSD          decimal.NullDecimal `json:"ath_usd"`
	ATHChangePctUSD decimal.NullDecimal `json:"ath_change_pct_usd"`
	ATHDate         string              `json:"ath_date"`
	ATLUSD          decimal.NullDecimal `json:"atl_usd"`
	High24hUSD      decimal.NullDecimal `json:"high_24h_usd"`
	Low24hUSD       decimal.NullDecimal `json:"low_24h_usd"`

	DescriptionEN  string `json:"description_en"`
	LocalizationEN string `json:"localization_en"`

	SentimentUpPct   decimal.NullDecimal `json:"sentiment_up_pct"`
	SentimentDownPct decimal.NullDecimal `json:"sentiment_down_pct"`
	MarketCapRank    *int64              `json:"market_cap_rank"`

	PriceChangePct        map[Horizon]decimal.NullDecimal `json:"price_change_pct"`
	MarketCapChangePct24h decimal.NullDecimal             `json:"market_cap_change_pct_24h"`
	MarketCapFDVRatio     decimal.NullDecimal             `json:"market_cap_fdv_ratio"`
	TwitterFollowers      *int64                          `json:"twitter_followers"`

	ListedExchanges []string `json:"listed_exchanges"`
	Tickers         []Ticker `json:"tickers,omitempty"`
}

var localeKeyed = []string{"description", "localization", "name_localized"}

// Fields under market_data that are keyed by currency. Dates are listed here
// too because older payloads carried ath_date as a per-currency map.
var currencyKeyed = map[string]bool{
	"current_price":                                true,
	"market_cap":                                   true,
	"fully_diluted_valuation":                      true,
	"total_volume":                                 true,
	"high_24h":                                     true,
	"low_24h":                                      true,
	"ath":                                          true,
	"ath_change_percentage":                        true,
	"ath_date":                                     true,
	"atl":                                          true,
	"atl_change_percentage":                        true,
	"atl_date":                                     true,
	"price_change_24h_in_currency":                 true,
	"price_change_percentage_1h_in_currency":       true,
	"price_change_percentage_24h_in_currency":      true,
	"price_change_percentage_7d_in_currency":       true,
	"price_change_percentage_14d_in_currency":      true,
	"price_change_percentage_30d_in_currency":      true,
	"price_change_percentage_60d_in_currency":      true,
	"price_change_percentage_200d_in_currency":     true,
	"price_change_percentage_1y_in_currency":       true,
	"market_cap_change_24h_in_currency":            true,
	"market_cap_change_percentage_24h_in_currency": true,
}

// Flatten returns a copy of a raw coin payload with locale maps reduced to
// en, currency maps under market_data reduced to usd and the ticker list cut
// to DisplayTickers entries. Values that are already scalars are kept, so
// flattening a flattened payload is a no-op. The input is not modified.
func Flatten(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	for _, key := range localeKeyed {
		if v, ok := out[key]; ok {
			out[key] = pick(v, "en")
		}
	}

	if md, ok := raw["market_data"].(map[string]any); ok {
		flat := make(map[string]any, len(md))
		for k, v := range md {
			if currencyKeyed[k] {
				flat[k] = pick(v, "usd")
				continue
			}
			if m, ok := v.(map[string]any); ok {
				if usd, ok := m["usd"]; ok {
					v = usd
				}
			}
			flat[k] = v
		}
		out["market_data"] = flat
	}

	if tickers, ok := raw["tickers"].([]any); ok && len(tickers) > DisplayTickers {
		out["tickers"] = append([]any(nil), tickers[:DisplayTickers]...)
	}

	return out
}

// pick unwraps a keyed map to one entry. Scalars pass through untouched.
func pick(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return v
}

// NewRecord normalises a raw coin payload. The exchange list is taken from
// the full ticker array before truncation. A payload without a name or
// market data is rejected.
func NewRecord(raw map[string]any) (*Record, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty payload", errIncomplete)
	}

	exchanges := listedExchanges(raw["tickers"])
	flat := Flatten(raw)

	name := str(flat["name"])
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", errIncomplete)
	}
	md, ok := flat["market_data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing market_data", errIncomplete)
	}

	rec := &Record{
		Name:            name,
		Symbol:          strings.ToUpper(str(flat["symbol"])),
		CoinID:          str(flat["id"]),
		PlatformID:      str(flat["asset_platform_id"]),
		ContractAddress: str(flat["contract_address"]),

		CurrentPriceUSD: num(md["current_price"]),
		MarketCapUSD:    num(md["market_cap"]),
		ATHUSD:          num(md["ath"]),
		ATHChangePctUSD: num(md["ath_change_percentage"]),
		ATHDate:         str(md["ath_date"]),
		ATLUSD:          num(md["atl"]),
		High24hUSD:      num(md["high_24h"]),
		Low24hUSD:       num(md["low_24h"]),

		DescriptionEN:  strings.TrimSpace(str(flat["description"])),
		LocalizationEN: str(flat["localization"]),

		SentimentUpPct:   num(flat["sentiment_votes_up_percentage"]),
		SentimentDownPct: num(flat["sentiment_votes_down_percentage"]),
		MarketCapRank:    integer(flat["market_cap_rank"]),

		PriceChangePct:        make(map[Horizon]decimal.NullDecimal, len(Horizons)),
		MarketCapChangePct24h: num(md["market_cap_change_percentage_24h"]),
		MarketCapFDVRatio:     num(md["market_cap_fdv_ratio"]),

		ListedExchanges: exchanges,
		Tickers:         tickers(flat["tickers"]),
	}

	if rec.MarketCapRank == nil {
		rec.MarketCapRank = integer(md["market_cap_rank"])
	}
	if community, ok := flat["community_data"].(map[string]any); ok {
		rec.TwitterFollowers = integer(community["twitter_followers"])
	}

	for _, h := range Horizons {
		scalar := num(md["price_change_percentage_"+string(h)])
		usd := num(md["price_change_percentage_"+string(h)+"_in_currency"])
		// CoinGecko only publishes the 1h change per currency.
		if h == Horizon1h || !scalar.Valid {
			scalar = usd
		}
		rec.PriceChangePct[h] = scalar
	}

	return rec, nil
}

func listedExchanges(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		t, ok := item.(map[string]any)
		if !ok {
			continue
		}
		market, _ := t["market"].(map[string]any)
		if name := str(market["name"]); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func tickers(v any) []Ticker {
	list, _ := v.([]any)
	if len(list) == 0 {
		return nil
	}
	out := make([]Ticker, 0, len(list))
	for _, item := range list {
		t, ok := item.(map[string]any)
		if !ok {
			continue
		}
		market, _ := t["market"].(map[string]any)
		out = append(out, Ticker{
			Market: str(market["name"]),
			Base:   str(t["base"]),
			Target: str(t["target"]),
			Last:   num(t["last"]),
			Volume: num(t["volume"]),
		})
	}
	return out
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func num(v any) decimal.NullDecimal {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(x))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(x)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(x))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	default:
		return decimal.NullDecimal{}
	}
}

func integer(v any) *int64 {
	d := num(v)
	if !d.Valid {
		return nil
	}
	n := d.Decimal.IntPart()
	return &n
}
