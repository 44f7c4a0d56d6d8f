package token

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"callwatch/internal/coingecko"
	"callwatch/internal/detector"
	"callwatch/internal/llm"
)

// ErrUnresolved marks every resolution failure. Callers treat it as "no
// data available" and fall back to the text only prompt.
var ErrUnresolved = errors.New("token unresolved")

// MarketData is the subset of the CoinGecko client the resolver needs.
type MarketData interface {
	ContractInfo(ctx context.Context, chainSlug, address string) (map[string]any, error)
	Search(ctx context.Context, query string) ([]coingecko.SearchCoin, error)
	CoinPlatforms(ctx context.Context, id string) (map[string]string, error)
}

var _ MarketData = (*coingecko.Client)(nil)

// Resolver turns a detected address, or failing that free text, into a
// normalised Record.
type Resolver struct {
	data      MarketData
	completer llm.Completer
	slugs     detector.SlugTable
	logger    zerolog.Logger
}

// NewResolver wires a resolver. A nil slug table means DefaultSlugs.
func NewResolver(data MarketData, completer llm.Completer, slugs detector.SlugTable, logger zerolog.Logger) *Resolver {
	if slugs == nil {
		slugs = detector.DefaultSlugs()
	}
	return &Resolver{
		data:      data,
		completer: completer,
		slugs:     slugs,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve looks the token up by contract when an address was detected and
// by extracted name and chain otherwise. Every failure is reported as an
// error wrapping ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, detected *detector.Address, text string) (*Record, error) {
	if detected != nil {
		slug, ok := r.slugs.Slug(detected.Platform)
		if !ok {
			return nil, fmt.Errorf("%w: no chain slug for platform %s", ErrUnresolved, detected.Platform)
		}
		return r.byContract(ctx, slug, detected.Raw)
	}
	return r.byName(ctx, text)
}

func (r *Resolver) byContract(ctx context.Context, slug, address string) (*Record, error) {
	raw, err := r.data.ContractInfo(ctx, slug, address)
	if err != nil {
		return nil, fmt.Errorf("%w: contract lookup %s on %s: %w", ErrUnresolved, address, slug, err)
	}
	rec, err := NewRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: contract %s on %s: %w", ErrUnresolved, address, slug, err)
	}
	if rec.ContractAddress == "" {
		rec.ContractAddress = address
	}
	if rec.PlatformID == "" {
		rec.PlatformID = slug
	}

	r.logger.Debug().
		Str("chain", slug).
		Str("address", address).
		Str("coin_id", rec.CoinID).
		Msg("token resolved by contract")
	return rec, nil
}

func (r *Resolver) byName(ctx context.Context, text string) (*Record, error) {
	if r.completer == nil {
		return nil, fmt.Errorf("%w: no completer for name extraction", ErrUnresolved)
	}

	reply, err := r.completer.Complete(ctx, ExtractionPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("%w: extraction call: %w", ErrUnresolved, err)
	}
	cand, err := ParseExtraction(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}

	coins, err := r.data.Search(ctx, cand.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %w", ErrUnresolved, cand.Name, err)
	}
	coin, ok := bestMatch(coins, cand.Name)
	if !ok {
		return nil, fmt.Errorf("%w: no search results for %q", ErrUnresolved, cand.Name)
	}

	platforms, err := r.data.CoinPlatforms(ctx, coin.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: platforms of %s: %w", ErrUnresolved, coin.ID, err)
	}
	slug, address, ok := platformAddress(platforms, cand.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no contract on %q", ErrUnresolved, coin.ID, cand.Chain)
	}

	r.logger.Debug().
		Str("name", cand.Name).
		Str("chain", cand.Chain).
		Str("coin_id", coin.ID).
		Str("address", address).
		Msg("contract recovered from name")

	return r.byContract(ctx, slug, address)
}

func bestMatch(coins []coingecko.SearchCoin, name string) (coingecko.SearchCoin, bool) {
	if len(coins) == 0 {
		return coingecko.SearchCoin{}, false
	}
	for _, c := range coins {
		if strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return c, true
		}
	}
	return coins[0], true
}

func platformAddress(platforms map[string]string, chain string) (string, string, bool) {
	key := NormalizeChain(chain)
	if addr := strings.TrimSpace(platforms[key]); addr != "" {
		return key, addr, true
	}
	for slug, addr := range platforms {
		if NormalizeChain(slug) == key && strings.TrimSpace(addr) != "" {
			return slug, strings.TrimSpace(addr), true
		}
	}
	return "", "", false
}

var chainAliases = map[string]string{
	"eth":             "ethereum",
	"erc20":           "ethereum",
	"erc-20":          "ethereum",
	"ether":           "ethereum",
	"bsc":             "binance-smart-chain",
	"bnb":             "binance-smart-chain",
	"bnb-chain":       "binance-smart-chain",
	"bnb-smart-chain": "binance-smart-chain",
	"binance":         "binance-smart-chain",
	"bep20":           "binance-smart-chain",
	"bep-20":          "binance-smart-chain",
	"polygon":         "polygon-pos",
	"matic":           "polygon-pos",
	"arbitrum":        "arbitrum-one",
	"arb":             "arbitrum-one",
	"optimism":        "optimistic-ethereum",
	"op":              "optimistic-ethereum",
	"avalanche":       "avalanche",
	"avax":            "avalanche",
	"sol":             "solana",
	"pumpfun":         "solana",
	"pump-fun":        "solana",
	"pump.fun":        "solana",
	"trx":             "tron",
	"xtz":             "tezos",
	"ada":             "cardano",
	"dot":             "polkadot",
	"base-chain":      "base",
	"fantom-opera":    "fantom",
	"ftm":             "fantom",
	"ton":             "the-open-network",
	"sui-network":     "sui",
	"zksync-era":      "zksync",
	"cronos-chain":    "cronos",
}

var parenthesised = regexp.MustCompile(`\([^)]*\)`)

// NormalizeChain maps a free text chain name onto a CoinGecko platform key.
// Parenthesised qualifiers such as "(ERC-20)" are dropped unless they are
// all there is.
func NormalizeChain(name string) string {
	key := strings.TrimSpace(name)
	if stripped := strings.TrimSpace(parenthesised.ReplaceAllString(key, " ")); stripped != "" {
		key = stripped
	} else {
		key = strings.Trim(key, "() ")
	}
	key = strings.ToLower(key)
	key = strings.Join(strings.Fields(key), "-")
	for _, suffix := range []string{"-blockchain", "-network", "-mainnet"} {
		if trimmed := strings.TrimSuffix(key, suffix); trimmed != key && trimmed != "" {
			key = trimmed
			break
		}
	}
	if alias, ok := chainAliases[key]; ok {
		return alias
	}
	if trimmed := strings.TrimSuffix(key, "-chain"); trimmed != key {
		if alias, ok := chainAliases[trimmed]; ok {
			return alias
		}
	}
	return key
}
