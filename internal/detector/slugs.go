package detector

import (
	"fmt"
	"strings"
)

// SlugTable maps detector platforms onto CoinGecko asset platform ids.
type SlugTable map[Platform]string

// DefaultSlugs covers every platform in Rules. pump.fun mints are Solana SPL
// tokens, so they are looked up on the solana asset platform.
func DefaultSlugs() SlugTable {
	return SlugTable{
		Ethereum: "ethereum",
		PumpFun:  "solana",
		Tezos:    "tezos",
		Tron:     "tron",
		Cardano:  "cardano",
		Polkadot: "polkadot",
		Solana:   "solana",
	}
}

// WithOverrides returns a copy of the table with entries replaced from a
// platform -> slug map, typically loaded from configuration.
func (t SlugTable) WithOverrides(overrides map[string]string) (SlugTable, error) {
	out := make(SlugTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	for key, slug := range overrides {
		platform, ok := ParsePlatform(key)
		if !ok {
			return nil, fmt.Errorf("unknown platform %q in chain slug overrides", key)
		}
		slug = strings.TrimSpace(slug)
		if slug == "" {
			return nil, fmt.Errorf("empty chain slug for platform %q", key)
		}
		out[platform] = slug
	}
	return out, nil
}

// Slug returns the CoinGecko chain slug for a platform.
func (t SlugTable) Slug(p Platform) (string, bool) {
	slug, ok := t[p]
	return slug, ok && slug != ""
}
