package detector

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Platform identifies the chain family an address was matched against.
type Platform string

const (
	Ethereum Platform = "ethereum"
	PumpFun  Platform = "pumpfun"
	Tezos    Platform = "tezos"
	Tron     Platform = "tron"
	Cardano  Platform = "cardano"
	Polkadot Platform = "polkadot"
	Solana   Platform = "solana"
)

// Address is a contract address found in free text.
type Address struct {
	Raw      string   `json:"raw_address"`
	Platform Platform `json:"platform"`
}

// Rule binds a platform to the pattern that recognises its addresses.
type Rule struct {
	Platform Platform
	Pattern  *regexp.Regexp
}

const base58 = `1-9A-HJ-NP-Za-km-z`

// Rules is evaluated in order and the first rule that matches wins. Prefixed
// formats come before the bare base58 length rules, which overlap with almost
// everything else.
var Rules = []Rule{
	{Platform: Ethereum, Pattern: regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)},
	{Platform: PumpFun, Pattern: regexp.MustCompile(`\b[A-Za-z0-9]+pump\b`)},
	{Platform: Tezos, Pattern: regexp.MustCompile(`\bKT1[` + base58 + `]{33}\b`)},
	{Platform: Tron, Pattern: regexp.MustCompile(`\bT[` + base58 + `]{33}\b`)},
	{Platform: Cardano, Pattern: regexp.MustCompile(`\b(?:addr1|addr_test1)[0-9a-z]{38,}\b`)},
	{Platform: Polkadot, Pattern: regexp.MustCompile(`\b[` + base58 + `]{47,48}\b`)},
	{Platform: Solana, Pattern: regexp.MustCompile(`\b[` + base58 + `]{32,44}\b`)},
}

// Detect returns the first substring matched by the first matching rule.
func Detect(text string) (Address, bool) {
	for _, rule := range Rules {
		if m := rule.Pattern.FindString(text); m != "" {
			return Address{Raw: m, Platform: rule.Platform}, true
		}
	}
	return Address{}, false
}

// Display renders the address for humans. EVM addresses get their EIP-55
// checksum casing; everything else is returned untouched.
func (a Address) Display() string {
	if a.Platform == Ethereum && common.IsHexAddress(a.Raw) {
		return common.HexToAddress(a.Raw).Hex()
	}
	return a.Raw
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Display() + " (" + string(a.Platform) + ")"
}

// ParsePlatform maps a user supplied tag onto a Platform. Accepts the
// "pump-fun" spelling used by the pump.fun community.
func ParsePlatform(s string) (Platform, bool) {
	tag := strings.ToLower(strings.TrimSpace(s))
	if tag == "pump-fun" || tag == "pump.fun" {
		tag = string(PumpFun)
	}
	for _, rule := range Rules {
		if string(rule.Platform) == tag {
			return rule.Platform, true
		}
	}
	return "", false
}
