package chains

import "strings"

// Entry maps one canonical chain name to the spellings used by upstream APIs.
type Entry struct {
	Canonical string
	Aliases   []string
}

// Registry is an ordered alias table. When two entries share an alias the
// earlier entry wins.
type Registry []Entry

// DefaultRegistry returns the chains known to the DefiLlama endpoints we read.
func DefaultRegistry() Registry {
	return Registry{
		{"Ethereum", []string{"Ethereum", "ethereum", "ETH"}},
		{"Solana", []string{"Solana", "solana", "SOL"}},
		{"BSC", []string{"BSC", "BNB Chain", "Binance Smart Chain", "BNB", "bsc"}},
		{"Arbitrum", []string{"Arbitrum", "Arbitrum One", "arbitrum"}},
		{"Base", []string{"Base", "base"}},
		{"Polygon", []string{"Polygon", "Polygon POS", "polygon", "Matic"}},
		{"Avalanche", []string{"Avalanche", "AVAX", "avalanche"}},
		{"Optimism", []string{"Optimism", "optimism", "OP Mainnet"}},
		{"Tron", []string{"Tron", "TRON", "tron"}},
		{"Sui", []string{"Sui", "sui"}},
		{"Aptos", []string{"Aptos", "aptos"}},
		{"TON", []string{"TON", "ton", "Toncoin"}},
		{"Fantom", []string{"Fantom", "fantom", "FTM"}},
		{"zkSync Era", []string{"zkSync Era", "zksync", "zkSync"}},
		{"Mantle", []string{"Mantle", "mantle"}},
		{"Scroll", []string{"Scroll", "scroll"}},
		{"Blast", []string{"Blast", "blast"}},
		{"Linea", []string{"Linea", "linea"}},
		{"Mode", []string{"Mode", "mode"}},
		{"Sei", []string{"Sei", "sei"}},
	}
}

// Normalizer resolves raw chain names to their canonical spelling.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	lookup map[string]string
}

// NewNormalizer builds a Normalizer over a copy of reg.
func NewNormalizer(reg Registry) *Normalizer {
	lookup := make(map[string]string)
	for _, e := range reg {
		for _, alias := range append([]string{e.Canonical}, e.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(alias))
			if _, taken := lookup[key]; taken {
				continue
			}
			lookup[key] = e.Canonical
		}
	}
	return &Normalizer{lookup: lookup}
}

// Normalize trims raw and returns the canonical name of the first registry
// entry with a case-insensitive alias match. Unknown names come back trimmed.
func (n *Normalizer) Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	if canonical, ok := n.lookup[strings.ToLower(name)]; ok {
		return canonical
	}
	return name
}

// FindMatch returns the first target whose normalized name equals the
// normalized raw name.
func (n *Normalizer) FindMatch(raw string, targets []string) (string, bool) {
	want := n.Normalize(raw)
	for _, t := range targets {
		if n.Normalize(t) == want {
			return t, true
		}
	}
	return "", false
}
