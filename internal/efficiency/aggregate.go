package efficiency

import (
	"math"

	"github.com/web3-frozen/chain-efficiency/internal/chains"
	"github.com/web3-frozen/chain-efficiency/internal/llama"
)

// Field picks the summed value out of a protocol.
type Field func(llama.Protocol) *float64

// Total24h selects the protocol's trailing 24h total.
func Total24h(p llama.Protocol) *float64 { return p.Total24h }

// AggregateByChain sums field per canonical chain. Protocols without a value,
// with a zero value, or listed on more than one chain are skipped: their
// per-chain split is unknown.
func AggregateByChain(protocols []llama.Protocol, field Field, norm *chains.Normalizer) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range protocols {
		v := field(p)
		if v == nil || *v == 0 || math.IsNaN(*v) || len(p.Chains) != 1 {
			continue
		}
		out[norm.Normalize(p.Chains[0])] += *v
	}
	return out
}

func AggregateVolume(protocols []llama.Protocol, norm *chains.Normalizer) map[string]float64 {
	return AggregateByChain(protocols, Total24h, norm)
}

func AggregateFees(protocols []llama.Protocol, norm *chains.Normalizer) map[string]float64 {
	return AggregateByChain(protocols, Total24h, norm)
}
