package efficiency

import (
	"github.com/web3-frozen/chain-efficiency/internal/chains"
	"github.com/web3-frozen/chain-efficiency/internal/llama"
)

// ChainMetrics is the derived capital-efficiency record of one chain.
type ChainMetrics struct {
	Chain                 string  `json:"chain"`
	TVL                   float64 `json:"tvl"`
	StablecoinMcap        float64 `json:"stablecoinMcap"`
	DexVolume24h          float64 `json:"dexVolume24h"`
	Fees24h               float64 `json:"fees24h"`
	StablecoinTurnover    float64 `json:"stablecoinTurnover"`
	TVLTurnover           float64 `json:"tvlTurnover"`
	FeeYield              float64 `json:"feeYield"`
	VolumePerTVL          float64 `json:"volumePerTvl"`
	StablecoinUtilization float64 `json:"stablecoinUtilization"`
}

// Rejection records a chain dropped by one of the validation stages.
type Rejection struct {
	Chain  string
	Stage  string
	Reason string
}

const (
	StageThreshold = "threshold"
	StageValidate  = "validate"
	StageSanitize  = "sanitize"
)

// Evaluation is the full outcome of a Calculator run.
type Evaluation struct {
	Metrics    []ChainMetrics
	Rejections []Rejection
	// Canonical names with more than one stablecoin record. Only the first
	// record in input order was used.
	DuplicateStablecoins []string
}

// Calculator joins the four datasets on canonical chain name.
type Calculator struct {
	norm  *chains.Normalizer
	rules Rules
}

func NewCalculator(norm *chains.Normalizer, rules Rules) *Calculator {
	return &Calculator{norm: norm, rules: rules}
}

// Compute returns the validated metrics of every TVL record, in TVL order.
func (c *Calculator) Compute(tvl []llama.ChainTVL, stablecoins []llama.StablecoinChain, volume, fees map[string]float64) []ChainMetrics {
	return c.Evaluate(tvl, stablecoins, volume, fees).Metrics
}

// Evaluate is Compute plus the bookkeeping of what was dropped and why.
// volume and fees must be keyed by canonical chain name.
func (c *Calculator) Evaluate(tvl []llama.ChainTVL, stablecoins []llama.StablecoinChain, volume, fees map[string]float64) Evaluation {
	ev := Evaluation{Metrics: make([]ChainMetrics, 0, len(tvl))}

	stableMcap := make(map[string]float64, len(stablecoins))
	for _, s := range stablecoins {
		name := c.norm.Normalize(s.Name)
		if _, seen := stableMcap[name]; seen {
			ev.DuplicateStablecoins = append(ev.DuplicateStablecoins, name)
			continue
		}
		stableMcap[name] = s.CirculatingUSD()
	}

	for _, row := range tvl {
		name := c.norm.Normalize(row.Name)
		m := Derive(row.Name, row.TVL, stableMcap[name], volume[name], fees[name])

		if m.TVL < c.rules.MinTVL {
			ev.Rejections = append(ev.Rejections, Rejection{row.Name, StageThreshold, ReasonLowTVL})
			continue
		}
		if m.DexVolume24h == 0 {
			ev.Rejections = append(ev.Rejections, Rejection{row.Name, StageThreshold, ReasonNoVolume})
			continue
		}
		if reason := c.rules.Check(m); reason != "" {
			ev.Rejections = append(ev.Rejections, Rejection{row.Name, StageValidate, reason})
			continue
		}
		ev.Metrics = append(ev.Metrics, m)
	}
	return ev
}

// Derive builds the ratio fields from the four raw inputs. A zero stablecoin
// supply yields a zero turnover; a zero TVL yields zero TVL ratios.
func Derive(chain string, tvl, stablecoinMcap, volume, fees float64) ChainMetrics {
	m := ChainMetrics{
		Chain:          chain,
		TVL:            tvl,
		StablecoinMcap: stablecoinMcap,
		DexVolume24h:   volume,
		Fees24h:        fees,
	}
	if stablecoinMcap > 0 {
		m.StablecoinTurnover = volume / stablecoinMcap
	}
	if tvl > 0 {
		m.TVLTurnover = volume / tvl
		m.FeeYield = fees / tvl * 365 * 100
		m.VolumePerTVL = volume / tvl
		m.StablecoinUtilization = stablecoinMcap / tvl * 100
	}
	return m
}
