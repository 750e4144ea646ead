package efficiency

import "math"

// Rules holds the sanity bounds applied to every ChainMetrics record.
type Rules struct {
	MinTVL                float64
	MinDexVolume          float64
	MaxStablecoinTurnover float64
	MaxTVL                float64
	MaxStablecoinTVLRatio float64

	// Bounds of the second, post-construction pass.
	SanitizeMaxTurnover float64
	SanitizeMaxFeeYield float64
}

func DefaultRules() Rules {
	return Rules{
		MinTVL:                10_000_000,
		MinDexVolume:          100_000,
		MaxStablecoinTurnover: 100,
		MaxTVL:                500_000_000_000,
		MaxStablecoinTVLRatio: 10,
		SanitizeMaxTurnover:   1000,
		SanitizeMaxFeeYield:   10000,
	}
}

// Rejection reasons, used as metric labels.
const (
	ReasonLowTVL             = "low_tvl"
	ReasonNoVolume           = "no_volume"
	ReasonLowVolume          = "low_volume"
	ReasonTurnoverOutlier    = "turnover_outlier"
	ReasonTVLOutlier         = "tvl_outlier"
	ReasonStablecoinOutlier  = "stablecoin_outlier"
	ReasonNotFinite          = "not_finite"
	ReasonNonPositiveTVL     = "non_positive_tvl"
	ReasonFeeYieldOutOfRange = "fee_yield_out_of_range"
)

// Check returns why m fails construction-time validation, or "" when it passes.
func (r Rules) Check(m ChainMetrics) string {
	switch {
	case !finite(m.TVL) || !finite(m.StablecoinTurnover) || !finite(m.TVLTurnover):
		return ReasonNotFinite
	case m.TVL < r.MinTVL:
		return ReasonLowTVL
	case m.DexVolume24h < r.MinDexVolume:
		return ReasonLowVolume
	case m.StablecoinTurnover > r.MaxStablecoinTurnover:
		return ReasonTurnoverOutlier
	case m.TVL > r.MaxTVL:
		return ReasonTVLOutlier
	case m.StablecoinMcap > m.TVL*r.MaxStablecoinTVLRatio:
		return ReasonStablecoinOutlier
	}
	return ""
}

// Validate reports whether m passes construction-time validation.
func (r Rules) Validate(m ChainMetrics) bool { return r.Check(m) == "" }

// SanitizeCheck returns why m fails the post-construction pass, or "".
func (r Rules) SanitizeCheck(m ChainMetrics) string {
	switch {
	case !finite(m.TVL):
		return ReasonNotFinite
	case m.TVL <= 0:
		return ReasonNonPositiveTVL
	case !(m.StablecoinTurnover >= 0 && m.StablecoinTurnover <= r.SanitizeMaxTurnover):
		return ReasonTurnoverOutlier
	case !(m.FeeYield >= 0 && m.FeeYield <= r.SanitizeMaxFeeYield):
		return ReasonFeeYieldOutOfRange
	}
	return ""
}

// Sanitize returns the records of list that pass SanitizeCheck, in order.
func (r Rules) Sanitize(list []ChainMetrics) []ChainMetrics {
	out := make([]ChainMetrics, 0, len(list))
	for _, m := range list {
		if r.SanitizeCheck(m) == "" {
			out = append(out, m)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
