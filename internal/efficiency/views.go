package efficiency

import (
	"fmt"
	"sort"
	"strings"
)

// ViewMode selects which slice of the metrics list a dashboard shows.
type ViewMode string

const (
	ViewAll           ViewMode = "all"
	ViewTop10TVL      ViewMode = "top10tvl"
	ViewTop10Volume   ViewMode = "top10vol"
	ViewTop10Turnover ViewMode = "top10efficient"
)

const topN = 10

func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case "", ViewAll:
		return ViewAll, nil
	case ViewTop10TVL, ViewTop10Volume, ViewTop10Turnover:
		return ViewMode(s), nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Apply returns a new list for the view. The input is not modified.
func (v ViewMode) Apply(list []ChainMetrics) []ChainMetrics {
	out := append([]ChainMetrics(nil), list...)
	var field string
	switch v {
	case ViewTop10TVL:
		field = "tvl"
	case ViewTop10Volume:
		field = "dexVolume24h"
	case ViewTop10Turnover:
		field = "stablecoinTurnover"
	default:
		return out
	}
	_ = SortBy(out, field, true)
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Value returns the numeric field named by its JSON key.
func (m ChainMetrics) Value(field string) (float64, bool) {
	switch field {
	case "tvl":
		return m.TVL, true
	case "stablecoinMcap":
		return m.StablecoinMcap, true
	case "dexVolume24h":
		return m.DexVolume24h, true
	case "fees24h":
		return m.Fees24h, true
	case "stablecoinTurnover":
		return m.StablecoinTurnover, true
	case "tvlTurnover":
		return m.TVLTurnover, true
	case "feeYield":
		return m.FeeYield, true
	case "volumePerTvl":
		return m.VolumePerTVL, true
	case "stablecoinUtilization":
		return m.StablecoinUtilization, true
	}
	return 0, false
}

// SortBy sorts list in place by the field named by its JSON key. Ties keep
// their relative order.
func SortBy(list []ChainMetrics, field string, desc bool) error {
	if field == "chain" {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := strings.ToLower(list[i].Chain), strings.ToLower(list[j].Chain)
			if desc {
				return a > b
			}
			return a < b
		})
		return nil
	}
	if _, ok := (ChainMetrics{}).Value(field); !ok {
		return fmt.Errorf("unknown sort field %q", field)
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, _ := list[i].Value(field)
		b, _ := list[j].Value(field)
		if desc {
			return a > b
		}
		return a < b
	})
	return nil
}

// Summary is the headline block of the dashboard.
type Summary struct {
	TotalTVL        float64       `json:"totalTvl"`
	TotalVolume     float64       `json:"totalVolume"`
	AverageTurnover float64       `json:"averageTurnover"`
	TopChain        *ChainMetrics `json:"topChain"`
	Chains          int           `json:"chains"`
}

func Summarize(list []ChainMetrics) Summary {
	var s Summary
	if len(list) == 0 {
		return s
	}
	var turnover float64
	for i, m := range list {
		s.TotalTVL += m.TVL
		s.TotalVolume += m.DexVolume24h
		turnover += m.StablecoinTurnover
		if s.TopChain == nil || m.StablecoinTurnover > s.TopChain.StablecoinTurnover {
			s.TopChain = &list[i]
		}
	}
	top := *s.TopChain
	s.TopChain = &top
	s.AverageTurnover = turnover / float64(len(list))
	s.Chains = len(list)
	return s
}

// Tier buckets a stablecoin turnover into a coarse efficiency grade.
func Tier(turnover float64) string {
	switch {
	case turnover >= 0.3:
		return "high"
	case turnover >= 0.15:
		return "good"
	case turnover >= 0.08:
		return "moderate"
	case turnover >= 0.04:
		return "low"
	default:
		return "poor"
	}
}
