package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
	"github.com/web3-frozen/chain-efficiency/internal/monitor"
)

// ChainRow is one dashboard row: the metrics plus their efficiency tier.
type ChainRow struct {
	efficiency.ChainMetrics
	Tier string `json:"tier"`
}

type chainsResponse struct {
	View        efficiency.ViewMode `json:"view"`
	Loading     bool                `json:"loading"`
	Error       string              `json:"error,omitempty"`
	LastUpdated *time.Time          `json:"lastUpdated"`
	Warnings    []string            `json:"warnings"`
	RunID       string              `json:"runId,omitempty"`
	Chains      []ChainRow          `json:"chains"`
}

func newChainsResponse(s monitor.State, view efficiency.ViewMode, list []efficiency.ChainMetrics) chainsResponse {
	rows := make([]ChainRow, len(list))
	for i, m := range list {
		rows[i] = ChainRow{ChainMetrics: m, Tier: efficiency.Tier(m.StablecoinTurnover)}
	}
	return chainsResponse{
		View:        view,
		Loading:     s.Loading,
		Error:       s.Error,
		LastUpdated: s.LastUpdated,
		Warnings:    s.Warnings,
		RunID:       s.RunID,
		Chains:      rows,
	}
}

// Chains serves the cached metrics list.
// Query: view=all|top10tvl|top10vol|top10efficient, sort=<json field>, dir=asc|desc.
func Chains(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		view, err := efficiency.ParseViewMode(q.Get("view"))
		if err != nil {
			http.Error(w, `{"error":"invalid view"}`, http.StatusBadRequest)
			return
		}

		desc := true
		switch strings.ToLower(q.Get("dir")) {
		case "", "desc":
		case "asc":
			desc = false
		default:
			http.Error(w, `{"error":"dir must be asc or desc"}`, http.StatusBadRequest)
			return
		}

		state := engine.State()
		list := view.Apply(state.Chains)
		if field := q.Get("sort"); field != "" {
			if err := efficiency.SortBy(list, field, desc); err != nil {
				http.Error(w, `{"error":"invalid sort field"}`, http.StatusBadRequest)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newChainsResponse(state, view, list))
	}
}

// Summary serves the headline totals of the cached list.
func Summary(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s := efficiency.Summarize(engine.State().Chains)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s)
	}
}
