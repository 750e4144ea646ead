package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/web3-frozen/chain-efficiency/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Archive is the read side of the refresh archive. *store.Store implements it.
type Archive interface {
	ChainHistory(ctx context.Context, chain string, limit int) ([]store.HistoryPoint, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// History serves archived rows of one chain. A nil archive answers 503.
func History(a Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, `{"error":"history not configured"}`, http.StatusServiceUnavailable)
			return
		}
		chain := strings.TrimSpace(r.URL.Query().Get("chain"))
		if chain == "" {
			http.Error(w, `{"error":"chain required"}`, http.StatusBadRequest)
			return
		}
		limit, ok := parseLimit(r.URL.Query().Get("limit"))
		if !ok {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}

		points, err := a.ChainHistory(r.Context(), chain, limit)
		if err != nil {
			http.Error(w, `{"error":"failed to load history"}`, http.StatusInternalServerError)
			return
		}
		if points == nil {
			points = []store.HistoryPoint{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(points)
	}
}

// Runs serves the latest archived refresh runs.
func Runs(a Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, `{"error":"history not configured"}`, http.StatusServiceUnavailable)
			return
		}
		limit, ok := parseLimit(r.URL.Query().Get("limit"))
		if !ok {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}

		runs, err := a.ListRuns(r.Context(), limit)
		if err != nil {
			http.Error(w, `{"error":"failed to list runs"}`, http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runs)
	}
}

func parseLimit(s string) (int, bool) {
	if s == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxHistoryLimit), true
}
