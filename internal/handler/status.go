package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/web3-frozen/chain-efficiency/internal/monitor"
)

type statusResponse struct {
	Loading     bool       `json:"loading"`
	Refreshing  bool       `json:"refreshing"`
	Error       string     `json:"error,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated"`
	Warnings    []string   `json:"warnings"`
	RunID       string     `json:"runId,omitempty"`
	Chains      int        `json:"chains"`
}

func Status(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s := engine.State()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusResponse{
			Loading:     s.Loading,
			Refreshing:  engine.Refreshing(),
			Error:       s.Error,
			LastUpdated: s.LastUpdated,
			Warnings:    s.Warnings,
			RunID:       s.RunID,
			Chains:      len(s.Chains),
		})
	}
}

// Refresh starts a background refresh bound to ctx, the server's lifetime.
func Refresh(ctx context.Context, engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := engine.Trigger(ctx); err != nil {
			if errors.Is(err, monitor.ErrRefreshInProgress) {
				http.Error(w, `{"error":"refresh already in progress"}`, http.StatusConflict)
				return
			}
			http.Error(w, `{"error":"failed to start refresh"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"refresh started"}`))
	}
}
