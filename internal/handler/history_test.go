package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
	"github.com/web3-frozen/chain-efficiency/internal/store"
)

// mockArchive implements Archive for testing.
type mockArchive struct {
	points    []store.HistoryPoint
	runs      []store.Run
	err       error
	lastChain string
	lastLimit int
}

func (a *mockArchive) ChainHistory(_ context.Context, chain string, limit int) ([]store.HistoryPoint, error) {
	a.lastChain, a.lastLimit = chain, limit
	return a.points, a.err
}

func (a *mockArchive) ListRuns(_ context.Context, limit int) ([]store.Run, error) {
	a.lastLimit = limit
	return a.runs, a.err
}

func TestHistoryNotConfigured(t *testing.T) {
	for _, h := range []http.HandlerFunc{History(nil), Runs(nil)} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?chain=Ethereum", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	}
}

func TestHistoryValidation(t *testing.T) {
	h := History(&mockArchive{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"missing chain", "/api/history", http.StatusBadRequest},
		{"blank chain", "/api/history?chain=%20", http.StatusBadRequest},
		{"bad limit", "/api/history?chain=Ethereum&limit=abc", http.StatusBadRequest},
		{"zero limit", "/api/history?chain=Ethereum&limit=0", http.StatusBadRequest},
		{"ok", "/api/history?chain=Ethereum", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHistoryHandler(t *testing.T) {
	a := &mockArchive{points: []store.HistoryPoint{
		{ChainMetrics: efficiency.ChainMetrics{Chain: "Ethereum", TVL: 5e10}},
	}}
	rec := httptest.NewRecorder()
	History(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?chain=Ethereum&limit=5000", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if a.lastChain != "Ethereum" || a.lastLimit != maxHistoryLimit {
		t.Errorf("query = %q, %d, want Ethereum, %d", a.lastChain, a.lastLimit, maxHistoryLimit)
	}
	var points []store.HistoryPoint
	if err := json.NewDecoder(rec.Body).Decode(&points); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(points) != 1 || points[0].TVL != 5e10 {
		t.Errorf("points = %+v", points)
	}
}

func TestHistoryEmptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	History(&mockArchive{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?chain=Sui", nil))
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestHistoryStoreError(t *testing.T) {
	a := &mockArchive{err: errors.New("db down")}
	for _, h := range []http.HandlerFunc{History(a), Runs(a)} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?chain=Ethereum", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	}
}

func TestRunsHandler(t *testing.T) {
	a := &mockArchive{runs: []store.Run{{Status: "success", Chains: 12}}}
	rec := httptest.NewRecorder()
	Runs(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if a.lastLimit != defaultHistoryLimit {
		t.Errorf("limit = %d, want %d", a.lastLimit, defaultHistoryLimit)
	}
	var runs []store.Run
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].Chains != 12 {
		t.Errorf("runs = %+v", runs)
	}
}
