package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
)

type decodedChains struct {
	View     string     `json:"view"`
	Loading  bool       `json:"loading"`
	Error    string     `json:"error"`
	Warnings []string   `json:"warnings"`
	RunID    string     `json:"runId"`
	Chains   []ChainRow `json:"chains"`
}

func getChains(t *testing.T, h http.HandlerFunc, target string) (*httptest.ResponseRecorder, decodedChains) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body decodedChains
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rec, body
}

func chainNames(rows []ChainRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Chain
	}
	return out
}

func TestChainsBeforeRefresh(t *testing.T) {
	rec, body := getChains(t, Chains(newTestEngine(&mockUpstream{})), "/api/chains")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Chains == nil || len(body.Chains) != 0 || body.View != "all" {
		t.Errorf("body = %+v, want empty chains in view all", body)
	}
}

func TestChainsViews(t *testing.T) {
	h := Chains(refreshedEngine())

	tests := []struct {
		target string
		want   []string
	}{
		{"/api/chains", []string{"Ethereum", "Solana", "Base"}},
		{"/api/chains?view=top10tvl", []string{"Ethereum", "Solana", "Base"}},
		{"/api/chains?view=top10vol", []string{"Solana", "Ethereum", "Base"}},
		{"/api/chains?view=top10efficient", []string{"Solana", "Base", "Ethereum"}},
		{"/api/chains?sort=chain&dir=asc", []string{"Base", "Ethereum", "Solana"}},
		{"/api/chains?view=top10efficient&sort=tvl&dir=asc", []string{"Base", "Solana", "Ethereum"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec, body := getChains(t, h, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
			}
			got := chainNames(body.Chains)
			if len(got) != len(tt.want) {
				t.Fatalf("chains = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("chains = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestChainsTiers(t *testing.T) {
	_, body := getChains(t, Chains(refreshedEngine()), "/api/chains")
	want := map[string]string{"Ethereum": "low", "Solana": "high", "Base": "moderate"}
	for _, row := range body.Chains {
		if row.Tier != want[row.Chain] {
			t.Errorf("%s tier = %q, want %q", row.Chain, row.Tier, want[row.Chain])
		}
	}
}

func TestChainsBadQuery(t *testing.T) {
	h := Chains(refreshedEngine())
	for _, target := range []string{
		"/api/chains?view=top5",
		"/api/chains?sort=bogus",
		"/api/chains?sort=tvl&dir=sideways",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSummaryHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Summary(refreshedEngine()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var s efficiency.Summary
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Chains != 3 || s.TotalTVL != 62_000_000_000 || s.TotalVolume != 5_400_000_000 {
		t.Errorf("summary = %+v", s)
	}
	if s.TopChain == nil || s.TopChain.Chain != "Solana" {
		t.Errorf("TopChain = %+v, want Solana", s.TopChain)
	}
}
