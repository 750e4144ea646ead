package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/web3-frozen/chain-efficiency/internal/chains"
	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
	"github.com/web3-frozen/chain-efficiency/internal/llama"
	"github.com/web3-frozen/chain-efficiency/internal/monitor"
)

func f(v float64) *float64 { return &v }

func ok[T any](v T) llama.Response[T] {
	return llama.Response[T]{Data: &v, Timestamp: time.Now(), Attempts: 1}
}

// mockUpstream serves a fixed healthy dataset; block, when set, holds ChainTVL.
type mockUpstream struct {
	block   chan struct{}
	entered chan struct{}
}

func (m *mockUpstream) ChainTVL(context.Context) llama.Response[[]llama.ChainTVL] {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	return ok([]llama.ChainTVL{
		{Name: "Ethereum", TVL: 50_000_000_000},
		{Name: "Solana", TVL: 9_000_000_000},
		{Name: "Base", TVL: 3_000_000_000},
	})
}

func (m *mockUpstream) StablecoinChains(context.Context) llama.Response[[]llama.StablecoinChain] {
	list := make([]llama.StablecoinChain, 3)
	for i, v := range []struct {
		name string
		usd  float64
	}{{"Ethereum", 20_000_000_000}, {"Solana", 10_000_000_000}, {"Base", 4_000_000_000}} {
		list[i].Name = v.name
		list[i].TotalCirculatingUSD.PeggedUSD = v.usd
	}
	return ok(list)
}

func (m *mockUpstream) DexOverview(context.Context) llama.Response[llama.Overview] {
	return ok(llama.Overview{Protocols: []llama.Protocol{
		{Name: "uni", Chains: []string{"Ethereum"}, Total24h: f(1_000_000_000)},
		{Name: "ray", Chains: []string{"Solana"}, Total24h: f(4_000_000_000)},
		{Name: "aero", Chains: []string{"Base"}, Total24h: f(400_000_000)},
	}})
}

func (m *mockUpstream) FeesOverview(context.Context) llama.Response[llama.Overview] {
	return ok(llama.Overview{Protocols: []llama.Protocol{
		{Name: "uni", Chains: []string{"Ethereum"}, Total24h: f(2_000_000)},
	}})
}

func (m *mockUpstream) ChainDexVolumes(context.Context, []string) llama.Partial[llama.ChainTotal] {
	return llama.Partial[llama.ChainTotal]{Data: []llama.ChainTotal{}, Warnings: []string{}}
}

func (m *mockUpstream) ChainFees(context.Context, []string) llama.Partial[llama.ChainTotal] {
	return llama.Partial[llama.ChainTotal]{Data: []llama.ChainTotal{}, Warnings: []string{}}
}

func newTestEngine(up monitor.Upstream) *monitor.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return monitor.NewEngine(up, chains.NewNormalizer(chains.DefaultRegistry()), efficiency.DefaultRules(), monitor.Options{}, logger)
}

// refreshedEngine returns an engine that already holds Ethereum (turnover
// 0.05), Solana (0.4) and Base (0.1).
func refreshedEngine() *monitor.Engine {
	e := newTestEngine(&mockUpstream{})
	if err := e.Refresh(context.Background()); err != nil {
		panic(err)
	}
	return e
}
