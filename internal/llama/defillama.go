package llama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/sync/errgroup"
)

const overviewQuery = "excludeTotalDataChart=true&excludeTotalDataChartBreakdown=true"

// Endpoint labels used in logs and metrics.
const (
	EndpointChains       = "chains"
	EndpointStablecoins  = "stablecoin_chains"
	EndpointDexOverview  = "dex_overview"
	EndpointFeesOverview = "fees_overview"
	EndpointDexChain     = "dex_chain"
	EndpointFeesChain    = "fees_chain"
)

// ChainTVL is one row of /v2/chains.
type ChainTVL struct {
	Name        string      `json:"name"`
	TVL         float64     `json:"tvl"`
	GeckoID     *string     `json:"gecko_id"`
	TokenSymbol string      `json:"tokenSymbol"`
	CmcID       *string     `json:"cmcId"`
	ChainID     json.Number `json:"chainId"`
}

// StablecoinChain is one row of /stablecoinchains.
type StablecoinChain struct {
	Name                string `json:"name"`
	TotalCirculatingUSD struct {
		PeggedUSD float64  `json:"peggedUSD"`
		PeggedEUR *float64 `json:"peggedEUR,omitempty"`
		PeggedVAR *float64 `json:"peggedVAR,omitempty"`
	} `json:"totalCirculatingUSD"`
}

// CirculatingUSD returns the USD-pegged supply on the chain.
func (s StablecoinChain) CirculatingUSD() float64 {
	return s.TotalCirculatingUSD.PeggedUSD
}

// Protocol is a DEX or fee-generating protocol inside an overview.
type Protocol struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	Module       string   `json:"module"`
	Category     string   `json:"category"`
	Chains       []string `json:"chains"`
	Total24h     *float64 `json:"total24h"`
	Total7d      *float64 `json:"total7d"`
	Total30d     *float64 `json:"total30d"`
	TotalAllTime *float64 `json:"totalAllTime"`
	Change1d     *float64 `json:"change_1d"`
	Change7d     *float64 `json:"change_7d"`
	Change1m     *float64 `json:"change_1m"`
}

// Overview is the shared shape of the dexs and fees overview endpoints,
// global or scoped to one chain.
type Overview struct {
	Protocols []Protocol `json:"protocols"`
	AllChains []string   `json:"allChains"`
	Total24h  *float64   `json:"total24h"`
	Total7d   *float64   `json:"total7d"`
	Change1d  *float64   `json:"change_1d"`
	Change7d  *float64   `json:"change_7d"`
	Chain     *string    `json:"chain"`
}

// ChainTotal is the 24h total reported by a per-chain overview.
type ChainTotal struct {
	Chain    string
	Total24h float64
}

func (c *Client) ChainTVL(ctx context.Context) Response[[]ChainTVL] {
	return Fetch[[]ChainTVL](ctx, c, EndpointChains, c.cfg.APIBase+"/v2/chains")
}

func (c *Client) StablecoinChains(ctx context.Context) Response[[]StablecoinChain] {
	return Fetch[[]StablecoinChain](ctx, c, EndpointStablecoins, c.cfg.StablecoinsBase+"/stablecoinchains")
}

func (c *Client) DexOverview(ctx context.Context) Response[Overview] {
	return Fetch[Overview](ctx, c, EndpointDexOverview, c.cfg.APIBase+"/overview/dexs?"+overviewQuery)
}

func (c *Client) FeesOverview(ctx context.Context) Response[Overview] {
	return Fetch[Overview](ctx, c, EndpointFeesOverview, c.cfg.APIBase+"/overview/fees?"+overviewQuery)
}

// ChainDexVolumes fetches the 24h DEX volume of each chain.
func (c *Client) ChainDexVolumes(ctx context.Context, chains []string) Partial[ChainTotal] {
	return c.chainTotals(ctx, EndpointDexChain, "dexs", chains)
}

// ChainFees fetches the 24h fees of each chain.
func (c *Client) ChainFees(ctx context.Context, chains []string) Partial[ChainTotal] {
	return c.chainTotals(ctx, EndpointFeesChain, "fees", chains)
}

// chainTotals runs one request per chain in batches of BatchSize concurrent
// requests. Batches run one after another with BatchPause between them.
func (c *Client) chainTotals(ctx context.Context, endpoint, kind string, chains []string) Partial[ChainTotal] {
	results := make([]Response[ChainTotal], len(chains))
	size := c.cfg.BatchSize

	for start := 0; start < len(chains); start += size {
		end := min(start+size, len(chains))

		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = c.chainTotal(ctx, endpoint, kind, chains[i])
				return nil
			})
		}
		_ = g.Wait()

		if end == len(chains) {
			break
		}
		if err := sleep(ctx, c.cfg.BatchPause); err != nil {
			for i := end; i < len(chains); i++ {
				results[i] = Response[ChainTotal]{
					Error:    fmt.Sprintf("%s: %v", chains[i], err),
					endpoint: endpoint,
				}
			}
			break
		}
	}
	return MergePartial(results)
}

func (c *Client) chainTotal(ctx context.Context, endpoint, kind, chain string) Response[ChainTotal] {
	u := fmt.Sprintf("%s/overview/%s/%s?%s", c.cfg.APIBase, kind, url.PathEscape(chain), overviewQuery)
	resp := Fetch[Overview](ctx, c, endpoint, u)

	out := Response[ChainTotal]{
		Timestamp: resp.Timestamp,
		Attempts:  resp.Attempts,
		endpoint:  endpoint,
		url:       u,
	}
	if resp.Error != "" {
		out.Error = chain + ": " + resp.Error
		return out
	}
	total := ChainTotal{Chain: chain}
	if resp.Data != nil && resp.Data.Total24h != nil {
		total.Total24h = *resp.Data.Total24h
	}
	out.Data = &total
	return out
}
