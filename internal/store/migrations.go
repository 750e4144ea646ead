package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS refresh_runs (
    id UUID PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    chains INT NOT NULL DEFAULT 0,
    warnings TEXT[] NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_refresh_runs_finished ON refresh_runs (finished_at DESC);

CREATE TABLE IF NOT EXISTS chain_metrics (
    run_id UUID NOT NULL REFERENCES refresh_runs(id) ON DELETE CASCADE,
    chain TEXT NOT NULL,
    tvl DOUBLE PRECISION NOT NULL,
    stablecoin_mcap DOUBLE PRECISION NOT NULL,
    dex_volume_24h DOUBLE PRECISION NOT NULL,
    fees_24h DOUBLE PRECISION NOT NULL,
    stablecoin_turnover DOUBLE PRECISION NOT NULL,
    tvl_turnover DOUBLE PRECISION NOT NULL,
    fee_yield DOUBLE PRECISION NOT NULL,
    volume_per_tvl DOUBLE PRECISION NOT NULL,
    stablecoin_utilization DOUBLE PRECISION NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, chain)
);

CREATE INDEX IF NOT EXISTS idx_chain_metrics_chain_time ON chain_metrics (lower(chain), recorded_at DESC);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
