package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Refresh runs ---

// Run is one archived refresh.
type Run struct {
	ID         uuid.UUID `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Chains     int       `json:"chains"`
	Warnings   []string  `json:"warnings"`
}

var metricColumns = []string{
	"run_id", "chain", "tvl", "stablecoin_mcap", "dex_volume_24h", "fees_24h",
	"stablecoin_turnover", "tvl_turnover", "fee_yield", "volume_per_tvl",
	"stablecoin_utilization", "recorded_at",
}

// SaveRun stores run and its metrics in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, list []efficiency.ChainMetrics) error {
	if run.Warnings == nil {
		run.Warnings = []string{}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_runs (id, started_at, finished_at, status, error, chains, warnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.StartedAt, run.FinishedAt, run.Status, run.Error, run.Chains, run.Warnings)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(list) > 0 {
		rows := make([][]any, len(list))
		for i, m := range list {
			rows[i] = []any{
				run.ID, m.Chain, m.TVL, m.StablecoinMcap, m.DexVolume24h, m.Fees24h,
				m.StablecoinTurnover, m.TVLTurnover, m.FeeYield, m.VolumePerTVL,
				m.StablecoinUtilization, run.FinishedAt,
			}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"chain_metrics"}, metricColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy chain metrics: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ListRuns returns the latest runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, finished_at, status, error, chains, warnings
		FROM refresh_runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Error, &r.Chains, &r.Warnings); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Chain history ---

// HistoryPoint is one archived metrics row of a chain.
type HistoryPoint struct {
	efficiency.ChainMetrics
	RunID      uuid.UUID `json:"runId"`
	RecordedAt time.Time `json:"recordedAt"`
}

// ChainHistory returns up to limit archived rows of chain, newest first.
// The chain name is matched case-insensitively.
func (s *Store) ChainHistory(ctx context.Context, chain string, limit int) ([]HistoryPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, chain, tvl, stablecoin_mcap, dex_volume_24h, fees_24h,
		       stablecoin_turnover, tvl_turnover, fee_yield, volume_per_tvl,
		       stablecoin_utilization, recorded_at
		FROM chain_metrics
		WHERE lower(chain) = lower($1)
		ORDER BY recorded_at DESC
		LIMIT $2`, chain, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []HistoryPoint{}
	for rows.Next() {
		var p HistoryPoint
		m := &p.ChainMetrics
		if err := rows.Scan(&p.RunID, &m.Chain, &m.TVL, &m.StablecoinMcap, &m.DexVolume24h, &m.Fees24h,
			&m.StablecoinTurnover, &m.TVLTurnover, &m.FeeYield, &m.VolumePerTVL,
			&m.StablecoinUtilization, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// PruneRuns deletes runs, and their rows, finished before now minus maxAge.
func (s *Store) PruneRuns(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_runs WHERE finished_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
