package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create records the start of a backfill run.
func (s *RunStore) Create(ctx context.Context, run domain.BackfillRun) error {
	const query = `
		INSERT INTO backfill_runs (
			id, exchange_address, start_block, end_block, inserted, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.ExchangeAddress, run.StartBlock, run.EndBlock,
		run.Inserted, run.Status, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create backfill run %s: %w", run.ID, err)
	}
	return nil
}

// Finish marks a run as completed/stopped/failed with its final row count.
func (s *RunStore) Finish(ctx context.Context, id string, inserted int64, status string) error {
	const query = `
		UPDATE backfill_runs
		SET inserted = $2, status = $3, finished_at = NOW()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id, inserted, status)
	if err != nil {
		return fmt.Errorf("postgres: finish backfill run %s: %w", id, err)
	}
	return nil
}
