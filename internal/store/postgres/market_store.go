package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. It owns the
// markets and token_map tables.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a market and rewrites its token_map entries in
// one transaction. Re-syncing the same market is always safe; rows are never
// deleted, only overwritten with the latest metadata.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	outcomesJSON, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes for market %s: %w", m.ID, err)
	}
	pricesJSON, err := json.Marshal(m.OutcomePrices)
	if err != nil {
		return fmt.Errorf("postgres: marshal prices for market %s: %w", m.ID, err)
	}
	tokenIDsJSON, err := json.Marshal(m.TokenIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal token ids for market %s: %w", m.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin market upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	const marketQuery = `
		INSERT INTO markets (
			id, question, condition_id, slug, closed, resolved,
			resolution_outcome, winning_token_id,
			outcomes_json, outcome_prices_json, clob_token_ids_json, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10, $11, $12
		)
		ON CONFLICT (id) DO UPDATE SET
			question            = EXCLUDED.question,
			condition_id        = EXCLUDED.condition_id,
			slug                = EXCLUDED.slug,
			closed              = EXCLUDED.closed,
			resolved            = EXCLUDED.resolved,
			resolution_outcome  = EXCLUDED.resolution_outcome,
			winning_token_id    = EXCLUDED.winning_token_id,
			outcomes_json       = EXCLUDED.outcomes_json,
			outcome_prices_json = EXCLUDED.outcome_prices_json,
			clob_token_ids_json = EXCLUDED.clob_token_ids_json,
			updated_at          = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, marketQuery,
		m.ID, m.Question, m.ConditionID, m.Slug, m.Closed, m.Resolved,
		m.ResolutionOutcome, m.WinningTokenID,
		outcomesJSON, pricesJSON, tokenIDsJSON, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}

	const tokenQuery = `
		INSERT INTO token_map (token_id, market_id, outcome_index, outcome_label)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO UPDATE SET
			market_id     = EXCLUDED.market_id,
			outcome_index = EXCLUDED.outcome_index,
			outcome_label = EXCLUDED.outcome_label`

	for idx, tokenID := range m.TokenIDs {
		if tokenID == "" {
			continue
		}
		label := ""
		if idx < len(m.Outcomes) {
			label = m.Outcomes[idx]
		}
		if _, err := tx.Exec(ctx, tokenQuery, tokenID, m.ID, idx, label); err != nil {
			return fmt.Errorf("postgres: upsert token map %s: %w", tokenID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit market upsert: %w", err)
	}
	return nil
}

const marketSelectCols = `id, question, condition_id, slug, closed, resolved,
	resolution_outcome, winning_token_id,
	outcomes_json, outcome_prices_json, clob_token_ids_json, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var outcomesJSON, pricesJSON, tokenIDsJSON []byte
	var resolutionOutcome *string
	err := row.Scan(
		&m.ID, &m.Question, &m.ConditionID, &m.Slug, &m.Closed, &m.Resolved,
		&resolutionOutcome, &m.WinningTokenID,
		&outcomesJSON, &pricesJSON, &tokenIDsJSON, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if resolutionOutcome != nil {
		m.ResolutionOutcome = *resolutionOutcome
	}
	if len(outcomesJSON) > 0 {
		_ = json.Unmarshal(outcomesJSON, &m.Outcomes)
	}
	if len(pricesJSON) > 0 {
		_ = json.Unmarshal(pricesJSON, &m.OutcomePrices)
	}
	if len(tokenIDsJSON) > 0 {
		_ = json.Unmarshal(tokenIDsJSON, &m.TokenIDs)
	}
	return m, nil
}

// GetByID returns a market by its Gamma ID.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByTokenID returns the market owning the given outcome token.
func (s *MarketStore) GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+`
		 FROM markets
		 WHERE id = (SELECT market_id FROM token_map WHERE token_id = $1)`, tokenID)

	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market by token %s: %w", tokenID, err)
	}
	return m, nil
}

// Count returns the total number of stored markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}
