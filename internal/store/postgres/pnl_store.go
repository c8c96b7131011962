package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// PnLStore implements domain.PnLStore using PostgreSQL. It owns the
// user_market_pnl, user_stats, and user_tags tables.
type PnLStore struct {
	pool *pgxpool.Pool
}

// NewPnLStore creates a new PnLStore backed by the given connection pool.
func NewPnLStore(pool *pgxpool.Pool) *PnLStore {
	return &PnLStore{pool: pool}
}

// ReplaceAll swaps the entire derived state in a single transaction:
// delete-then-insert of all three tables. Readers either see the previous
// aggregate or the new one, never a mix; a mid-run failure rolls back to the
// previous state untouched.
func (s *PnLStore) ReplaceAll(ctx context.Context, pnl []domain.UserMarketPnL, stats []domain.UserStats, tags []domain.UserTag) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin pnl rebuild: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"user_market_pnl", "user_stats", "user_tags"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("postgres: clear %s: %w", table, err)
		}
	}

	batch := &pgx.Batch{}

	const pnlQuery = `
		INSERT INTO user_market_pnl (
			address, market_id, cost, trading_revenue, settlement_payout,
			profit, roi, win
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, p := range pnl {
		batch.Queue(pnlQuery,
			p.Address, p.MarketID, p.Cost, p.TradingRevenue, p.SettlementPayout,
			p.Profit, p.ROI, p.Win,
		)
	}

	const statsQuery = `
		INSERT INTO user_stats (
			address, total_cost, total_profit, roi, markets_traded,
			win_rate, trades_count, max_trade_usdc, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, st := range stats {
		batch.Queue(statsQuery,
			st.Address, st.TotalCost, st.TotalProfit, st.ROI, st.MarketsTraded,
			st.WinRate, st.TradesCount, st.MaxTradeUSDC, st.UpdatedAt,
		)
	}

	// Tag rebuild runs alongside the stats; conflicts are ignored so a tag
	// derived twice stays a single row.
	const tagQuery = `
		INSERT INTO user_tags (address, tag) VALUES ($1, $2)
		ON CONFLICT (address, tag) DO NOTHING`
	for _, t := range tags {
		batch.Queue(tagQuery, t.Address, t.Tag)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("postgres: pnl rebuild batch item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close pnl rebuild batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit pnl rebuild: %w", err)
	}
	return nil
}

const statsSelectCols = `address, total_cost, total_profit, roi, markets_traded,
	win_rate, trades_count, max_trade_usdc, updated_at`

func scanStats(row pgx.Row) (domain.UserStats, error) {
	var st domain.UserStats
	err := row.Scan(
		&st.Address, &st.TotalCost, &st.TotalProfit, &st.ROI, &st.MarketsTraded,
		&st.WinRate, &st.TradesCount, &st.MaxTradeUSDC, &st.UpdatedAt,
	)
	return st, err
}

// ListTopStats returns user stats ordered by total profit descending.
func (s *PnLStore) ListTopStats(ctx context.Context, opts domain.ListOpts) ([]domain.UserStats, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+statsSelectCols+`
		 FROM user_stats
		 ORDER BY total_profit DESC, address
		 LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list top stats: %w", err)
	}
	defer rows.Close()

	var out []domain.UserStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetStats returns the aggregate stats of one address.
func (s *PnLStore) GetStats(ctx context.Context, address string) (domain.UserStats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statsSelectCols+` FROM user_stats WHERE address = $1`, address)

	st, err := scanStats(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserStats{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("postgres: get stats %s: %w", address, err)
	}
	return st, nil
}

// ListMarketPnL returns the per-market PnL rows of one address, most
// profitable first.
func (s *PnLStore) ListMarketPnL(ctx context.Context, address string) ([]domain.UserMarketPnL, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, market_id, cost, trading_revenue, settlement_payout,
		        profit, roi, win
		 FROM user_market_pnl
		 WHERE address = $1
		 ORDER BY profit DESC, market_id`, address)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market pnl %s: %w", address, err)
	}
	defer rows.Close()

	var out []domain.UserMarketPnL
	for rows.Next() {
		var p domain.UserMarketPnL
		if err := rows.Scan(
			&p.Address, &p.MarketID, &p.Cost, &p.TradingRevenue, &p.SettlementPayout,
			&p.Profit, &p.ROI, &p.Win,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan market pnl: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListTags returns the tags of one address in alphabetic order.
func (s *PnLStore) ListTags(ctx context.Context, address string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tag FROM user_tags WHERE address = $1 ORDER BY tag`, address)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tags %s: %w", address, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("postgres: scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
