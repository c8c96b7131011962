package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// UpsertBatch writes a chunk of trades atomically and returns how many rows
// were newly inserted. Re-delivered logs hit the (tx_hash, log_index)
// conflict path, where only a null timestamp may be filled in; every other
// column is an immutable fact about the log and is left untouched. This
// makes ingestion safe to re-run over overlapping block ranges.
func (s *TradeStore) UpsertBatch(ctx context.Context, trades []domain.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO trades (
			tx_hash, log_index, block_number, ts, contract_address,
			order_hash, maker, taker,
			maker_asset_id, taker_asset_id, token_id,
			maker_amount, taker_amount, fee,
			collateral_amount, token_amount, side, price,
			decoded_json, raw_log_json
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18,
			$19, $20
		)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			ts = COALESCE(trades.ts, EXCLUDED.ts)
		RETURNING (xmax = 0) AS inserted`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin trade batch: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query,
			t.TxHash, t.LogIndex, t.BlockNumber, t.Timestamp, t.ContractAddress,
			t.OrderHash, t.Maker, t.Taker,
			t.MakerAssetID, t.TakerAssetID, t.TokenID,
			t.MakerAmount, t.TakerAmount, t.Fee,
			t.CollateralAmount, t.TokenAmount, string(t.Side), t.Price,
			t.DecodedJSON, t.RawLogJSON,
		)
	}

	br := tx.SendBatch(ctx, batch)
	var inserted int64
	for i := range trades {
		var isNew bool
		if err := br.QueryRow().Scan(&isNew); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("postgres: upsert trade batch item %d: %w", i, err)
		}
		if isNew {
			inserted++
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("postgres: close trade batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit trade batch: %w", err)
	}
	return inserted, nil
}

// ListUnmappedTokenIDs returns distinct traded token IDs that have no
// token_map entry yet, most recently traded first, so market sync fills in
// the freshest tokens before the long tail.
func (s *TradeStore) ListUnmappedTokenIDs(ctx context.Context, limit int) ([]string, error) {
	const query = `
		SELECT t.token_id
		FROM trades t
		LEFT JOIN token_map tm ON tm.token_id = t.token_id
		WHERE tm.token_id IS NULL
		GROUP BY t.token_id
		ORDER BY COALESCE(MAX(t.ts), 0) DESC, MAX(t.block_number) DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unmapped token ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan token id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListResolvedFills returns every trade whose token maps to a resolved
// market with a known winning token, in deterministic (tx_hash, log_index)
// order. This is the input set of the PnL aggregation.
func (s *TradeStore) ListResolvedFills(ctx context.Context) ([]domain.ResolvedFill, error) {
	const query = `
		SELECT
			t.maker, t.taker, t.side, t.token_id,
			tm.market_id, m.winning_token_id,
			t.collateral_amount, t.token_amount, t.fee
		FROM trades t
		JOIN token_map tm ON tm.token_id = t.token_id
		JOIN markets m   ON m.id = tm.market_id
		WHERE m.resolved AND m.winning_token_id IS NOT NULL
		ORDER BY t.tx_hash, t.log_index`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.ResolvedFill
	for rows.Next() {
		var f domain.ResolvedFill
		var side string
		if err := rows.Scan(
			&f.Maker, &f.Taker, &side, &f.TokenID,
			&f.MarketID, &f.WinningTokenID,
			&f.CollateralAmount, &f.TokenAmount, &f.Fee,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan resolved fill: %w", err)
		}
		f.Side = domain.Side(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListActivity returns the maker/taker/notional view of every trade,
// independent of market resolution, for trade counts and max-notional stats.
func (s *TradeStore) ListActivity(ctx context.Context) ([]domain.TradeActivity, error) {
	const query = `
		SELECT maker, taker, collateral_amount
		FROM trades
		ORDER BY tx_hash, log_index`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade activity: %w", err)
	}
	defer rows.Close()

	var acts []domain.TradeActivity
	for rows.Next() {
		var a domain.TradeActivity
		if err := rows.Scan(&a.Maker, &a.Taker, &a.CollateralAmount); err != nil {
			return nil, fmt.Errorf("postgres: scan trade activity: %w", err)
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

// Count returns the total number of stored trades.
func (s *TradeStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM trades").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return n, nil
}
