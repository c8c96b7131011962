package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TradeStore persists decoded OrderFilled trades. UpsertBatch is the only
// write path: rows are keyed by (tx_hash, log_index), re-delivered logs are
// tolerated, and only a null timestamp may be filled in on conflict.
type TradeStore interface {
	// UpsertBatch writes a chunk of trades in a single transaction and
	// returns the number of newly inserted rows.
	UpsertBatch(ctx context.Context, trades []Trade) (int64, error)
	ListUnmappedTokenIDs(ctx context.Context, limit int) ([]string, error)
	ListResolvedFills(ctx context.Context) ([]ResolvedFill, error)
	ListActivity(ctx context.Context) ([]TradeActivity, error)
	Count(ctx context.Context) (int64, error)
}

// MarketStore persists market metadata and the token-to-market mapping.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByTokenID(ctx context.Context, tokenID string) (Market, error)
	Count(ctx context.Context) (int64, error)
}

// PnLStore persists the derived PnL, stats, and tag tables. ReplaceAll swaps
// the entire derived state in one transaction so readers never observe a
// half-rebuilt result.
type PnLStore interface {
	ReplaceAll(ctx context.Context, pnl []UserMarketPnL, stats []UserStats, tags []UserTag) error
	ListTopStats(ctx context.Context, opts ListOpts) ([]UserStats, error)
	GetStats(ctx context.Context, address string) (UserStats, error)
	ListMarketPnL(ctx context.Context, address string) ([]UserMarketPnL, error)
	ListTags(ctx context.Context, address string) ([]string, error)
}

// RunStore records backfill run audit rows.
type RunStore interface {
	Create(ctx context.Context, run BackfillRun) error
	Finish(ctx context.Context, id string, inserted int64, status string) error
}

// ReputationCache caches read-API responses.
type ReputationCache interface {
	GetLeaderboard(ctx context.Context, opts ListOpts) ([]LeaderboardEntry, error)
	SetLeaderboard(ctx context.Context, opts ListOpts, entries []LeaderboardEntry) error
	GetProfile(ctx context.Context, address string) (UserProfile, error)
	SetProfile(ctx context.Context, profile UserProfile) error
	Invalidate(ctx context.Context) error
}

// ChunkArchiver stores the raw log payload of a fetched block window in
// cold storage.
type ChunkArchiver interface {
	ArchiveChunk(ctx context.Context, address string, fromBlock, toBlock int64, rawJSON []byte) error
}
