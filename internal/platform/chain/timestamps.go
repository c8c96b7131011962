package chain

import (
	"context"
	"log/slog"
	"math/big"
)

// TimestampResolver maps block numbers to unix timestamps, memoized for the
// lifetime of the resolver (one backfill run). Resolution failures yield nil
// rather than an error: timestamps are best-effort enrichment, and the trade
// upsert backfills them on a later pass.
type TimestampResolver struct {
	client LogClient
	logger *slog.Logger
	cache  map[int64]*int64
}

// NewTimestampResolver creates a resolver with an empty cache.
func NewTimestampResolver(client LogClient, logger *slog.Logger) *TimestampResolver {
	return &TimestampResolver{
		client: client,
		logger: logger.With(slog.String("component", "timestamp_resolver")),
		cache:  make(map[int64]*int64),
	}
}

// Resolve returns the unix timestamp of the given block, or nil if it could
// not be fetched. Each block is fetched at most once per run.
func (r *TimestampResolver) Resolve(ctx context.Context, blockNumber int64) *int64 {
	if ts, ok := r.cache[blockNumber]; ok {
		return ts
	}

	var ts *int64
	header, err := r.client.HeaderByNumber(ctx, big.NewInt(blockNumber))
	if err != nil {
		r.logger.Warn("block timestamp lookup failed",
			slog.Int64("block", blockNumber),
			slog.String("error", err.Error()),
		)
	} else if header != nil && header.Time > 0 {
		v := int64(header.Time)
		ts = &v
	}

	r.cache[blockNumber] = ts
	return ts
}
