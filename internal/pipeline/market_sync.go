package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/platform/gamma"
)

// SyncConfig tunes a market metadata sync pass.
type SyncConfig struct {
	PageLimit int
	// Pages caps the number of pages a full sync walks. Zero means walk
	// until the API stops returning rows.
	Pages      int
	ClosedOnly bool

	// TokenBatch is how many token IDs are sent per targeted query.
	TokenBatch int
	// MaxTokenIDs caps how many unmapped token IDs a traded-market sync
	// resolves in one pass, most recently traded first.
	MaxTokenIDs int
}

// MarketSyncer pulls market metadata from the Gamma API into the market
// store and keeps the token-to-market mapping current.
type MarketSyncer struct {
	gamma   *gamma.Client
	markets domain.MarketStore
	trades  domain.TradeStore
	logger  *slog.Logger
}

// NewMarketSyncer creates a MarketSyncer.
func NewMarketSyncer(client *gamma.Client, markets domain.MarketStore, trades domain.TradeStore, logger *slog.Logger) *MarketSyncer {
	return &MarketSyncer{
		gamma:   client,
		markets: markets,
		trades:  trades,
		logger:  logger.With(slog.String("component", "market_syncer")),
	}
}

// SyncAll walks market pages from the API and upserts every market that
// parses. A page shorter than the limit ends the walk.
func (s *MarketSyncer) SyncAll(ctx context.Context, cfg SyncConfig) error {
	limit := cfg.PageLimit
	if limit < 1 {
		limit = 100
	}

	var upserted, skipped int
	for page := 0; cfg.Pages == 0 || page < cfg.Pages; page++ {
		markets, err := s.gamma.GetMarkets(ctx, gamma.MarketQuery{
			Limit:      limit,
			Offset:     page * limit,
			ClosedOnly: cfg.ClosedOnly,
		})
		if err != nil {
			return fmt.Errorf("pipeline: sync page %d: %w", page, err)
		}
		if len(markets) == 0 {
			break
		}

		u, sk, err := s.upsertPage(ctx, markets)
		if err != nil {
			return err
		}
		upserted += u
		skipped += sk

		s.logger.Debug("market page synced",
			slog.Int("page", page),
			slog.Int("markets", len(markets)),
		)
		if len(markets) < limit {
			break
		}
	}

	s.logger.Info("market sync finished",
		slog.Int("upserted", upserted),
		slog.Int("skipped", skipped),
	)
	return nil
}

// SyncTraded resolves metadata only for token IDs that appear in stored
// trades but have no market mapping yet, most recently traded first.
func (s *MarketSyncer) SyncTraded(ctx context.Context, cfg SyncConfig) error {
	maxIDs := cfg.MaxTokenIDs
	if maxIDs < 1 {
		maxIDs = 1000
	}
	batch := cfg.TokenBatch
	if batch < 1 {
		batch = 20
	}

	tokenIDs, err := s.trades.ListUnmappedTokenIDs(ctx, maxIDs)
	if err != nil {
		return fmt.Errorf("pipeline: list unmapped tokens: %w", err)
	}
	if len(tokenIDs) == 0 {
		s.logger.Info("no unmapped traded tokens")
		return nil
	}
	s.logger.Info("resolving traded tokens", slog.Int("tokens", len(tokenIDs)))

	var upserted, skipped int
	for start := 0; start < len(tokenIDs); start += batch {
		ids := tokenIDs[start:min(start+batch, len(tokenIDs))]
		markets, err := s.gamma.GetMarkets(ctx, gamma.MarketQuery{
			Limit:    len(ids),
			TokenIDs: ids,
		})
		if err != nil {
			return fmt.Errorf("pipeline: sync token batch at %d: %w", start, err)
		}
		u, sk, err := s.upsertPage(ctx, markets)
		if err != nil {
			return err
		}
		upserted += u
		skipped += sk
	}

	s.logger.Info("traded-market sync finished",
		slog.Int("upserted", upserted),
		slog.Int("skipped", skipped),
	)
	return nil
}

// upsertPage converts and stores one API page. Markets without a usable ID
// are skipped, not fatal: one malformed listing must not stall the sync.
func (s *MarketSyncer) upsertPage(ctx context.Context, markets []gamma.APIMarket) (upserted, skipped int, err error) {
	now := time.Now().UTC()
	for _, am := range markets {
		market := am.ToDomainMarket(now)
		if market.ID == "" {
			s.logger.Warn("skipping market with empty id",
				slog.String("question", am.Question),
			)
			skipped++
			continue
		}
		if err := s.markets.Upsert(ctx, market); err != nil {
			return upserted, skipped, fmt.Errorf("pipeline: upsert market %s: %w", market.ID, err)
		}
		upserted++
	}
	return upserted, skipped, nil
}
