// Package service contains the read-side business logic over the derived
// reputation tables.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// ReputationService serves leaderboard and per-address reputation reads,
// with an optional cache in front of the store.
type ReputationService struct {
	pnl     domain.PnLStore
	markets domain.MarketStore
	cache   domain.ReputationCache // nil disables caching
	logger  *slog.Logger
}

// NewReputationService creates a ReputationService. cache may be nil.
func NewReputationService(
	pnl domain.PnLStore,
	markets domain.MarketStore,
	cache domain.ReputationCache,
	logger *slog.Logger,
) *ReputationService {
	return &ReputationService{
		pnl:     pnl,
		markets: markets,
		cache:   cache,
		logger:  logger,
	}
}

// Leaderboard returns one page of user stats ordered by total profit, each
// row carrying its behavioral tags.
func (s *ReputationService) Leaderboard(ctx context.Context, opts domain.ListOpts) ([]domain.LeaderboardEntry, error) {
	if s.cache != nil {
		entries, err := s.cache.GetLeaderboard(ctx, opts)
		if err == nil {
			return entries, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "reputation: leaderboard cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	stats, err := s.pnl.ListTopStats(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("reputation: list top stats: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(stats))
	for _, st := range stats {
		tags, err := s.pnl.ListTags(ctx, st.Address)
		if err != nil {
			return nil, fmt.Errorf("reputation: list tags for %s: %w", st.Address, err)
		}
		entries = append(entries, domain.LeaderboardEntry{UserStats: st, Tags: tags})
	}

	if s.cache != nil {
		if err := s.cache.SetLeaderboard(ctx, opts, entries); err != nil {
			s.logger.WarnContext(ctx, "reputation: leaderboard cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return entries, nil
}

// Profile returns the full reputation view of one address: stats, per-market
// PnL, and tags. Returns domain.ErrNotFound when the address has no stats.
func (s *ReputationService) Profile(ctx context.Context, address string) (domain.UserProfile, error) {
	address = strings.ToLower(address)

	if s.cache != nil {
		profile, err := s.cache.GetProfile(ctx, address)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "reputation: profile cache read failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
	}

	stats, err := s.pnl.GetStats(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.UserProfile{}, domain.ErrNotFound
		}
		return domain.UserProfile{}, fmt.Errorf("reputation: get stats for %s: %w", address, err)
	}

	markets, err := s.pnl.ListMarketPnL(ctx, address)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("reputation: list market pnl for %s: %w", address, err)
	}
	tags, err := s.pnl.ListTags(ctx, address)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("reputation: list tags for %s: %w", address, err)
	}

	profile := domain.UserProfile{Stats: stats, Markets: markets, Tags: tags}

	if s.cache != nil {
		if err := s.cache.SetProfile(ctx, profile); err != nil {
			s.logger.WarnContext(ctx, "reputation: profile cache write failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
	}
	return profile, nil
}

// Market returns one market's metadata by its Gamma ID.
func (s *ReputationService) Market(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("reputation: get market %s: %w", id, err)
	}
	return m, nil
}

// InvalidateCache drops every cached reputation response. Called after a PnL
// rebuild swaps the derived tables.
func (s *ReputationService) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "reputation: cache invalidate failed",
			slog.String("error", err.Error()),
		)
	}
}
