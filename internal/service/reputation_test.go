package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

type fakePnLStore struct {
	stats     map[string]domain.UserStats
	marketPnL map[string][]domain.UserMarketPnL
	tags      map[string][]string
	topCalls  int
}

func (s *fakePnLStore) ReplaceAll(context.Context, []domain.UserMarketPnL, []domain.UserStats, []domain.UserTag) error {
	return nil
}

func (s *fakePnLStore) ListTopStats(_ context.Context, opts domain.ListOpts) ([]domain.UserStats, error) {
	s.topCalls++
	var out []domain.UserStats
	for _, st := range s.stats {
		out = append(out, st)
	}
	return out, nil
}

func (s *fakePnLStore) GetStats(_ context.Context, address string) (domain.UserStats, error) {
	st, ok := s.stats[address]
	if !ok {
		return domain.UserStats{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *fakePnLStore) ListMarketPnL(_ context.Context, address string) ([]domain.UserMarketPnL, error) {
	return s.marketPnL[address], nil
}

func (s *fakePnLStore) ListTags(_ context.Context, address string) ([]string, error) {
	return s.tags[address], nil
}

type fakeMarketStore struct {
	markets map[string]domain.Market
}

func (s *fakeMarketStore) Upsert(context.Context, domain.Market) error { return nil }

func (s *fakeMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMarketStore) GetByTokenID(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

func (s *fakeMarketStore) Count(context.Context) (int64, error) { return 0, nil }

type memCache struct {
	leaderboards map[domain.ListOpts][]domain.LeaderboardEntry
	profiles     map[string]domain.UserProfile
	invalidated  int
}

func newMemCache() *memCache {
	return &memCache{
		leaderboards: make(map[domain.ListOpts][]domain.LeaderboardEntry),
		profiles:     make(map[string]domain.UserProfile),
	}
}

func (c *memCache) GetLeaderboard(_ context.Context, opts domain.ListOpts) ([]domain.LeaderboardEntry, error) {
	entries, ok := c.leaderboards[opts]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return entries, nil
}

func (c *memCache) SetLeaderboard(_ context.Context, opts domain.ListOpts, entries []domain.LeaderboardEntry) error {
	c.leaderboards[opts] = entries
	return nil
}

func (c *memCache) GetProfile(_ context.Context, address string) (domain.UserProfile, error) {
	p, ok := c.profiles[address]
	if !ok {
		return domain.UserProfile{}, domain.ErrCacheMiss
	}
	return p, nil
}

func (c *memCache) SetProfile(_ context.Context, profile domain.UserProfile) error {
	c.profiles[profile.Stats.Address] = profile
	return nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.leaderboards = make(map[domain.ListOpts][]domain.LeaderboardEntry)
	c.profiles = make(map[string]domain.UserProfile)
	c.invalidated++
	return nil
}

const addr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newTestService(cache domain.ReputationCache) (*ReputationService, *fakePnLStore) {
	pnl := &fakePnLStore{
		stats: map[string]domain.UserStats{
			addr: {Address: addr, TotalProfit: 60_000_000, MarketsTraded: 1, UpdatedAt: time.Now()},
		},
		marketPnL: map[string][]domain.UserMarketPnL{
			addr: {{Address: addr, MarketID: "m1", Profit: 60_000_000, Win: true}},
		},
		tags: map[string][]string{addr: {domain.TagDiamondHands}},
	}
	markets := &fakeMarketStore{markets: map[string]domain.Market{
		"m1": {ID: "m1", Question: "?"},
	}}
	logger := slog.New(slog.DiscardHandler)
	return NewReputationService(pnl, markets, cache, logger), pnl
}

func TestLeaderboardCacheAside(t *testing.T) {
	cache := newMemCache()
	svc, pnl := newTestService(cache)
	opts := domain.ListOpts{Limit: 50}

	first, err := svc.Leaderboard(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, pnl.topCalls)

	// Second read is served from the cache.
	second, err := svc.Leaderboard(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, pnl.topCalls)
}

func TestLeaderboardWorksWithoutCache(t *testing.T) {
	svc, _ := newTestService(nil)
	entries, err := svc.Leaderboard(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{domain.TagDiamondHands}, entries[0].Tags)
}

func TestProfileNormalizesAddress(t *testing.T) {
	svc, _ := newTestService(newMemCache())

	profile, err := svc.Profile(context.Background(), "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, addr, profile.Stats.Address)
	require.Len(t, profile.Markets, 1)
	assert.Equal(t, "m1", profile.Markets[0].MarketID)
}

func TestProfileNotFound(t *testing.T) {
	svc, _ := newTestService(nil)
	_, err := svc.Profile(context.Background(), "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestInvalidateCacheFlushes(t *testing.T) {
	cache := newMemCache()
	svc, _ := newTestService(cache)

	_, err := svc.Leaderboard(context.Background(), domain.ListOpts{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, cache.leaderboards)

	svc.InvalidateCache(context.Background())
	assert.Empty(t, cache.leaderboards)
	assert.Equal(t, 1, cache.invalidated)
}

func TestMarketLookup(t *testing.T) {
	svc, _ := newTestService(nil)

	m, err := svc.Market(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)

	_, err = svc.Market(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
