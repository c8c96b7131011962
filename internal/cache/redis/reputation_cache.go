package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// Derived rows only change on a PnL rebuild, which invalidates the cache
// explicitly, so a short TTL is just a safety net against missed flushes.
const reputationTTL = 5 * time.Minute

// ReputationCache implements domain.ReputationCache with JSON values.
//
// Key schema:
//
//	rep:leaderboard:{limit}:{offset} - JSON array of leaderboard entries
//	rep:profile:{address}            - JSON user profile
type ReputationCache struct {
	rdb *redis.Client
}

// NewReputationCache creates a ReputationCache backed by the given Client.
func NewReputationCache(c *Client) *ReputationCache {
	return &ReputationCache{rdb: c.Underlying()}
}

func leaderboardKey(opts domain.ListOpts) string {
	return "rep:leaderboard:" + strconv.Itoa(opts.Limit) + ":" + strconv.Itoa(opts.Offset)
}

func profileKey(address string) string {
	return "rep:profile:" + strings.ToLower(address)
}

// GetLeaderboard returns a cached leaderboard page, or domain.ErrCacheMiss.
func (rc *ReputationCache) GetLeaderboard(ctx context.Context, opts domain.ListOpts) ([]domain.LeaderboardEntry, error) {
	data, err := rc.rdb.Get(ctx, leaderboardKey(opts)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: get leaderboard: %w", err)
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("redis: unmarshal leaderboard: %w", err)
	}
	return entries, nil
}

// SetLeaderboard caches one leaderboard page.
func (rc *ReputationCache) SetLeaderboard(ctx context.Context, opts domain.ListOpts, entries []domain.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("redis: marshal leaderboard: %w", err)
	}
	if err := rc.rdb.Set(ctx, leaderboardKey(opts), data, reputationTTL).Err(); err != nil {
		return fmt.Errorf("redis: set leaderboard: %w", err)
	}
	return nil
}

// GetProfile returns a cached user profile, or domain.ErrCacheMiss.
func (rc *ReputationCache) GetProfile(ctx context.Context, address string) (domain.UserProfile, error) {
	data, err := rc.rdb.Get(ctx, profileKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.UserProfile{}, domain.ErrCacheMiss
		}
		return domain.UserProfile{}, fmt.Errorf("redis: get profile %s: %w", address, err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("redis: unmarshal profile %s: %w", address, err)
	}
	return profile, nil
}

// SetProfile caches a user profile keyed by its lowercased address.
func (rc *ReputationCache) SetProfile(ctx context.Context, profile domain.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("redis: marshal profile %s: %w", profile.Stats.Address, err)
	}
	if err := rc.rdb.Set(ctx, profileKey(profile.Stats.Address), data, reputationTTL).Err(); err != nil {
		return fmt.Errorf("redis: set profile %s: %w", profile.Stats.Address, err)
	}
	return nil
}

// Invalidate drops every cached reputation key. Called after each PnL
// rebuild so readers never serve stale derived rows past the swap.
func (rc *ReputationCache) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := rc.rdb.Scan(ctx, cursor, "rep:*", 200).Result()
		if err != nil {
			return fmt.Errorf("redis: scan reputation keys: %w", err)
		}
		if len(keys) > 0 {
			if err := rc.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: delete reputation keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Compile-time interface check.
var _ domain.ReputationCache = (*ReputationCache)(nil)
