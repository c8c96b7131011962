package domain

import "time"

// Behavioral tags derived from aggregated PnL.
const (
	TagDiamondHands = "Diamond Hands"
	TagSmartMoney   = "Smart Money"
	TagWhale        = "Whale"
	TagContra       = "Contra"
)

// WhaleNotionalThreshold is the single-trade notional (in USDC base units)
// at or above which an address is tagged as a whale: 1000 USDC.
const WhaleNotionalThreshold = 1_000_000_000

// UserMarketPnL is the realized profit/loss of one address in one resolved
// market. Rows are derived entirely from trades and market resolution and are
// rebuilt from scratch on every aggregation run.
type UserMarketPnL struct {
	Address          string
	MarketID         string
	Cost             int64
	TradingRevenue   int64
	SettlementPayout int64
	Profit           int64
	ROI              *float64 // nil when cost is zero
	Win              bool
}

// UserStats aggregates UserMarketPnL per address plus raw trade activity
// that does not depend on market resolution.
type UserStats struct {
	Address       string
	TotalCost     int64
	TotalProfit   int64
	ROI           *float64
	MarketsTraded int
	WinRate       *float64
	TradesCount   int
	MaxTradeUSDC  int64
	UpdatedAt     time.Time
}

// UserTag is a behavioral tag assigned to an address.
type UserTag struct {
	Address string
	Tag     string
}

// LeaderboardEntry is a user_stats row joined with its tags, as served by
// the read API.
type LeaderboardEntry struct {
	UserStats
	Tags []string
}

// UserProfile is the full per-address view: stats, per-market PnL, and tags.
type UserProfile struct {
	Stats   UserStats
	Markets []UserMarketPnL
	Tags    []string
}
