package ledger

import (
	"sort"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// Smart Money thresholds: consistent winners over a meaningful sample.
const (
	smartMoneyWinRate = 0.60
	smartMoneyMarkets = 10
)

// contraROI marks addresses that have lost at least half their stake overall.
const contraROI = -0.50

// ComputeTags derives behavioral tags from the rebuilt PnL and stats rows.
// Each address carries a tag at most once. Output is ordered by address,
// then tag.
func ComputeTags(pnl []domain.UserMarketPnL, stats []domain.UserStats) []domain.UserTag {
	seen := make(map[domain.UserTag]struct{})
	var out []domain.UserTag
	add := func(address, tag string) {
		t := domain.UserTag{Address: address, Tag: tag}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	// Diamond Hands: paid in, never sold, and collected at settlement in at
	// least one market.
	for _, row := range pnl {
		if row.Cost > 0 && row.TradingRevenue == 0 && row.SettlementPayout > 0 {
			add(row.Address, domain.TagDiamondHands)
		}
	}

	for _, s := range stats {
		if s.WinRate != nil && *s.WinRate > smartMoneyWinRate && s.MarketsTraded > smartMoneyMarkets {
			add(s.Address, domain.TagSmartMoney)
		}
		if s.MaxTradeUSDC >= domain.WhaleNotionalThreshold {
			add(s.Address, domain.TagWhale)
		}
		if s.ROI != nil && *s.ROI < contraROI {
			add(s.Address, domain.TagContra)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}
