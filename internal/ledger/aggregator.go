// Package ledger rebuilds the derived PnL tables from stored trades and
// market resolutions. The rebuild is total: every run recomputes from the
// canonical fills, so the derived state is always a pure function of them.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// Aggregator turns resolved fills into per-market PnL, per-address stats,
// and behavioral tags.
type Aggregator struct {
	trades domain.TradeStore
	pnl    domain.PnLStore
	logger *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(trades domain.TradeStore, pnl domain.PnLStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		trades: trades,
		pnl:    pnl,
		logger: logger.With(slog.String("component", "pnl_aggregator")),
	}
}

// Run recomputes the full derived state and swaps it in atomically.
func (a *Aggregator) Run(ctx context.Context) error {
	started := time.Now()

	fills, err := a.trades.ListResolvedFills(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load resolved fills: %w", err)
	}
	activity, err := a.trades.ListActivity(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load trade activity: %w", err)
	}

	pnl := ComputeMarketPnL(fills)
	stats := ComputeStats(pnl, activity, time.Now().UTC())
	tags := ComputeTags(pnl, stats)

	if err := a.pnl.ReplaceAll(ctx, pnl, stats, tags); err != nil {
		return fmt.Errorf("ledger: replace derived tables: %w", err)
	}

	a.logger.Info("pnl rebuild finished",
		slog.Int("fills", len(fills)),
		slog.Int("pnl_rows", len(pnl)),
		slog.Int("stats_rows", len(stats)),
		slog.Int("tags", len(tags)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// flow is the running position of one address in one market.
type flow struct {
	cost           int64 // collateral paid out
	tradingRevenue int64 // collateral received
	winningNet     int64 // net winning-token balance at resolution
}

type marketKey struct {
	address  string
	marketID string
}

// ComputeMarketPnL folds fills into per-(address, market) realized PnL. Each
// fill contributes a maker leg and a taker leg with opposite collateral and
// token deltas; fills with an unknown side contribute zero deltas. Rows with
// no collateral movement and no payout are dropped. Output order is
// deterministic: by address, then market ID.
func ComputeMarketPnL(fills []domain.ResolvedFill) []domain.UserMarketPnL {
	flows := make(map[marketKey]*flow)
	get := func(address, marketID string) *flow {
		k := marketKey{address: strings.ToLower(address), marketID: marketID}
		f, ok := flows[k]
		if !ok {
			f = &flow{}
			flows[k] = f
		}
		return f
	}

	for _, fill := range fills {
		winning := fill.TokenID == fill.WinningTokenID

		maker := get(fill.Maker, fill.MarketID)
		taker := get(fill.Taker, fill.MarketID)

		switch fill.Side {
		case domain.SideBuy:
			// Maker pays collateral and receives tokens; the fill fee was
			// already netted out of the token amount.
			maker.cost += fill.CollateralAmount
			taker.tradingRevenue += fill.CollateralAmount
			if winning {
				maker.winningNet += fill.TokenAmount
				taker.winningNet -= fill.TokenAmount
			}
		case domain.SideSell:
			// Maker gives tokens and receives collateral net of the fee. A
			// fee above the collateral flips the leg into a net payment,
			// which lands in cost like any other negative collateral delta.
			if net := fill.CollateralAmount - fill.Fee; net >= 0 {
				maker.tradingRevenue += net
			} else {
				maker.cost += -net
			}
			taker.cost += fill.CollateralAmount
			if winning {
				maker.winningNet -= fill.TokenAmount
				taker.winningNet += fill.TokenAmount
			}
		default:
			// Unknown direction: no economic reading, no deltas.
		}
	}

	out := make([]domain.UserMarketPnL, 0, len(flows))
	for k, f := range flows {
		payout := max(f.winningNet, 0)
		if f.cost == 0 && f.tradingRevenue == 0 && payout == 0 {
			continue
		}

		row := domain.UserMarketPnL{
			Address:          k.address,
			MarketID:         k.marketID,
			Cost:             f.cost,
			TradingRevenue:   f.tradingRevenue,
			SettlementPayout: payout,
			Profit:           f.tradingRevenue + payout - f.cost,
		}
		if f.cost > 0 {
			roi := float64(row.Profit) / float64(f.cost)
			row.ROI = &roi
		}
		row.Win = row.Profit > 0
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// ComputeStats rolls per-market PnL up per address and attaches the
// resolution-independent activity figures (fill count and maximum single
// notional, counting maker and taker roles separately). Only addresses with
// at least one PnL row get a stats row. Output is ordered by address.
func ComputeStats(pnl []domain.UserMarketPnL, activity []domain.TradeActivity, now time.Time) []domain.UserStats {
	byAddr := make(map[string]*domain.UserStats)
	wins := make(map[string]int)

	for _, row := range pnl {
		s, ok := byAddr[row.Address]
		if !ok {
			s = &domain.UserStats{Address: row.Address, UpdatedAt: now}
			byAddr[s.Address] = s
		}
		s.TotalCost += row.Cost
		s.TotalProfit += row.Profit
		s.MarketsTraded++
		if row.Win {
			wins[row.Address]++
		}
	}

	type act struct {
		trades int
		maxUSD int64
	}
	actByAddr := make(map[string]*act)
	bump := func(address string, notional int64) {
		address = strings.ToLower(address)
		a, ok := actByAddr[address]
		if !ok {
			a = &act{}
			actByAddr[address] = a
		}
		a.trades++
		a.maxUSD = max(a.maxUSD, notional)
	}
	for _, t := range activity {
		bump(t.Maker, t.CollateralAmount)
		bump(t.Taker, t.CollateralAmount)
	}

	out := make([]domain.UserStats, 0, len(byAddr))
	for addr, s := range byAddr {
		if s.TotalCost > 0 {
			roi := float64(s.TotalProfit) / float64(s.TotalCost)
			s.ROI = &roi
		}
		if s.MarketsTraded > 0 {
			wr := float64(wins[addr]) / float64(s.MarketsTraded)
			s.WinRate = &wr
		}
		if a, ok := actByAddr[addr]; ok {
			s.TradesCount = a.trades
			s.MaxTradeUSDC = a.maxUSD
		}
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
