package handler

import (
	"math"
	"time"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// toUSDC converts base units to a decimal USDC amount for display. Raw base
// units are always included alongside so clients can do exact arithmetic.
func toUSDC(baseUnits int64) float64 {
	return float64(baseUnits) / math.Pow10(domain.USDCDecimals)
}

type statsDTO struct {
	Address         string   `json:"address"`
	TotalCostRaw    int64    `json:"total_cost_raw"`
	TotalProfitRaw  int64    `json:"total_profit_raw"`
	TotalCostUSDC   float64  `json:"total_cost_usdc"`
	TotalProfitUSDC float64  `json:"total_profit_usdc"`
	ROI             *float64 `json:"roi"`
	MarketsTraded   int      `json:"markets_traded"`
	WinRate         *float64 `json:"win_rate"`
	TradesCount     int      `json:"trades_count"`
	MaxTradeUSDC    float64  `json:"max_trade_usdc"`
	UpdatedAt       string   `json:"updated_at"`
}

func newStatsDTO(s domain.UserStats) statsDTO {
	return statsDTO{
		Address:         s.Address,
		TotalCostRaw:    s.TotalCost,
		TotalProfitRaw:  s.TotalProfit,
		TotalCostUSDC:   toUSDC(s.TotalCost),
		TotalProfitUSDC: toUSDC(s.TotalProfit),
		ROI:             s.ROI,
		MarketsTraded:   s.MarketsTraded,
		WinRate:         s.WinRate,
		TradesCount:     s.TradesCount,
		MaxTradeUSDC:    toUSDC(s.MaxTradeUSDC),
		UpdatedAt:       s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type leaderboardEntryDTO struct {
	statsDTO
	Tags []string `json:"tags"`
}

type marketPnLDTO struct {
	MarketID             string   `json:"market_id"`
	CostRaw              int64    `json:"cost_raw"`
	TradingRevenueRaw    int64    `json:"trading_revenue_raw"`
	SettlementPayoutRaw  int64    `json:"settlement_payout_raw"`
	ProfitRaw            int64    `json:"profit_raw"`
	CostUSDC             float64  `json:"cost_usdc"`
	TradingRevenueUSDC   float64  `json:"trading_revenue_usdc"`
	SettlementPayoutUSDC float64  `json:"settlement_payout_usdc"`
	ProfitUSDC           float64  `json:"profit_usdc"`
	ROI                  *float64 `json:"roi"`
	Win                  bool     `json:"win"`
}

func newMarketPnLDTO(p domain.UserMarketPnL) marketPnLDTO {
	return marketPnLDTO{
		MarketID:             p.MarketID,
		CostRaw:              p.Cost,
		TradingRevenueRaw:    p.TradingRevenue,
		SettlementPayoutRaw:  p.SettlementPayout,
		ProfitRaw:            p.Profit,
		CostUSDC:             toUSDC(p.Cost),
		TradingRevenueUSDC:   toUSDC(p.TradingRevenue),
		SettlementPayoutUSDC: toUSDC(p.SettlementPayout),
		ProfitUSDC:           toUSDC(p.Profit),
		ROI:                  p.ROI,
		Win:                  p.Win,
	}
}

type marketDTO struct {
	ID                string   `json:"id"`
	Question          string   `json:"question"`
	ConditionID       string   `json:"condition_id"`
	Slug              string   `json:"slug"`
	Closed            bool     `json:"closed"`
	Resolved          bool     `json:"resolved"`
	ResolutionOutcome string   `json:"resolution_outcome,omitempty"`
	WinningTokenID    *string  `json:"winning_token_id"`
	Outcomes          []string  `json:"outcomes"`
	OutcomePrices     []float64 `json:"outcome_prices"`
	TokenIDs          []string  `json:"token_ids"`
	UpdatedAt         string    `json:"updated_at"`
}

func newMarketDTO(m domain.Market) marketDTO {
	return marketDTO{
		ID:                m.ID,
		Question:          m.Question,
		ConditionID:       m.ConditionID,
		Slug:              m.Slug,
		Closed:            m.Closed,
		Resolved:          m.Resolved,
		ResolutionOutcome: m.ResolutionOutcome,
		WinningTokenID:    m.WinningTokenID,
		Outcomes:          m.Outcomes,
		OutcomePrices:     m.OutcomePrices,
		TokenIDs:          m.TokenIDs,
		UpdatedAt:         m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
