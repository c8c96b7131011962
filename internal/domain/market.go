package domain

import "time"

// Market is a prediction market from the Gamma metadata service. Resolution
// is inferred from outcome prices: the market is resolved only when it is
// closed and one outcome trades at effectively 1.0.
type Market struct {
	ID                string
	Question          string
	ConditionID       string
	Slug              string
	Closed            bool
	Resolved          bool
	ResolutionOutcome string
	WinningTokenID    *string

	// Parallel arrays, aligned by outcome index.
	Outcomes      []string
	OutcomePrices []float64
	TokenIDs      []string

	UpdatedAt time.Time
}

// TokenOutcome maps a single outcome token ID to its market and outcome.
// Every token ID belongs to exactly one market.
type TokenOutcome struct {
	TokenID      string
	MarketID     string
	OutcomeIndex int
	OutcomeLabel string
}
