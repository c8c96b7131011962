package gamma

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// resolvedPriceThreshold: a market counts as resolved when its best outcome
// price has converged to effectively 1.0.
const resolvedPriceThreshold = 0.99

// APIMarket represents a market as returned by the Gamma API. The outcome
// and token-id arrays arrive as JSON-encoded strings in most responses
// (string type in the API docs), occasionally as real arrays.
type APIMarket struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	ConditionID   string          `json:"conditionId"`
	Slug          string          `json:"slug"`
	Closed        bool            `json:"closed"`
	Outcomes      json.RawMessage `json:"outcomes"`      // e.g. "[\"Yes\",\"No\"]"
	OutcomePrices json.RawMessage `json:"outcomePrices"` // e.g. "[\"0.995\",\"0.005\"]"
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`  // e.g. "[\"123...\",\"456...\"]"
}

// ToDomainMarket converts an APIMarket to a domain.Market, parsing the
// outcome arrays and inferring resolution from the price signal.
func (m *APIMarket) ToDomainMarket(now time.Time) domain.Market {
	outcomes := parseStringList(m.Outcomes)
	prices := parseFloatList(m.OutcomePrices)
	tokenIDs := parseStringList(m.ClobTokenIDs)

	dm := domain.Market{
		ID:            strings.TrimSpace(m.ID),
		Question:      m.Question,
		ConditionID:   m.ConditionID,
		Slug:          m.Slug,
		Closed:        m.Closed,
		Outcomes:      outcomes,
		OutcomePrices: prices,
		TokenIDs:      tokenIDs,
		UpdatedAt:     now.UTC(),
	}

	resolved, outcome, winningToken := InferWinner(outcomes, prices, tokenIDs)
	// A dominant price alone is not resolution; the market must be closed too.
	if resolved && m.Closed {
		dm.Resolved = true
		dm.ResolutionOutcome = outcome
		dm.WinningTokenID = winningToken
	}

	return dm
}

// InferWinner selects the outcome with the maximum price. The market is
// considered resolved when that price is at or above the resolution
// threshold; the winning token ID comes from the same index. Misaligned
// parallel arrays are truncated to the shortest length.
func InferWinner(outcomes []string, prices []float64, tokenIDs []string) (bool, string, *string) {
	if len(outcomes) == 0 || len(prices) == 0 {
		return false, "", nil
	}

	n := min(len(outcomes), len(prices))
	bestIdx := 0
	for i := 1; i < n; i++ {
		if prices[i] > prices[bestIdx] {
			bestIdx = i
		}
	}

	if prices[bestIdx] < resolvedPriceThreshold {
		return false, "", nil
	}

	var winningToken *string
	if bestIdx < len(tokenIDs) {
		tok := tokenIDs[bestIdx]
		winningToken = &tok
	}
	return true, outcomes[bestIdx], winningToken
}

// parseStringList decodes a field that may be a JSON array, a JSON-encoded
// string containing an array, or a bare scalar, into a list of strings.
func parseStringList(raw json.RawMessage) []string {
	items := parseMaybeList(raw)
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case json.Number:
			out = append(out, v.String())
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return out
}

// parseFloatList decodes a price field into floats, skipping unparseable
// entries the way misformatted Gamma rows are skipped elsewhere.
func parseFloatList(raw json.RawMessage) []float64 {
	items := parseMaybeList(raw)
	out := make([]float64, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case float64:
			out = append(out, v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				out = append(out, f)
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				out = append(out, f)
			}
		}
	}
	return out
}

// parseMaybeList normalizes the three shapes Gamma uses for array fields:
// a real JSON array, a string containing a JSON array, or a scalar.
func parseMaybeList(raw json.RawMessage) []any {
	if len(raw) == 0 {
		return nil
	}

	var direct []any
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		var nested []any
		if err := json.Unmarshal([]byte(s), &nested); err == nil {
			return nested
		}
		// CSV-ish fallback for malformed encodings.
		s = strings.TrimPrefix(s, "[")
		s = strings.TrimSuffix(s, "]")
		var out []any
		for _, part := range strings.Split(s, ",") {
			part = strings.Trim(strings.TrimSpace(part), `"'`)
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	var scalar any
	if err := json.Unmarshal(raw, &scalar); err == nil && scalar != nil {
		return []any{scalar}
	}
	return nil
}
