package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyreputation/internal/service"
)

// LeaderboardHandler serves the ranked user-stats endpoint.
type LeaderboardHandler struct {
	reputation *service.ReputationService
	logger     *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(reputation *service.ReputationService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{reputation: reputation, logger: logger}
}

// List returns one page of the leaderboard ordered by total profit.
// GET /api/leaderboard?limit=&offset=
func (h *LeaderboardHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.reputation.Leaderboard(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "leaderboard query failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	items := make([]leaderboardEntryDTO, 0, len(entries))
	for _, e := range entries {
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		items = append(items, leaderboardEntryDTO{
			statsDTO: newStatsDTO(e.UserStats),
			Tags:     tags,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"items":  items,
	})
}
