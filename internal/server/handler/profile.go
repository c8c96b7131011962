package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/service"
)

// ProfileHandler serves the per-address reputation endpoint.
type ProfileHandler struct {
	reputation *service.ReputationService
	logger     *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(reputation *service.ReputationService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{reputation: reputation, logger: logger}
}

// Get returns the stats, per-market PnL, and tags of one address.
// GET /api/users/{address}
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(strings.TrimSpace(r.PathValue("address")))
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	profile, err := h.reputation.Profile(r.Context(), address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no reputation data for address")
			return
		}
		h.logger.ErrorContext(r.Context(), "profile query failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	markets := make([]marketPnLDTO, 0, len(profile.Markets))
	for _, p := range profile.Markets {
		markets = append(markets, newMarketPnLDTO(p))
	}
	tags := profile.Tags
	if tags == nil {
		tags = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   newStatsDTO(profile.Stats),
		"markets": markets,
		"tags":    tags,
	})
}
