package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/service"
)

// MarketHandler serves market metadata lookups.
type MarketHandler struct {
	reputation *service.ReputationService
	logger     *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(reputation *service.ReputationService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{reputation: reputation, logger: logger}
}

// Get returns one market's metadata, including its inferred resolution.
// GET /api/markets/{id}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.reputation.Market(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "market query failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load market")
		return
	}

	writeJSON(w, http.StatusOK, newMarketDTO(market))
}
