package handler

import (
	"log/slog"
	"net/http"

	"github.com/florascope/florascope/internal/handler/dto"
	"github.com/florascope/florascope/internal/service"
)

// StatsHandler serves aggregate sighting statistics.
type StatsHandler struct {
	service *service.StatsService
	logger  *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(svc *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{service: svc, logger: logger}
}

// PopularSpecies returns the most identified species over recent days.
// GET /api/stats/species?days=&limit=
func (h *StatsHandler) PopularSpecies(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAMETER")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAMETER")
		return
	}

	out, err := h.service.PopularSpecies(r.Context(), days, limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToPopularSpeciesResponse(out))
}
