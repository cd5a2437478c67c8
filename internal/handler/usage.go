package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/florascope/florascope/internal/handler/dto"
	"github.com/florascope/florascope/internal/service"
)

// UsageHandler reports allowances.
type UsageHandler struct {
	service *service.UsageService
	logger  *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(svc *service.UsageService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{service: svc, logger: logger}
}

// Get returns the user's current allowance. Unknown users get the
// defaults of a fresh account.
// GET /api/usage/{userId}
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUsageResponse(status))
}
