package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/florascope/florascope/internal/handler/dto"
	"github.com/florascope/florascope/internal/service"
)

// IdentifyHandler handles identification and history endpoints.
type IdentifyHandler struct {
	service *service.IdentificationService
	logger  *slog.Logger
}

// NewIdentifyHandler creates a new IdentifyHandler.
func NewIdentifyHandler(svc *service.IdentificationService, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{service: svc, logger: logger}
}

// Identify classifies an uploaded photo and charges one identification.
// POST /api/identify-plant
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var req dto.IdentifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ImageBase64 == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing image or userId", "MISSING_FIELDS")
		return
	}

	out, err := h.service.Identify(r.Context(), service.IdentifyInput{
		UserID:      req.UserID,
		ImageBase64: req.ImageBase64,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.IdentifyResponse{
		Identification: out.Identification,
		Usage:          dto.ToUsageResponse(out.Usage),
	})
}

// History lists a user's identifications, newest first.
// GET /api/history/{userId}?limit=
func (h *IdentifyHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAMETER")
		return
	}

	idents, err := h.service.History(r.Context(), chi.URLParam(r, "userId"), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, idents)
}
