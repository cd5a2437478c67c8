package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/florascope/florascope/internal/handler/dto"
	"github.com/florascope/florascope/internal/service"
)

// maxWebhookBytes caps Stripe event payloads.
const maxWebhookBytes = 64 << 10

// SubscriptionHandler handles the premium subscription lifecycle.
type SubscriptionHandler struct {
	service *service.SubscriptionService
	logger  *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(svc *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: svc, logger: logger}
}

// Create starts a subscription and returns the payment client secret.
// POST /api/create-subscription
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.service.Create(r.Context(), req.UserID, req.Email)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToCreateSubscriptionResponse(out))
}

// Success verifies a subscription after client-side payment and returns
// the refreshed allowance.
// POST /api/subscription-success
func (h *SubscriptionHandler) Success(w http.ResponseWriter, r *http.Request) {
	var req dto.SubscriptionSuccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := h.service.Confirm(r.Context(), req.UserID, req.SubscriptionID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUsageResponse(status))
}

// Cancel schedules cancellation at the end of the billing period.
// POST /api/cancel-subscription
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req dto.UserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := h.service.Cancel(r.Context(), req.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToCancelSubscriptionResponse(sub))
}

// Webhook receives Stripe events. The raw body is needed for signature
// verification.
// POST /api/webhooks/stripe
func (h *SubscriptionHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large", "PAYLOAD_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body", "INVALID_REQUEST")
		return
	}
	if len(payload) > maxWebhookBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large", "PAYLOAD_TOO_LARGE")
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WebhookResponse{Received: true})
}
