package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/florascope/florascope/internal/handler/dto"
	"github.com/florascope/florascope/internal/quota"
	"github.com/florascope/florascope/internal/service"
)

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &exceeded):
		writeQuotaExceeded(w, exceeded, time.Now())
	case errors.Is(err, service.ErrInvalidUserID):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_USER_ID")
	case errors.Is(err, service.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "IMAGE_TOO_LARGE")
	case errors.Is(err, service.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_IMAGE")
	case errors.Is(err, service.ErrNoPlantDetected):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "No plant identified",
			Code:    "NO_PLANT_IDENTIFIED",
			Message: "Please take a clearer photo of a plant",
		})
	case errors.Is(err, service.ErrClassificationFailed):
		writeError(w, http.StatusBadGateway, "plant identification service unavailable", "UPSTREAM_ERROR")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out", "TIMEOUT")
	case errors.Is(err, service.ErrBillingDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "BILLING_DISABLED")
	case errors.Is(err, service.ErrNoSubscription):
		writeError(w, http.StatusNotFound, err.Error(), "NO_SUBSCRIPTION")
	case errors.Is(err, service.ErrAlreadySubscribed):
		writeError(w, http.StatusConflict, err.Error(), "ALREADY_SUBSCRIBED")
	case errors.Is(err, service.ErrCustomerAlreadyLinked):
		writeError(w, http.StatusConflict, err.Error(), "CUSTOMER_ALREADY_LINKED")
	case errors.Is(err, service.ErrSubscriptionMismatch):
		writeError(w, http.StatusForbidden, err.Error(), "SUBSCRIPTION_MISMATCH")
	case errors.Is(err, service.ErrInvalidWebhook):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SIGNATURE")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		logger.Debug("request canceled", "path", r.URL.Path)
		writeError(w, http.StatusServiceUnavailable, "request canceled", "CANCELED")
	default:
		logger.Error("internal error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// writeQuotaExceeded writes a 429 with Retry-After derived from the reset
// time of the exhausted period.
func writeQuotaExceeded(w http.ResponseWriter, e *quota.ExceededError, now time.Time) {
	code, message := "DAILY_LIMIT_REACHED", "Daily limit reached"
	if e.Period() == "monthly" {
		code, message = "MONTHLY_LIMIT_REACHED", "Monthly limit reached"
	}

	retryAfter := int(math.Ceil(e.ResetsAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	writeJSON(w, http.StatusTooManyRequests, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Message: e.Error(),
	})
}
