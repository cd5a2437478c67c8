// Package dto provides Data Transfer Objects for API requests and responses.
// Field names are camelCase to stay compatible with the mobile client.
package dto

import (
	"time"

	"github.com/florascope/florascope/internal/billing"
	"github.com/florascope/florascope/internal/model"
	"github.com/florascope/florascope/internal/quota"
	"github.com/florascope/florascope/internal/service"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// IdentifyRequest is the body of POST /api/identify-plant.
type IdentifyRequest struct {
	ImageBase64 string `json:"imageBase64"`
	UserID      string `json:"userId"`
}

// IdentifyResponse pairs the stored identification with the updated allowance.
type IdentifyResponse struct {
	Identification *model.Identification `json:"identification"`
	Usage          UsageResponse         `json:"usage"`
}

// UsageResponse is a user's allowance. dailyCount, premiumMonthlyCount,
// totalCount, isPremium and remainingFree are read by the mobile client.
// remainingFree is the free daily figure and is null for premium users;
// premiumMonthlyCount is 0 unless the user is premium.
type UsageResponse struct {
	DailyCount          int        `json:"dailyCount"`
	MonthlyCount        int        `json:"monthlyCount"`
	PremiumMonthlyCount int        `json:"premiumMonthlyCount"`
	TotalCount          int        `json:"totalCount"`
	IsPremium           bool       `json:"isPremium"`
	RemainingFree       *int       `json:"remainingFree"`
	Tier                string     `json:"tier"`
	Limit               *int       `json:"limit"`
	Remaining           *int       `json:"remaining"`
	ResetsAt            time.Time  `json:"resetsAt"`
	TrialEndsAt         *time.Time `json:"trialEndsAt,omitempty"`
}

// ToUsageResponse converts a quota status. Limit and Remaining are null
// when the tier is unlimited.
func ToUsageResponse(s quota.Status) UsageResponse {
	resp := UsageResponse{
		DailyCount:    s.DailyCount,
		MonthlyCount:  s.MonthlyCount,
		TotalCount:    s.TotalCount,
		IsPremium:     s.IsPremium,
		RemainingFree: s.RemainingFree,
		Tier:          string(s.Tier),
		ResetsAt:      s.ResetsAt,
		TrialEndsAt:   s.TrialEndsAt,
	}
	if s.IsPremium {
		resp.PremiumMonthlyCount = s.MonthlyCount
	}
	if !s.Unlimited {
		limit, remaining := s.Limit, s.Remaining
		resp.Limit = &limit
		resp.Remaining = &remaining
	}
	return resp
}

// UserRequest carries only the client user id.
type UserRequest struct {
	UserID string `json:"userId"`
}

// CreateSubscriptionRequest is the body of POST /api/create-subscription.
type CreateSubscriptionRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// CreateSubscriptionResponse carries the PaymentIntent secret the client
// confirms with Stripe.
type CreateSubscriptionResponse struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientSecret   string `json:"clientSecret"`
	CustomerID     string `json:"customerId"`
	Status         string `json:"status"`
}

// ToCreateSubscriptionResponse converts the service output.
func ToCreateSubscriptionResponse(out *service.CreateOutput) CreateSubscriptionResponse {
	return CreateSubscriptionResponse{
		SubscriptionID: out.SubscriptionID,
		ClientSecret:   out.ClientSecret,
		CustomerID:     out.CustomerID,
		Status:         out.Status,
	}
}

// SubscriptionSuccessRequest is the body of POST /api/subscription-success.
type SubscriptionSuccessRequest struct {
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// CancelSubscriptionResponse reports the scheduled cancellation.
type CancelSubscriptionResponse struct {
	Status            string     `json:"status"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd"`
}

// ToCancelSubscriptionResponse converts a billing subscription.
func ToCancelSubscriptionResponse(sub *billing.Subscription) CancelSubscriptionResponse {
	return CancelSubscriptionResponse{
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	}
}

// WebhookResponse acknowledges a Stripe event.
type WebhookResponse struct {
	Received bool `json:"received"`
}

// PopularSpeciesResponse is the body of GET /api/stats/species.
type PopularSpeciesResponse struct {
	Since   string               `json:"since"`
	Days    int                  `json:"days"`
	Species []model.SpeciesCount `json:"species"`
}

// ToPopularSpeciesResponse converts the service output.
func ToPopularSpeciesResponse(out *service.PopularSpeciesOutput) PopularSpeciesResponse {
	return PopularSpeciesResponse{
		Since:   out.Since.Format(model.DayLayout),
		Days:    out.Days,
		Species: out.Species,
	}
}
