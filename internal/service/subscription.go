package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/florascope/florascope/internal/billing"
	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/model"
	"github.com/florascope/florascope/internal/quota"
	"github.com/florascope/florascope/internal/repository"
)

// Subscription statuses written locally when Stripe sends no object.
const (
	statusCanceled = "canceled"
	statusPastDue  = "past_due"
)

// SubscriptionService manages the premium subscription lifecycle.
type SubscriptionService struct {
	store   repository.Store
	billing billing.Provider
	policy  quota.Policy
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService. A nil provider
// makes every operation return ErrBillingDisabled.
func NewSubscriptionService(store repository.Store, provider billing.Provider, policy quota.Policy, logger *slog.Logger, recorder metrics.Recorder) *SubscriptionService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		store:   store,
		billing: provider,
		policy:  policy,
		logger:  logger.With("component", "service.subscription"),
		metrics: recorder,
		now:     utcNow,
	}
}

// Enabled reports whether a billing provider is configured.
func (s *SubscriptionService) Enabled() bool {
	return s.billing != nil
}

// CreateOutput carries what the client needs to confirm payment.
type CreateOutput struct {
	SubscriptionID string
	ClientSecret   string
	CustomerID     string
	Status         string
}

// Create starts an incomplete subscription for the user, creating the
// Stripe customer on first use.
func (s *SubscriptionService) Create(ctx context.Context, userID, email string) (*CreateOutput, error) {
	if !s.Enabled() {
		return nil, ErrBillingDisabled
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	usage, err := s.getUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	var customerID string
	if usage != nil {
		if usage.IsPremium && usage.HasSubscription() {
			return nil, ErrAlreadySubscribed
		}
		customerID = usage.StripeCustomerID
	}

	if customerID == "" {
		customerID, err = s.billing.CreateCustomer(ctx, userID, email)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
	}

	sub, err := s.billing.CreateSubscription(ctx, customerID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	_, err = s.store.UpdateUsage(ctx, userID, func(u *model.UserUsage) error {
		u.StripeCustomerID = customerID
		s.applySubscription(u, sub)
		return nil
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.logger.Info("subscription created",
		"user_id", userID,
		"subscription_id", sub.ID,
		"status", sub.Status,
	)

	return &CreateOutput{
		SubscriptionID: sub.ID,
		ClientSecret:   sub.ClientSecret,
		CustomerID:     customerID,
		Status:         sub.Status,
	}, nil
}

// Confirm re-reads the subscription from Stripe after client-side payment
// and updates premium access. An empty subscriptionID uses the stored one.
func (s *SubscriptionService) Confirm(ctx context.Context, userID, subscriptionID string) (quota.Status, error) {
	if !s.Enabled() {
		return quota.Status{}, ErrBillingDisabled
	}
	if err := ValidateUserID(userID); err != nil {
		return quota.Status{}, err
	}

	usage, err := s.getUsage(ctx, userID)
	if err != nil {
		return quota.Status{}, err
	}
	if usage == nil || usage.StripeCustomerID == "" {
		return quota.Status{}, ErrNoSubscription
	}
	if subscriptionID == "" {
		subscriptionID = usage.StripeSubscriptionID
	}
	if subscriptionID == "" {
		return quota.Status{}, ErrNoSubscription
	}

	sub, err := s.billing.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return quota.Status{}, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	if sub.CustomerID != usage.StripeCustomerID {
		return quota.Status{}, ErrSubscriptionMismatch
	}

	updated, err := s.store.UpdateUsage(ctx, userID, func(u *model.UserUsage) error {
		s.applySubscription(u, sub)
		return nil
	})
	if err != nil {
		return quota.Status{}, s.mapStoreError(err)
	}

	s.logger.Info("subscription confirmed",
		"user_id", userID,
		"subscription_id", sub.ID,
		"status", sub.Status,
		"premium", updated.IsPremium,
	)
	return s.policy.Status(updated, s.now()), nil
}

// Cancel schedules cancellation at the end of the paid period. Premium
// access stays until Stripe reports the subscription deleted.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) (*billing.Subscription, error) {
	if !s.Enabled() {
		return nil, ErrBillingDisabled
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	usage, err := s.getUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if usage == nil || !usage.HasSubscription() {
		return nil, ErrNoSubscription
	}

	sub, err := s.billing.CancelAtPeriodEnd(ctx, usage.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if _, err := s.store.UpdateUsage(ctx, userID, func(u *model.UserUsage) error {
		s.applySubscription(u, sub)
		return nil
	}); err != nil {
		return nil, s.mapStoreError(err)
	}

	s.logger.Info("subscription cancellation scheduled",
		"user_id", userID,
		"subscription_id", sub.ID,
	)
	return sub, nil
}

// HandleWebhook verifies a Stripe event and applies it to the owning
// user. Unhandled types and unknown customers are acknowledged and ignored.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.Enabled() {
		return ErrBillingDisabled
	}

	event, err := s.billing.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrInvalidPayload) {
			return fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
		}
		return err
	}

	if !event.Handled() {
		s.logger.Debug("ignoring webhook event", "event_id", event.ID, "type", event.Type)
		return nil
	}

	userID, err := s.resolveUser(ctx, event)
	if err != nil {
		return err
	}
	if userID == "" {
		s.logger.Warn("webhook for unknown customer",
			"event_id", event.ID,
			"type", event.Type,
			"customer_id", event.CustomerID,
		)
		return nil
	}

	_, err = s.store.UpdateUsage(ctx, userID, func(u *model.UserUsage) error {
		s.applyEvent(u, event)
		return nil
	})
	if err != nil {
		return s.mapStoreError(err)
	}

	s.metrics.IncSubscriptionEvent(event.Type)
	s.logger.Info("webhook applied",
		"event_id", event.ID,
		"type", event.Type,
		"user_id", userID,
	)
	return nil
}

// resolveUser prefers the user id stored on the subscription metadata and
// falls back to the customer lookup.
func (s *SubscriptionService) resolveUser(ctx context.Context, event *billing.Event) (string, error) {
	if event.Subscription != nil && ValidateUserID(event.Subscription.UserID) == nil {
		return event.Subscription.UserID, nil
	}
	if event.CustomerID == "" {
		return "", nil
	}

	usage, err := s.store.GetUsageByStripeCustomer(ctx, event.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up customer: %w", err)
	}
	return usage.UserID, nil
}

func (s *SubscriptionService) applyEvent(u *model.UserUsage, event *billing.Event) {
	if event.CustomerID != "" && u.StripeCustomerID == "" {
		u.StripeCustomerID = event.CustomerID
	}

	switch event.Type {
	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated:
		if event.Subscription != nil {
			s.applySubscription(u, event.Subscription)
		}
	case billing.EventSubscriptionDeleted:
		if u.StripeSubscriptionID == "" || u.StripeSubscriptionID == event.SubscriptionID {
			u.StripeSubscriptionID = ""
			u.SubscriptionStatus = statusCanceled
			u.CancelAtPeriodEnd = false
			u.IsPremium = false
		}
	case billing.EventPaymentFailed:
		if u.StripeSubscriptionID != "" && u.StripeSubscriptionID == event.SubscriptionID {
			u.SubscriptionStatus = statusPastDue
			u.IsPremium = false
		}
	}
	u.UpdatedAt = s.now()
}

func (s *SubscriptionService) applySubscription(u *model.UserUsage, sub *billing.Subscription) {
	u.StripeSubscriptionID = sub.ID
	u.SubscriptionStatus = sub.Status
	u.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	u.CurrentPeriodEnd = sub.CurrentPeriodEnd
	u.IsPremium = model.IsPremiumStatus(sub.Status)
	if u.IsPremium {
		quota.ForfeitTrial(u)
	}
	u.UpdatedAt = s.now()
}

func (s *SubscriptionService) getUsage(ctx context.Context, userID string) (*model.UserUsage, error) {
	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return usage, nil
}

func (s *SubscriptionService) mapStoreError(err error) error {
	if errors.Is(err, repository.ErrCustomerTaken) {
		return ErrCustomerAlreadyLinked
	}
	return fmt.Errorf("failed to update usage: %w", err)
}
