package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeConfig holds configuration for Stripe integration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
}

// Validate validates the Stripe configuration.
func (c StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return errors.New("stripe: secret key is required")
	}
	if c.PriceID == "" {
		return errors.New("stripe: price id is required")
	}
	return nil
}

// StripeAdapter implements Provider with stripe-go.
type StripeAdapter struct {
	api           *client.API
	priceID       string
	webhookSecret string
	logger        *slog.Logger
	backend       stripe.Backend
}

var _ Provider = (*StripeAdapter)(nil)

// StripeOption is a functional option for configuring StripeAdapter.
type StripeOption func(*StripeAdapter)

// WithBackend routes API calls through b instead of api.stripe.com.
func WithBackend(b stripe.Backend) StripeOption {
	return func(a *StripeAdapter) {
		a.backend = b
	}
}

// NewStripeAdapter creates a new Stripe adapter.
func NewStripeAdapter(cfg StripeConfig, logger *slog.Logger, opts ...StripeOption) (*StripeAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &StripeAdapter{
		priceID:       cfg.PriceID,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger.With("component", "billing"),
	}
	for _, opt := range opts {
		opt(a)
	}

	var backends *stripe.Backends
	if a.backend != nil {
		backends = &stripe.Backends{API: a.backend, Connect: a.backend, Uploads: a.backend}
	}
	a.api = client.New(cfg.SecretKey, backends)

	return a, nil
}

// CreateCustomer creates a Stripe customer tagged with the app user id.
func (a *StripeAdapter) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{"user_id": userID},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	cust, err := a.api.Customers.New(params)
	if err != nil {
		a.logger.Error("failed to create stripe customer", "user_id", userID, "error", err)
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	a.logger.Info("created stripe customer", "user_id", userID, "customer_id", cust.ID)
	return cust.ID, nil
}

// CreateSubscription starts an incomplete subscription whose first invoice
// the client pays with the returned client secret.
func (a *StripeAdapter) CreateSubscription(ctx context.Context, customerID, userID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(a.priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
		Metadata: map[string]string{"user_id": userID},
	}
	params.AddExpand("latest_invoice.payment_intent")
	params.Context = ctx

	sub, err := a.api.Subscriptions.New(params)
	if err != nil {
		a.logger.Error("failed to create stripe subscription", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("stripe: failed to create subscription: %w", err)
	}

	a.logger.Info("created stripe subscription",
		"subscription_id", sub.ID,
		"customer_id", customerID,
		"status", string(sub.Status),
	)

	out := toSubscription(sub)
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	if out.CustomerID == "" {
		out.CustomerID = customerID
	}
	return out, nil
}

// GetSubscription fetches the current state of a subscription.
func (a *StripeAdapter) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := a.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}
	return toSubscription(sub), nil
}

// CancelAtPeriodEnd schedules cancellation; access continues until the
// current period ends.
func (a *StripeAdapter) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	sub, err := a.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		a.logger.Error("failed to cancel stripe subscription", "subscription_id", subscriptionID, "error", err)
		return nil, fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	a.logger.Info("scheduled stripe subscription cancellation", "subscription_id", subscriptionID)
	return toSubscription(sub), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (a *StripeAdapter) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if a.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}

	switch out.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		out.Subscription = toSubscription(&sub)
		out.CustomerID = out.Subscription.CustomerID
		out.SubscriptionID = sub.ID
	case EventPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
	}

	return out, nil
}

func toSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		UserID:            sub.Metadata["user_id"],
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	return out
}
