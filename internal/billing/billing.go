// Package billing wraps the Stripe subscription lifecycle behind a small
// provider interface.
package billing

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for billing operations.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Event types the service reacts to.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
)

// Subscription is the subset of a Stripe subscription the service uses.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	ClientSecret      string // only set on creation
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	UserID            string // from metadata, may be empty
}

// Event is a verified webhook event.
type Event struct {
	ID   string
	Type string
	// Subscription is set for customer.subscription.* events.
	Subscription *Subscription
	// CustomerID and SubscriptionID are set for every handled event.
	CustomerID     string
	SubscriptionID string
}

// Handled reports whether the event type is one the service acts on.
func (e *Event) Handled() bool {
	switch e.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted, EventPaymentFailed:
		return true
	}
	return false
}

// Provider is the payment backend.
type Provider interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateSubscription(ctx context.Context, customerID, userID string) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
