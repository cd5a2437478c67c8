// Package service provides business logic for the application.
package service

import (
	"errors"
	"regexp"
	"time"
)

// Service errors.
var (
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidImage          = errors.New("invalid image")
	ErrImageTooLarge         = errors.New("image too large")
	ErrNoPlantDetected       = errors.New("no plant identified")
	ErrClassificationFailed  = errors.New("plant identification failed")
	ErrBillingDisabled       = errors.New("subscriptions are not configured")
	ErrNoSubscription        = errors.New("no subscription found")
	ErrAlreadySubscribed     = errors.New("user already has an active subscription")
	ErrSubscriptionMismatch  = errors.New("subscription does not belong to user")
	ErrInvalidWebhook        = errors.New("invalid webhook")
	ErrCustomerAlreadyLinked = errors.New("billing customer linked to another user")
)

// userIDRegex matches the opaque ids the mobile client generates
// ("user_" plus a random suffix) and similar tokens.
var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateUserID checks the client supplied user id.
func ValidateUserID(userID string) error {
	if !userIDRegex.MatchString(userID) {
		return ErrInvalidUserID
	}
	return nil
}

func utcNow() time.Time { return time.Now().UTC() }
