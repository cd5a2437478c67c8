package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/florascope/florascope/internal/quota"
	"github.com/florascope/florascope/internal/repository"
)

// UsageService reports allowances.
type UsageService struct {
	store  repository.Store
	policy quota.Policy
	now    func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(store repository.Store, policy quota.Policy) *UsageService {
	return &UsageService{store: store, policy: policy, now: utcNow}
}

// Status returns the user's allowance. Unknown users get the free-tier
// defaults and no record is created.
func (s *UsageService) Status(ctx context.Context, userID string) (quota.Status, error) {
	if err := ValidateUserID(userID); err != nil {
		return quota.Status{}, err
	}

	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			return s.policy.Status(nil, s.now()), nil
		}
		return quota.Status{}, fmt.Errorf("failed to get usage: %w", err)
	}
	return s.policy.Status(usage, s.now()), nil
}
