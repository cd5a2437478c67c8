package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/florascope/florascope/internal/model"
)

const usageColumns = `user_id, daily_count, last_reset_date, monthly_count, last_monthly_reset,
	total_count, is_premium, trial_start_date, trial_expired, stripe_customer_id, stripe_subscription_id,
	subscription_status, cancel_at_period_end, current_period_end, created_at, updated_at`

// GetUsage retrieves a user's usage record.
func (r *Repository) GetUsage(ctx context.Context, userID string) (*model.UserUsage, error) {
	query := `SELECT ` + usageColumns + ` FROM user_usage WHERE user_id = $1`

	u, err := scanUsage(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return u, nil
}

// GetUsageByStripeCustomer retrieves the usage record linked to a Stripe customer.
func (r *Repository) GetUsageByStripeCustomer(ctx context.Context, customerID string) (*model.UserUsage, error) {
	if customerID == "" {
		return nil, ErrUsageNotFound
	}
	query := `SELECT ` + usageColumns + ` FROM user_usage WHERE stripe_customer_id = $1`

	u, err := scanUsage(r.pool.QueryRow(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get usage by customer: %w", err)
	}
	return u, nil
}

// UpdateUsage locks the user's row for the duration of fn. The row is
// inserted first if needed so concurrent first requests serialize on it.
func (r *Repository) UpdateUsage(ctx context.Context, userID string, fn UsageMutator) (*model.UserUsage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin usage tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()
	seed := model.NewUserUsage(userID, now)
	_, err = tx.Exec(ctx, `
		INSERT INTO user_usage (user_id, last_reset_date, last_monthly_reset, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, seed.LastResetDate, seed.LastMonthlyReset, now)
	if err != nil {
		return nil, fmt.Errorf("failed to seed usage: %w", err)
	}

	u, err := scanUsage(tx.QueryRow(ctx,
		`SELECT `+usageColumns+` FROM user_usage WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock usage: %w", err)
	}

	if err := fn(u); err != nil {
		return nil, err
	}
	u.UserID = userID

	_, err = tx.Exec(ctx, `
		UPDATE user_usage SET
			daily_count = $2,
			last_reset_date = $3,
			monthly_count = $4,
			last_monthly_reset = $5,
			is_premium = $6,
			trial_start_date = $7,
			trial_expired = $8,
			stripe_customer_id = $9,
			stripe_subscription_id = $10,
			subscription_status = $11,
			cancel_at_period_end = $12,
			current_period_end = $13,
			total_count = $14,
			updated_at = NOW()
		WHERE user_id = $1
	`,
		u.UserID,
		u.DailyCount,
		u.LastResetDate,
		u.MonthlyCount,
		u.LastMonthlyReset,
		u.IsPremium,
		u.TrialStartDate,
		u.TrialExpired,
		u.StripeCustomerID,
		u.StripeSubscriptionID,
		u.SubscriptionStatus,
		u.CancelAtPeriodEnd,
		u.CurrentPeriodEnd,
		u.TotalCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCustomerTaken
		}
		return nil, fmt.Errorf("failed to update usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit usage tx: %w", err)
	}

	return u, nil
}

func scanUsage(row pgx.Row) (*model.UserUsage, error) {
	var u model.UserUsage
	err := row.Scan(
		&u.UserID,
		&u.DailyCount,
		&u.LastResetDate,
		&u.MonthlyCount,
		&u.LastMonthlyReset,
		&u.TotalCount,
		&u.IsPremium,
		&u.TrialStartDate,
		&u.TrialExpired,
		&u.StripeCustomerID,
		&u.StripeSubscriptionID,
		&u.SubscriptionStatus,
		&u.CancelAtPeriodEnd,
		&u.CurrentPeriodEnd,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return &u, err
}
