// Package quota implements per-user identification allowances.
//
// Three tiers exist. Free users get a daily allowance. Every user gets a
// trial on first use, counted against the monthly allowance. Premium users
// (an active Stripe subscription) get the monthly allowance, where a zero
// limit means unlimited. All calendar boundaries are UTC.
package quota

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/florascope/florascope/internal/model"
)

// Tier is the allowance bucket a user currently falls into.
type Tier string

const (
	TierFree    Tier = "free"
	TierTrial   Tier = "trial"
	TierPremium Tier = "premium"
)

// ErrQuotaExceeded is matched by every *ExceededError.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ExceededError describes which allowance ran out.
type ExceededError struct {
	Tier     Tier
	Limit    int
	ResetsAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s limit of %d reached", e.Period(), e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) work.
func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Period is "daily" for the free tier and "monthly" otherwise.
func (e *ExceededError) Period() string {
	if e.Tier == TierFree {
		return "daily"
	}
	return "monthly"
}

// Policy holds the configured allowances.
type Policy struct {
	FreeDailyLimit      int
	TrialDays           int
	PremiumMonthlyLimit int // 0 = unlimited
}

// Status is a read-only view of a user's allowance at a point in time.
type Status struct {
	Tier         Tier
	IsPremium    bool
	DailyCount   int
	MonthlyCount int
	TotalCount   int
	// Limit is the allowance for the current tier; 0 with Unlimited set
	// means there is no cap.
	Limit     int
	Unlimited bool
	Used      int
	Remaining int
	// RemainingFree is what is left of the free daily allowance. It is nil
	// for premium users only; trial users still see the free figure.
	RemainingFree *int
	ResetsAt      time.Time
	TrialEndsAt   *time.Time
}

// Normalize rolls counters over at day and month boundaries and marks a
// finished trial as expired. It mutates u.
func (p Policy) Normalize(u *model.UserUsage, now time.Time) {
	now = now.UTC()
	today := now.Format(model.DayLayout)
	month := now.Format(model.MonthLayout)

	if u.LastResetDate != today {
		u.DailyCount = 0
		u.LastResetDate = today
	}
	if u.LastMonthlyReset != month {
		u.MonthlyCount = 0
		u.LastMonthlyReset = month
	}
	if u.TrialStartDate != "" && !u.TrialExpired && !p.trialActive(u, now) {
		u.TrialExpired = true
	}
}

// TierOf returns the tier u falls into at now without mutating it.
func (p Policy) TierOf(u *model.UserUsage, now time.Time) Tier {
	if u.IsPremium {
		return TierPremium
	}
	if p.trialActive(u, now) {
		return TierTrial
	}
	return TierFree
}

// Status reports the allowance for u. A nil u is a user who has never
// identified anything.
func (p Policy) Status(u *model.UserUsage, now time.Time) Status {
	now = now.UTC()
	if u == nil {
		u = model.NewUserUsage("", now)
	} else {
		u = u.Clone()
	}
	p.Normalize(u, now)

	tier := p.TierOf(u, now)
	limit, unlimited := p.limitFor(tier)
	used := p.counterFor(tier, u)

	s := Status{
		Tier:         tier,
		IsPremium:    u.IsPremium,
		DailyCount:   u.DailyCount,
		MonthlyCount: u.MonthlyCount,
		TotalCount:   u.TotalCount,
		Limit:        limit,
		Unlimited:    unlimited,
		Used:         used,
		Remaining:    max(0, limit-used),
		ResetsAt:     p.resetFor(tier, now),
	}

	if !u.IsPremium {
		free := max(0, p.FreeDailyLimit-u.DailyCount)
		s.RemainingFree = &free
	}

	if start, ok := p.trialStart(u); ok {
		end := start.Add(time.Duration(p.TrialDays) * 24 * time.Hour)
		s.TrialEndsAt = &end
	}

	return s
}

// Consume records one identification against u, starting the trial for a
// user who has never identified anything. It returns the tier charged, or
// an *ExceededError without touching the counters.
func (p Policy) Consume(u *model.UserUsage, now time.Time) (Tier, error) {
	now = now.UTC()
	p.Normalize(u, now)

	if p.eligibleForTrial(u) {
		u.TrialStartDate = now.Format(model.DayLayout)
	}

	tier := p.TierOf(u, now)
	limit, unlimited := p.limitFor(tier)
	if !unlimited && p.counterFor(tier, u) >= limit {
		return tier, &ExceededError{Tier: tier, Limit: limit, ResetsAt: p.resetFor(tier, now)}
	}

	u.DailyCount++
	u.MonthlyCount++
	u.TotalCount++
	u.UpdatedAt = now
	return tier, nil
}

// ForfeitTrial marks the trial as used. Granting premium calls it, so a
// lapsed subscriber falls back to the free tier rather than a fresh trial.
func ForfeitTrial(u *model.UserUsage) {
	u.TrialExpired = true
}

func (p Policy) eligibleForTrial(u *model.UserUsage) bool {
	return p.TrialDays > 0 &&
		u.TrialStartDate == "" &&
		!u.TrialExpired &&
		!u.IsPremium &&
		u.TotalCount == 0
}

// Refund undoes one Consume made earlier the same day.
func (p Policy) Refund(u *model.UserUsage, now time.Time) {
	now = now.UTC()
	if u.LastResetDate == now.Format(model.DayLayout) && u.DailyCount > 0 {
		u.DailyCount--
	}
	if u.LastMonthlyReset == now.Format(model.MonthLayout) && u.MonthlyCount > 0 {
		u.MonthlyCount--
	}
	if u.TotalCount > 0 {
		u.TotalCount--
	}
	u.UpdatedAt = now
}

// trialActive mirrors the client's rule: the trial covers TrialDays
// calendar days counted by rounding the elapsed time up to whole days.
func (p Policy) trialActive(u *model.UserUsage, now time.Time) bool {
	if u.TrialExpired || p.TrialDays <= 0 {
		return false
	}
	start, ok := p.trialStart(u)
	if !ok {
		return false
	}
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return true
	}
	days := int(math.Ceil(elapsed.Hours() / 24))
	return days <= p.TrialDays
}

func (p Policy) trialStart(u *model.UserUsage) (time.Time, bool) {
	if u.TrialStartDate == "" {
		return time.Time{}, false
	}
	start, err := time.Parse(model.DayLayout, u.TrialStartDate)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}

func (p Policy) limitFor(tier Tier) (limit int, unlimited bool) {
	if tier == TierFree {
		return p.FreeDailyLimit, false
	}
	return p.PremiumMonthlyLimit, p.PremiumMonthlyLimit == 0
}

func (p Policy) counterFor(tier Tier, u *model.UserUsage) int {
	if tier == TierFree {
		return u.DailyCount
	}
	return u.MonthlyCount
}

func (p Policy) resetFor(tier Tier, now time.Time) time.Time {
	y, m, d := now.Date()
	if tier == TierFree {
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
}
