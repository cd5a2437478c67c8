package quota

import (
	"errors"
	"testing"
	"time"

	"github.com/florascope/florascope/internal/model"
)

var testPolicy = Policy{FreeDailyLimit: 3, TrialDays: 5, PremiumMonthlyLimit: 100}

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestConsume_StartsTrialOnFirstUse(t *testing.T) {
	t.Parallel()

	now := day(2026, 4, 10, 9)
	u := model.NewUserUsage("u1", now)

	tier, err := testPolicy.Consume(u, now)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if tier != TierTrial {
		t.Errorf("expected trial tier, got %s", tier)
	}
	if u.TrialStartDate != "2026-04-10" {
		t.Errorf("expected trial start 2026-04-10, got %q", u.TrialStartDate)
	}
	if u.DailyCount != 1 || u.MonthlyCount != 1 {
		t.Errorf("expected both counters at 1, got daily=%d monthly=%d", u.DailyCount, u.MonthlyCount)
	}
}

func TestConsume_NoTrialWhenDisabled(t *testing.T) {
	t.Parallel()

	p := Policy{FreeDailyLimit: 3}
	now := day(2026, 4, 10, 9)
	u := model.NewUserUsage("u1", now)

	tier, err := p.Consume(u, now)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if tier != TierFree || u.TrialStartDate != "" {
		t.Errorf("expected free tier without trial, got tier=%s start=%q", tier, u.TrialStartDate)
	}
}

func TestConsume_FreeDailyLimit(t *testing.T) {
	t.Parallel()

	now := day(2026, 4, 20, 9)
	u := model.NewUserUsage("u1", now)
	u.TrialStartDate = "2026-01-01"
	u.TrialExpired = true

	for i := 0; i < 3; i++ {
		if _, err := testPolicy.Consume(u, now); err != nil {
			t.Fatalf("consume %d: unexpected error %v", i+1, err)
		}
	}

	_, err := testPolicy.Consume(u, now)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ExceededError, got %T", err)
	}
	if exceeded.Period() != "daily" || exceeded.Limit != 3 {
		t.Errorf("unexpected exceeded error: %+v", exceeded)
	}
	if !exceeded.ResetsAt.Equal(day(2026, 4, 21, 0)) {
		t.Errorf("expected reset at next midnight, got %v", exceeded.ResetsAt)
	}
	if u.DailyCount != 3 {
		t.Errorf("rejected consume must not touch counters, daily=%d", u.DailyCount)
	}

	// Next day the allowance is back.
	if _, err := testPolicy.Consume(u, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("expected consume to succeed the next day, got %v", err)
	}
	if u.DailyCount != 1 {
		t.Errorf("expected daily count reset to 1, got %d", u.DailyCount)
	}
}

func TestConsume_PremiumMonthlyLimit(t *testing.T) {
	t.Parallel()

	p := Policy{FreeDailyLimit: 3, TrialDays: 5, PremiumMonthlyLimit: 2}
	now := day(2026, 4, 30, 22)
	u := model.NewUserUsage("u1", now)
	u.IsPremium = true

	for i := 0; i < 2; i++ {
		tier, err := p.Consume(u, now)
		if err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
		if tier != TierPremium {
			t.Fatalf("expected premium tier, got %s", tier)
		}
	}
	if u.TrialStartDate != "" {
		t.Error("premium users should not start a trial")
	}

	_, err := p.Consume(u, now)
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) || exceeded.Period() != "monthly" {
		t.Fatalf("expected monthly limit error, got %v", err)
	}
	if !exceeded.ResetsAt.Equal(day(2026, 5, 1, 0)) {
		t.Errorf("expected reset on the first of next month, got %v", exceeded.ResetsAt)
	}

	// New month.
	if _, err := p.Consume(u, day(2026, 5, 1, 1)); err != nil {
		t.Fatalf("expected consume in new month, got %v", err)
	}
	if u.MonthlyCount != 1 {
		t.Errorf("expected monthly counter reset, got %d", u.MonthlyCount)
	}
}

func TestConsume_PremiumUnlimited(t *testing.T) {
	t.Parallel()

	p := Policy{FreeDailyLimit: 3, PremiumMonthlyLimit: 0}
	now := day(2026, 4, 1, 0)
	u := model.NewUserUsage("u1", now)
	u.IsPremium = true

	for i := 0; i < 500; i++ {
		if _, err := p.Consume(u, now); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}
}

func TestTrialWindow(t *testing.T) {
	t.Parallel()

	u := &model.UserUsage{TrialStartDate: "2026-04-10"}

	tests := []struct {
		name string
		now  time.Time
		want Tier
	}{
		{"start day", day(2026, 4, 10, 12), TierTrial},
		{"fifth day", day(2026, 4, 14, 23), TierTrial},
		{"boundary midnight", day(2026, 4, 15, 0), TierTrial},
		{"sixth day", day(2026, 4, 15, 1), TierFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testPolicy.TierOf(u, tt.now); got != tt.want {
				t.Errorf("TierOf(%v) = %s, want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestNormalize_ExpiresTrialOnce(t *testing.T) {
	t.Parallel()

	u := &model.UserUsage{TrialStartDate: "2026-04-01", LastResetDate: "2026-04-01", LastMonthlyReset: "2026-04", DailyCount: 2, MonthlyCount: 9}
	testPolicy.Normalize(u, day(2026, 4, 20, 8))

	if !u.TrialExpired {
		t.Error("expected trial to be marked expired")
	}
	if u.DailyCount != 0 || u.LastResetDate != "2026-04-20" {
		t.Errorf("expected daily rollover, got count=%d date=%s", u.DailyCount, u.LastResetDate)
	}
	if u.MonthlyCount != 9 {
		t.Errorf("monthly counter must survive a day rollover, got %d", u.MonthlyCount)
	}

	// An expired trial never restarts.
	if _, err := testPolicy.Consume(u, day(2026, 4, 20, 9)); err != nil {
		t.Fatal(err)
	}
	if u.TrialStartDate != "2026-04-01" {
		t.Errorf("trial restarted: %q", u.TrialStartDate)
	}
}

func TestStatus_UnknownUser(t *testing.T) {
	t.Parallel()

	s := testPolicy.Status(nil, day(2026, 4, 10, 9))

	if s.Tier != TierFree || s.IsPremium {
		t.Errorf("expected free non-premium default, got %+v", s)
	}
	if s.RemainingFree == nil || *s.RemainingFree != 3 {
		t.Errorf("expected remainingFree 3, got %v", s.RemainingFree)
	}
	if s.TrialEndsAt != nil {
		t.Error("expected no trial end for an unknown user")
	}
}

func TestStatus_StaleCountersReadAsZero(t *testing.T) {
	t.Parallel()

	u := &model.UserUsage{
		UserID:           "u1",
		DailyCount:       3,
		LastResetDate:    "2026-04-09",
		LastMonthlyReset: "2026-04",
		MonthlyCount:     3,
		TrialExpired:     true,
	}

	s := testPolicy.Status(u, day(2026, 4, 10, 9))
	if s.DailyCount != 0 {
		t.Errorf("expected yesterday's count to read as 0, got %d", s.DailyCount)
	}
	if s.RemainingFree == nil || *s.RemainingFree != 3 {
		t.Errorf("expected 3 remaining, got %v", s.RemainingFree)
	}
	if u.DailyCount != 3 {
		t.Error("Status must not mutate its argument")
	}
}

func TestStatus_Premium(t *testing.T) {
	t.Parallel()

	now := day(2026, 4, 10, 9)
	u := model.NewUserUsage("u1", now)
	u.IsPremium = true
	u.MonthlyCount = 40

	s := testPolicy.Status(u, now)
	if s.Tier != TierPremium {
		t.Fatalf("expected premium, got %s", s.Tier)
	}
	if s.RemainingFree != nil {
		t.Errorf("expected nil remainingFree for premium, got %d", *s.RemainingFree)
	}
	if s.Limit != 100 || s.Remaining != 60 {
		t.Errorf("expected 60 of 100 remaining, got %d of %d", s.Remaining, s.Limit)
	}
}

func TestStatus_TrialReportsEnd(t *testing.T) {
	t.Parallel()

	now := day(2026, 4, 10, 9)
	u := model.NewUserUsage("u1", now)
	u.TrialStartDate = "2026-04-10"
	u.MonthlyCount = 7
	u.DailyCount = 7

	s := testPolicy.Status(u, now)
	if s.Tier != TierTrial {
		t.Fatalf("expected trial, got %s", s.Tier)
	}
	if s.TrialEndsAt == nil || !s.TrialEndsAt.Equal(day(2026, 4, 15, 0)) {
		t.Errorf("expected trial end 2026-04-15, got %v", s.TrialEndsAt)
	}
	if s.Remaining != 93 {
		t.Errorf("expected trial allowance remaining 93, got %d", s.Remaining)
	}
	if s.RemainingFree == nil || *s.RemainingFree != 0 {
		t.Errorf("expected free daily remaining 0, got %v", s.RemainingFree)
	}
}

func TestStatus_TrialRemainingFreeIsDailyFigure(t *testing.T) {
	t.Parallel()

	now := day(2026, 4, 10, 9)
	for _, p := range []Policy{testPolicy, {FreeDailyLimit: 3, TrialDays: 5}} {
		u := model.NewUserUsage("u1", now)
		for i := 0; i < 2; i++ {
			if _, err := p.Consume(u, now); err != nil {
				t.Fatal(err)
			}
		}

		s := p.Status(u, now)
		if s.Tier != TierTrial || s.IsPremium {
			t.Fatalf("expected non-premium trial, got tier=%s premium=%v", s.Tier, s.IsPremium)
		}
		if s.RemainingFree == nil {
			t.Fatalf("monthly limit %d: remainingFree is nil for a trial user", p.PremiumMonthlyLimit)
		}
		if *s.RemainingFree != 1 {
			t.Errorf("monthly limit %d: remainingFree = %d, want 1", p.PremiumMonthlyLimit, *s.RemainingFree)
		}
	}
}

func TestConsume_NoTrialForReturningUser(t *testing.T) {
	t.Parallel()

	april := day(2026, 4, 12, 9)
	u := model.NewUserUsage("u1", april)
	u.IsPremium = true
	ForfeitTrial(u)
	for i := 0; i < 100; i++ {
		if _, err := testPolicy.Consume(u, april); err != nil {
			t.Fatalf("premium consume %d: %v", i, err)
		}
	}

	u.IsPremium = false
	may := day(2026, 5, 20, 9)
	for i := 0; i < 3; i++ {
		tier, err := testPolicy.Consume(u, may)
		if err != nil {
			t.Fatalf("free consume %d: %v", i, err)
		}
		if tier != TierFree {
			t.Errorf("tier = %s, want free", tier)
		}
	}
	if _, err := testPolicy.Consume(u, may); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected daily limit after 3, got %v", err)
	}
	if u.TrialStartDate != "" {
		t.Errorf("trial started for a lapsed subscriber: %q", u.TrialStartDate)
	}
}

func TestConsume_NoTrialAfterPriorUse(t *testing.T) {
	t.Parallel()

	now := day(2026, 4, 10, 9)
	u := model.NewUserUsage("u1", now)
	u.TotalCount = 4

	tier, err := testPolicy.Consume(u, now)
	if err != nil {
		t.Fatal(err)
	}
	if tier != TierFree || u.TrialStartDate != "" {
		t.Errorf("expected free tier without trial, got tier=%s start=%q", tier, u.TrialStartDate)
	}
}

func TestRefund(t *testing.T) {
	t.Parallel()

	now := day(2026, 4, 10, 9)
	u := model.NewUserUsage("u1", now)

	if _, err := testPolicy.Consume(u, now); err != nil {
		t.Fatal(err)
	}
	if u.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", u.TotalCount)
	}
	testPolicy.Refund(u, now)
	if u.DailyCount != 0 || u.MonthlyCount != 0 || u.TotalCount != 0 {
		t.Errorf("expected counters back at 0, got daily=%d monthly=%d total=%d", u.DailyCount, u.MonthlyCount, u.TotalCount)
	}

	testPolicy.Refund(u, now)
	if u.DailyCount != 0 || u.MonthlyCount != 0 || u.TotalCount != 0 {
		t.Error("refund must not go below zero")
	}
}
