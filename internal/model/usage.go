package model

import "time"

// Date layouts used by the usage counters. Both are UTC.
const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Subscription statuses that grant premium access.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
)

// UserUsage tracks quota counters and subscription state for one client user id.
type UserUsage struct {
	UserID               string     `json:"userId"`
	DailyCount           int        `json:"dailyCount"`
	LastResetDate        string     `json:"lastResetDate"`
	MonthlyCount         int        `json:"monthlyCount"`
	LastMonthlyReset     string     `json:"lastMonthlyReset"`
	TotalCount           int        `json:"totalCount"`
	IsPremium            bool       `json:"isPremium"`
	TrialStartDate       string     `json:"trialStartDate,omitempty"`
	TrialExpired         bool       `json:"trialExpired"`
	StripeCustomerID     string     `json:"-"`
	StripeSubscriptionID string     `json:"-"`
	SubscriptionStatus   string     `json:"subscriptionStatus,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// NewUserUsage returns an empty usage record dated at now.
func NewUserUsage(userID string, now time.Time) *UserUsage {
	now = now.UTC()
	return &UserUsage{
		UserID:           userID,
		LastResetDate:    now.Format(DayLayout),
		LastMonthlyReset: now.Format(MonthLayout),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy.
func (u *UserUsage) Clone() *UserUsage {
	c := *u
	if u.CurrentPeriodEnd != nil {
		t := *u.CurrentPeriodEnd
		c.CurrentPeriodEnd = &t
	}
	return &c
}

// HasSubscription reports whether a Stripe subscription is attached.
func (u *UserUsage) HasSubscription() bool {
	return u.StripeSubscriptionID != ""
}

// IsPremiumStatus reports whether a Stripe subscription status grants premium.
func IsPremiumStatus(status string) bool {
	return status == SubscriptionActive || status == SubscriptionTrialing
}
