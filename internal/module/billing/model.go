package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/postnow/server/internal/module/credits"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
// Transitions only move forward: a cancelled or expired row is never
// resurrected; renewals create fresh rows.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Plan represents a subscription plan from the static catalog.
type Plan struct {
	ID             string               `json:"id" gorm:"primaryKey"`
	Name           string               `json:"name" gorm:"not null"`
	Interval       credits.PlanInterval `json:"interval" gorm:"not null"`
	Price          decimal.Decimal      `json:"price" gorm:"type:decimal(15,2);not null"`
	StripePriceID  string               `json:"-" gorm:"index"`
	MonthlyCredits decimal.Decimal      `json:"monthly_credits" gorm:"type:decimal(15,2);not null;default:0"`
	Features       pq.StringArray       `json:"features" gorm:"type:text[]"`
	Active         bool                 `json:"active" gorm:"default:true"`
	DisplayOrder   int                  `json:"display_order" gorm:"default:0"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// TableName returns the database table name.
func (Plan) TableName() string {
	return "plans"
}

// IsLifetime returns true for one-time lifetime plans.
func (p *Plan) IsLifetime() bool {
	return p.Interval == credits.IntervalLifetime
}

// UserSubscription links a user to a plan. At most one row per user is
// active at any time.
type UserSubscription struct {
	ID                   uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID               uuid.UUID          `json:"user_id" gorm:"type:uuid;not null;index:idx_user_subscriptions_user_status"`
	PlanID               string             `json:"plan_id" gorm:"not null"`
	Plan                 *Plan              `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
	Status               SubscriptionStatus `json:"status" gorm:"not null;index:idx_user_subscriptions_user_status"`
	StartDate            time.Time          `json:"start_date" gorm:"not null"`
	EndDate              *time.Time         `json:"end_date,omitempty"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id,omitempty" gorm:"uniqueIndex"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// TableName returns the database table name.
func (UserSubscription) TableName() string {
	return "user_subscriptions"
}

// IsActive returns true if the subscription is active.
func (s *UserSubscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// EndedBy reports whether the subscription's end date has passed at t.
func (s *UserSubscription) EndedBy(t time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(t)
}
