package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postnow/server/internal/module/credits"
)

// DefaultPlans returns the static plan catalog. Plans are inserted once and
// never overwritten, so price edits in the database survive restarts.
func DefaultPlans() []*Plan {
	return []*Plan{
		{
			ID:             "starter_monthly",
			Name:           "Starter",
			Interval:       credits.IntervalMonthly,
			Price:          decimal.RequireFromString("9.90"),
			MonthlyCredits: decimal.RequireFromString("50.00"),
			Features:       []string{"50 credits per month", "Idea generation", "Caption generation"},
			Active:         true,
			DisplayOrder:   1,
		},
		{
			ID:             "pro_monthly",
			Name:           "Pro",
			Interval:       credits.IntervalMonthly,
			Price:          decimal.RequireFromString("24.90"),
			MonthlyCredits: decimal.RequireFromString("150.00"),
			Features:       []string{"150 credits per month", "Idea generation", "Caption generation", "Priority support"},
			Active:         true,
			DisplayOrder:   2,
		},
		{
			ID:             "pro_yearly",
			Name:           "Pro Yearly",
			Interval:       credits.IntervalYearly,
			Price:          decimal.RequireFromString("249.00"),
			MonthlyCredits: decimal.RequireFromString("150.00"),
			Features:       []string{"150 credits per month", "Two months free"},
			Active:         true,
			DisplayOrder:   3,
		},
		{
			ID:             "lifetime",
			Name:           "Lifetime",
			Interval:       credits.IntervalLifetime,
			Price:          decimal.RequireFromString("399.00"),
			MonthlyCredits: decimal.RequireFromString("150.00"),
			Features:       []string{"150 credits per month", "Pay once, keep forever"},
			Active:         true,
			DisplayOrder:   4,
		},
	}
}

// SeedPlans inserts the default catalog, skipping plans that already exist.
func SeedPlans(ctx context.Context, db *gorm.DB) error {
	for _, plan := range DefaultPlans() {
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(plan).Error
		if err != nil {
			return fmt.Errorf("seed plan %s: %w", plan.ID, err)
		}
	}
	return nil
}
