package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines persistence for plans and subscriptions.
type Repository interface {
	ListActivePlans(ctx context.Context) ([]*Plan, error)
	GetPlan(ctx context.Context, planID string) (*Plan, error)
	GetPlanByStripePrice(ctx context.Context, stripePriceID string) (*Plan, error)

	// GetActiveSubscription returns the user's active subscription with its
	// plan preloaded, or nil if none exists.
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*UserSubscription, error)

	// GetByStripeSubscriptionID returns the subscription with the given
	// provider id regardless of status, or nil.
	GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*UserSubscription, error)

	// Activate inserts sub as the user's single active subscription. Any
	// prior active rows are cancelled in the same transaction, serialized
	// by a row lock over the user's subscriptions. When a row with the
	// same provider subscription id already exists the call is a no-op
	// returning that row with created=false.
	Activate(ctx context.Context, sub *UserSubscription, now time.Time) (result *UserSubscription, created bool, err error)

	Update(ctx context.Context, sub *UserSubscription) error

	// MarkExpired moves an active subscription to expired.
	MarkExpired(ctx context.Context, subID uuid.UUID) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed billing repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListActivePlans(ctx context.Context) ([]*Plan, error) {
	var plans []*Plan
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("display_order ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *gormRepository) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	var plan Plan
	err := r.db.WithContext(ctx).First(&plan, "id = ?", planID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetPlanByStripePrice(ctx context.Context, stripePriceID string) (*Plan, error) {
	var plan Plan
	err := r.db.WithContext(ctx).First(&plan, "stripe_price_id = ?", stripePriceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*UserSubscription, error) {
	var sub UserSubscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		First(&sub, "user_id = ? AND status = ?", userID, SubscriptionStatusActive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*UserSubscription, error) {
	var sub UserSubscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		First(&sub, "stripe_subscription_id = ?", stripeSubID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) Activate(ctx context.Context, sub *UserSubscription, now time.Time) (*UserSubscription, bool, error) {
	var result *UserSubscription
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize concurrent activations and cancellations for this
		// user on the existing subscription rows.
		var existing []*UserSubscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", sub.UserID, SubscriptionStatusActive).
			Find(&existing).Error; err != nil {
			return fmt.Errorf("lock subscriptions: %w", err)
		}

		// Redelivered webhook: the provider subscription is already known.
		if sub.StripeSubscriptionID != nil {
			var dup UserSubscription
			err := tx.First(&dup, "stripe_subscription_id = ?", *sub.StripeSubscriptionID).Error
			if err == nil {
				result = &dup
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		for _, prior := range existing {
			prior.Status = SubscriptionStatusCancelled
			if prior.EndDate == nil {
				end := now
				prior.EndDate = &end
			}
			if err := tx.Save(prior).Error; err != nil {
				return fmt.Errorf("cancel prior subscription: %w", err)
			}
		}

		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		result = sub
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (r *gormRepository) Update(ctx context.Context, sub *UserSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *gormRepository) MarkExpired(ctx context.Context, subID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&UserSubscription{}).
		Where("id = ? AND status = ?", subID, SubscriptionStatusActive).
		Update("status", SubscriptionStatusExpired).Error
}
