package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postnow/server/internal/module/credits"
	"go.uber.org/zap"
)

// AuditLogger records subscription transitions for the audit trail. May be
// nil.
type AuditLogger interface {
	Record(ctx context.Context, actorID uuid.UUID, action, object string, details map[string]any) error
}

// ServiceInterface defines the billing service.
type ServiceInterface interface {
	ListPlans(ctx context.Context) ([]*Plan, error)
	GetPlan(ctx context.Context, planID string) (*Plan, error)
	GetPlanByStripePrice(ctx context.Context, stripePriceID string) (*Plan, error)

	// CurrentSubscription returns the user's active subscription, lazily
	// expiring it when its end date has passed. Returns nil when the user
	// has no usable subscription.
	CurrentSubscription(ctx context.Context, userID uuid.UUID) (*UserSubscription, error)

	// ActivateSubscription makes planID the user's single active plan.
	// Safe under webhook redelivery: an already-known provider
	// subscription id returns the existing row.
	ActivateSubscription(ctx context.Context, userID uuid.UUID, planID string, stripeSubID *string) (*UserSubscription, error)

	// SubscriptionByStripeID returns the subscription carrying the given
	// provider id regardless of status, or nil when unknown.
	SubscriptionByStripeID(ctx context.Context, stripeSubID string) (*UserSubscription, error)

	CancelSubscription(ctx context.Context, userID uuid.UUID) (*UserSubscription, error)
	CancelByStripeID(ctx context.Context, stripeSubID string) error

	// ChangePlan swaps the plan on an existing provider subscription in
	// place. Upgrading to a lifetime plan is rejected.
	ChangePlan(ctx context.Context, stripeSubID, newPlanID string) (*UserSubscription, error)

	// SyncFromProvider maps a provider-side subscription state onto the
	// local row. Trial counts as active; terminal payment states cancel.
	SyncFromProvider(ctx context.Context, stripeSubID string, providerStatus string, periodEnd *time.Time) error
}

// Service implements subscription state management.
type Service struct {
	repo   Repository
	audit  AuditLogger
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new billing service.
func NewService(repo Repository, audit AuditLogger, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) ListPlans(ctx context.Context) ([]*Plan, error) {
	return s.repo.ListActivePlans(ctx)
}

func (s *Service) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	return s.repo.GetPlan(ctx, planID)
}

func (s *Service) GetPlanByStripePrice(ctx context.Context, stripePriceID string) (*Plan, error) {
	return s.repo.GetPlanByStripePrice(ctx, stripePriceID)
}

func (s *Service) CurrentSubscription(ctx context.Context, userID uuid.UUID) (*UserSubscription, error) {
	sub, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	// Expiry is discovered on read; there is no background sweep.
	if sub.EndedBy(s.now()) {
		if err := s.repo.MarkExpired(ctx, sub.ID); err != nil {
			return nil, fmt.Errorf("mark expired: %w", err)
		}
		s.logger.Info("subscription expired",
			zap.String("user_id", userID.String()),
			zap.String("subscription_id", sub.ID.String()),
		)
		return nil, nil
	}

	return sub, nil
}

func (s *Service) ActivateSubscription(ctx context.Context, userID uuid.UUID, planID string, stripeSubID *string) (*UserSubscription, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanNotActive
	}

	now := s.now()
	sub := &UserSubscription{
		ID:                   uuid.New(),
		UserID:               userID,
		PlanID:               plan.ID,
		Status:               SubscriptionStatusActive,
		StartDate:            now,
		StripeSubscriptionID: stripeSubID,
	}

	result, created, err := s.repo.Activate(ctx, sub, now)
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	if !created {
		s.logger.Info("subscription activation replayed",
			zap.String("user_id", userID.String()),
			zap.String("subscription_id", result.ID.String()),
		)
		return result, nil
	}

	result.Plan = plan
	s.logger.Info("subscription activated",
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID),
	)
	s.recordAudit(ctx, userID, "subscription.activate", result.ID.String(), map[string]any{
		"plan_id": plan.ID,
	})
	return result, nil
}

func (s *Service) SubscriptionByStripeID(ctx context.Context, stripeSubID string) (*UserSubscription, error) {
	return s.repo.GetByStripeSubscriptionID(ctx, stripeSubID)
}

func (s *Service) CancelSubscription(ctx context.Context, userID uuid.UUID) (*UserSubscription, error) {
	sub, err := s.CurrentSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	s.cancel(sub)
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription cancelled",
		zap.String("user_id", userID.String()),
		zap.String("subscription_id", sub.ID.String()),
	)
	s.recordAudit(ctx, userID, "subscription.cancel", sub.ID.String(), nil)
	return sub, nil
}

func (s *Service) CancelByStripeID(ctx context.Context, stripeSubID string) error {
	sub, err := s.repo.GetByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}

	// Already terminal: cancellation is idempotent.
	if !sub.IsActive() {
		return nil
	}

	s.cancel(sub)
	if err := s.repo.Update(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription cancelled by provider",
		zap.String("stripe_subscription_id", stripeSubID),
	)
	s.recordAudit(ctx, sub.UserID, "subscription.cancel", sub.ID.String(), map[string]any{
		"source": "provider",
	})
	return nil
}

func (s *Service) ChangePlan(ctx context.Context, stripeSubID, newPlanID string) (*UserSubscription, error) {
	sub, err := s.repo.GetByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	if !sub.IsActive() {
		return nil, ErrSubscriptionNotFound
	}

	plan, err := s.repo.GetPlan(ctx, newPlanID)
	if err != nil {
		return nil, err
	}
	// Recurring subscriptions never silently convert to lifetime; the
	// user must cancel first and purchase lifetime explicitly.
	if plan.IsLifetime() {
		return nil, ErrLifetimeUpgrade
	}

	if sub.PlanID == plan.ID {
		return sub, nil
	}

	oldPlanID := sub.PlanID
	sub.PlanID = plan.ID
	sub.Plan = plan
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription plan changed",
		zap.String("stripe_subscription_id", stripeSubID),
		zap.String("from", oldPlanID),
		zap.String("to", plan.ID),
	)
	s.recordAudit(ctx, sub.UserID, "subscription.change_plan", sub.ID.String(), map[string]any{
		"from": oldPlanID,
		"to":   plan.ID,
	})
	return sub, nil
}

func (s *Service) SyncFromProvider(ctx context.Context, stripeSubID string, providerStatus string, periodEnd *time.Time) error {
	sub, err := s.repo.GetByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}

	switch mapProviderStatus(providerStatus) {
	case SubscriptionStatusActive:
		if !sub.IsActive() {
			// Terminal local states only move forward; a renewal shows
			// up as a fresh activation, not a resurrection.
			return nil
		}
		sub.EndDate = periodEnd
		return s.repo.Update(ctx, sub)
	case SubscriptionStatusCancelled:
		if !sub.IsActive() {
			return nil
		}
		s.cancel(sub)
		return s.repo.Update(ctx, sub)
	default:
		return nil
	}
}

// ActiveSubscription implements credits.SubscriptionSource.
func (s *Service) ActiveSubscription(ctx context.Context, userID uuid.UUID) (*credits.SubscriptionInfo, error) {
	sub, err := s.CurrentSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Plan == nil {
		return nil, nil
	}
	return &credits.SubscriptionInfo{
		Interval:       sub.Plan.Interval,
		MonthlyCredits: sub.Plan.MonthlyCredits,
	}, nil
}

func (s *Service) cancel(sub *UserSubscription) {
	sub.Status = SubscriptionStatusCancelled
	if sub.EndDate == nil {
		end := s.now()
		sub.EndDate = &end
	}
}

// mapProviderStatus maps provider-side subscription states down to the local
// three-state machine. Trial access is usable access; incomplete or unpaid
// states mean no access.
func mapProviderStatus(providerStatus string) SubscriptionStatus {
	switch providerStatus {
	case "active", "trialing":
		return SubscriptionStatusActive
	case "canceled", "unpaid", "incomplete", "incomplete_expired", "past_due":
		return SubscriptionStatusCancelled
	default:
		return SubscriptionStatus(providerStatus)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action, object string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actorID, action, object, details); err != nil {
		s.logger.Warn("audit record failed", zap.Error(err))
	}
}

var _ credits.SubscriptionSource = (*Service)(nil)
