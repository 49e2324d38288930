package payment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/postnow/server/internal/module/billing"
	"github.com/postnow/server/internal/module/credits"
	"github.com/postnow/server/internal/shared/config"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) RecordEvent(ctx context.Context, event *WebhookEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkProcessed(ctx context.Context, eventID string, processErr error, unresolved bool) error {
	args := m.Called(ctx, eventID, processErr, unresolved)
	return args.Error(0)
}

func (m *MockRepository) ListUnresolved(ctx context.Context, limit int) ([]*WebhookEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*WebhookEvent), args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) VerifyWebhook(payload []byte, signature string) (*stripe.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Event), args.Error(1)
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *MockProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Customer), args.Error(1)
}

func (m *MockProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) ListPlans(ctx context.Context) ([]*billing.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Plan), args.Error(1)
}

func (m *MockBillingService) GetPlan(ctx context.Context, planID string) (*billing.Plan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Plan), args.Error(1)
}

func (m *MockBillingService) GetPlanByStripePrice(ctx context.Context, stripePriceID string) (*billing.Plan, error) {
	args := m.Called(ctx, stripePriceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Plan), args.Error(1)
}

func (m *MockBillingService) CurrentSubscription(ctx context.Context, userID uuid.UUID) (*billing.UserSubscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UserSubscription), args.Error(1)
}

func (m *MockBillingService) ActivateSubscription(ctx context.Context, userID uuid.UUID, planID string, stripeSubID *string) (*billing.UserSubscription, error) {
	args := m.Called(ctx, userID, planID, stripeSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UserSubscription), args.Error(1)
}

func (m *MockBillingService) SubscriptionByStripeID(ctx context.Context, stripeSubID string) (*billing.UserSubscription, error) {
	args := m.Called(ctx, stripeSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UserSubscription), args.Error(1)
}

func (m *MockBillingService) CancelSubscription(ctx context.Context, userID uuid.UUID) (*billing.UserSubscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UserSubscription), args.Error(1)
}

func (m *MockBillingService) CancelByStripeID(ctx context.Context, stripeSubID string) error {
	args := m.Called(ctx, stripeSubID)
	return args.Error(0)
}

func (m *MockBillingService) ChangePlan(ctx context.Context, stripeSubID, newPlanID string) (*billing.UserSubscription, error) {
	args := m.Called(ctx, stripeSubID, newPlanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UserSubscription), args.Error(1)
}

func (m *MockBillingService) SyncFromProvider(ctx context.Context, stripeSubID string, providerStatus string, periodEnd *time.Time) error {
	args := m.Called(ctx, stripeSubID, providerStatus, periodEnd)
	return args.Error(0)
}

type MockCreditsService struct {
	mock.Mock
}

func (m *MockCreditsService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockCreditsService) GetCredits(ctx context.Context, userID uuid.UUID) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) HasSufficientCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockCreditsService) AddCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType credits.TransactionType, meta credits.Metadata) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID, amount, txType, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) DeductCreditsForOperation(ctx context.Context, userID uuid.UUID, operationType string, meta credits.Metadata) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID, operationType, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) RefundOperation(ctx context.Context, userID uuid.UUID, operationType string, meta credits.Metadata) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID, operationType, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*credits.CreditTransaction, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*credits.CreditTransaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockCreditsService) ReconcileIfDue(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCreditsService) OperationPrice(operationType string) (decimal.Decimal, error) {
	args := m.Called(operationType)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) FindIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type serviceMocks struct {
	repo     *MockRepository
	provider *MockProvider
	billing  *MockBillingService
	credits  *MockCreditsService
	users    *MockUserDirectory
}

func newTestService() (*Service, *serviceMocks) {
	m := &serviceMocks{
		repo:     new(MockRepository),
		provider: new(MockProvider),
		billing:  new(MockBillingService),
		credits:  new(MockCreditsService),
		users:    new(MockUserDirectory),
	}
	svc := NewService(m.repo, m.provider, m.billing, m.credits, m.users, &config.StripeConfig{
		SuccessURL: "https://app.example.com/success",
		CancelURL:  "https://app.example.com/cancel",
	}, nil, zap.NewNop())
	return svc, m
}

func stripeEvent(id, eventType string, object any) *stripe.Event {
	raw, _ := json.Marshal(object)
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventIdempotency(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate delivery is acknowledged without dispatch", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_1", "customer.subscription.deleted", map[string]any{"id": "sub_1"})

		m.repo.On("RecordEvent", ctx, mock.MatchedBy(func(e *WebhookEvent) bool {
			return e.EventID == "evt_1"
		})).Return(false, nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusDuplicate, status)
		m.billing.AssertNotCalled(t, "CancelByStripeID", mock.Anything, mock.Anything)
		m.repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown event type is acknowledged and ignored", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_2", "product.created", map[string]any{"id": "prod_1"})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_2", nil, false).Return(nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusIgnored, status)
	})
}

func TestHandleCheckoutCompleted(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("metadata user id activates subscription and reconciles", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_3", "checkout.session.completed", map[string]any{
			"id":           "cs_1",
			"mode":         "subscription",
			"metadata":     map[string]string{"user_id": userID.String(), "plan_id": "pro"},
			"subscription": map[string]any{"id": "sub_1"},
		})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_3", nil, false).Return(nil)
		m.billing.On("ActivateSubscription", ctx, userID, "pro", mock.MatchedBy(func(id *string) bool {
			return id != nil && *id == "sub_1"
		})).Return(&billing.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: "pro"}, nil)
		m.credits.On("ReconcileIfDue", ctx, userID).Return(nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusProcessed, status)
		m.billing.AssertExpectations(t)
		m.credits.AssertExpectations(t)
	})

	t.Run("missing metadata falls back to email lookup", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_4", "checkout.session.completed", map[string]any{
			"id":               "cs_2",
			"mode":             "subscription",
			"metadata":         map[string]string{"plan_id": "pro"},
			"customer_details": map[string]any{"email": "maya@example.com"},
			"subscription":     map[string]any{"id": "sub_2"},
		})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_4", nil, false).Return(nil)
		m.users.On("FindIDByEmail", ctx, "maya@example.com").Return(userID, nil)
		m.billing.On("ActivateSubscription", ctx, userID, "pro", mock.Anything).
			Return(&billing.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: "pro"}, nil)
		m.credits.On("ReconcileIfDue", ctx, userID).Return(nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusProcessed, status)
		m.users.AssertExpectations(t)
	})

	t.Run("unresolvable user is acknowledged but flagged", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_5", "checkout.session.completed", map[string]any{
			"id":               "cs_3",
			"mode":             "subscription",
			"metadata":         map[string]string{"plan_id": "pro"},
			"customer_details": map[string]any{"email": "ghost@example.com"},
		})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_5", mock.MatchedBy(func(err error) bool {
			return err != nil
		}), true).Return(nil)
		m.users.On("FindIDByEmail", ctx, "ghost@example.com").Return(uuid.Nil, nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusUnresolved, status)
		m.billing.AssertNotCalled(t, "ActivateSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.repo.AssertExpectations(t)
	})
}

func TestHandleSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("deleted cancels local subscription", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_6", "customer.subscription.deleted", map[string]any{"id": "sub_1"})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_6", nil, false).Return(nil)
		m.billing.On("CancelByStripeID", ctx, "sub_1").Return(nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusProcessed, status)
		m.billing.AssertExpectations(t)
	})

	t.Run("deleted for unknown subscription is flagged unresolved", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_7", "customer.subscription.deleted", map[string]any{"id": "sub_missing"})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_7", mock.Anything, true).Return(nil)
		m.billing.On("CancelByStripeID", ctx, "sub_missing").Return(billing.ErrSubscriptionNotFound)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusUnresolved, status)
	})

	t.Run("updated syncs provider status", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_8", "customer.subscription.updated", map[string]any{
			"id":     "sub_1",
			"status": "past_due",
		})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_8", nil, false).Return(nil)
		m.billing.On("SubscriptionByStripeID", ctx, "sub_1").
			Return(&billing.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: "pro"}, nil)
		m.billing.On("SyncFromProvider", ctx, "sub_1", "past_due", (*time.Time)(nil)).Return(nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusProcessed, status)
		m.billing.AssertExpectations(t)
	})
}

func TestHandleInvoicePaymentSucceeded(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("renewal payment reconciles the cycle", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_9", "invoice.payment_succeeded", map[string]any{
			"id":           "in_1",
			"subscription": map[string]any{"id": "sub_1"},
		})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_9", nil, false).Return(nil)
		m.billing.On("SubscriptionByStripeID", ctx, "sub_1").
			Return(&billing.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: "pro"}, nil)
		m.credits.On("ReconcileIfDue", ctx, userID).Return(nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusProcessed, status)
		m.credits.AssertExpectations(t)
	})

	t.Run("invoice without subscription is a no-op", func(t *testing.T) {
		svc, m := newTestService()
		event := stripeEvent("evt_10", "invoice.payment_succeeded", map[string]any{"id": "in_2"})

		m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
		m.repo.On("MarkProcessed", ctx, "evt_10", nil, false).Return(nil)

		status := svc.HandleEvent(ctx, event, []byte("{}"))
		assert.Equal(t, StatusProcessed, status)
		m.credits.AssertNotCalled(t, "ReconcileIfDue", mock.Anything, mock.Anything)
	})
}

func TestCreateCheckout(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("builds session from plan", func(t *testing.T) {
		svc, m := newTestService()

		plan := &billing.Plan{ID: "pro", StripePriceID: "price_123", Interval: credits.IntervalMonthly, Active: true}
		m.billing.On("GetPlan", ctx, "pro").Return(plan, nil)
		m.provider.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p CheckoutParams) bool {
			return p.UserID == userID.String() &&
				p.PriceID == "price_123" &&
				p.PlanID == "pro" &&
				!p.OneTime
		})).Return(&CheckoutSession{ID: "cs_1", URL: "https://checkout.example.com/cs_1"}, nil)

		session, err := svc.CreateCheckout(ctx, userID, "maya@example.com", "pro")
		assert.NoError(t, err)
		assert.Equal(t, "cs_1", session.ID)
	})

	t.Run("lifetime plan is a one-time payment", func(t *testing.T) {
		svc, m := newTestService()

		plan := &billing.Plan{ID: "lifetime", StripePriceID: "price_life", Interval: credits.IntervalLifetime, Active: true}
		m.billing.On("GetPlan", ctx, "lifetime").Return(plan, nil)
		m.provider.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p CheckoutParams) bool {
			return p.OneTime
		})).Return(&CheckoutSession{ID: "cs_2"}, nil)

		_, err := svc.CreateCheckout(ctx, userID, "", "lifetime")
		assert.NoError(t, err)
	})

	t.Run("inactive plan rejected", func(t *testing.T) {
		svc, m := newTestService()

		plan := &billing.Plan{ID: "legacy", Active: false}
		m.billing.On("GetPlan", ctx, "legacy").Return(plan, nil)

		_, err := svc.CreateCheckout(ctx, userID, "", "legacy")
		assert.ErrorIs(t, err, billing.ErrPlanNotActive)
		m.provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})
}

func TestCreatePackCheckout(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("pack checkout is a one-time payment carrying the amount", func(t *testing.T) {
		svc, m := newTestService()

		m.provider.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p CheckoutParams) bool {
			return p.OneTime && p.Credits == "60" && p.PlanID == ""
		})).Return(&CheckoutSession{ID: "cs_pack"}, nil)

		session, err := svc.CreatePackCheckout(ctx, userID, "maya@example.com", "pack_medium")
		require.NoError(t, err)
		assert.Equal(t, "cs_pack", session.ID)
	})

	t.Run("unknown pack rejected", func(t *testing.T) {
		svc, m := newTestService()

		_, err := svc.CreatePackCheckout(ctx, userID, "", "pack_enormous")
		assert.ErrorIs(t, err, ErrPackNotFound)
		m.provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})
}

func TestHandleCheckoutCompletedCreditPack(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	svc, m := newTestService()
	event := stripeEvent("evt_pack", "checkout.session.completed", map[string]any{
		"id": "cs_pack",
		"metadata": map[string]string{
			"user_id": userID.String(),
			"credits": "60.00",
		},
		"payment_intent": map[string]any{"id": "pi_1"},
	})

	m.repo.On("RecordEvent", ctx, mock.Anything).Return(true, nil)
	m.credits.On("AddCredits", ctx, userID, decimal.RequireFromString("60.00"), credits.TransactionTypePurchase, mock.MatchedBy(func(meta credits.Metadata) bool {
		return meta.StripePaymentIntentID == "pi_1"
	})).Return(&credits.UserCredits{}, nil)
	m.repo.On("MarkProcessed", ctx, "evt_pack", nil, false).Return(nil)

	status := svc.HandleEvent(ctx, event, []byte("{}"))
	assert.Equal(t, StatusProcessed, status)
	m.billing.AssertNotCalled(t, "ActivateSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.credits.AssertExpectations(t)
}
