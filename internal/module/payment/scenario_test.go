package payment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/postnow/server/internal/module/billing"
	"github.com/postnow/server/internal/module/credits"
	"github.com/postnow/server/internal/shared/config"
)

// In-memory fakes driving the full checkout-to-deduction flow through the
// real billing, credits and payment services.

type fakeBillingRepo struct {
	plans map[string]*billing.Plan
	subs  []*billing.UserSubscription
}

func (r *fakeBillingRepo) ListActivePlans(ctx context.Context) ([]*billing.Plan, error) {
	var out []*billing.Plan
	for _, p := range r.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeBillingRepo) GetPlan(ctx context.Context, planID string) (*billing.Plan, error) {
	p, ok := r.plans[planID]
	if !ok {
		return nil, billing.ErrPlanNotFound
	}
	return p, nil
}

func (r *fakeBillingRepo) GetPlanByStripePrice(ctx context.Context, stripePriceID string) (*billing.Plan, error) {
	for _, p := range r.plans {
		if p.StripePriceID == stripePriceID {
			return p, nil
		}
	}
	return nil, billing.ErrPlanNotFound
}

func (r *fakeBillingRepo) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*billing.UserSubscription, error) {
	for _, s := range r.subs {
		if s.UserID == userID && s.Status == billing.SubscriptionStatusActive {
			s.Plan = r.plans[s.PlanID]
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeBillingRepo) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*billing.UserSubscription, error) {
	for _, s := range r.subs {
		if s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == stripeSubID {
			s.Plan = r.plans[s.PlanID]
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeBillingRepo) Activate(ctx context.Context, sub *billing.UserSubscription, now time.Time) (*billing.UserSubscription, bool, error) {
	if sub.StripeSubscriptionID != nil {
		for _, s := range r.subs {
			if s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == *sub.StripeSubscriptionID {
				return s, false, nil
			}
		}
	}
	for _, s := range r.subs {
		if s.UserID == sub.UserID && s.Status == billing.SubscriptionStatusActive {
			s.Status = billing.SubscriptionStatusCancelled
			end := now
			s.EndDate = &end
		}
	}
	r.subs = append(r.subs, sub)
	return sub, true, nil
}

func (r *fakeBillingRepo) Update(ctx context.Context, sub *billing.UserSubscription) error {
	return nil
}

func (r *fakeBillingRepo) MarkExpired(ctx context.Context, subID uuid.UUID) error {
	for _, s := range r.subs {
		if s.ID == subID && s.Status == billing.SubscriptionStatusActive {
			s.Status = billing.SubscriptionStatusExpired
		}
	}
	return nil
}

type fakeCreditsRepo struct {
	rows   map[uuid.UUID]*credits.UserCredits
	ledger []*credits.CreditTransaction
}

func (r *fakeCreditsRepo) row(userID uuid.UUID) *credits.UserCredits {
	uc, ok := r.rows[userID]
	if !ok {
		uc = &credits.UserCredits{ID: uuid.New(), UserID: userID}
		r.rows[userID] = uc
	}
	return uc
}

func (r *fakeCreditsRepo) GetCredits(ctx context.Context, userID uuid.UUID) (*credits.UserCredits, error) {
	uc, ok := r.rows[userID]
	if !ok {
		return nil, nil
	}
	return uc, nil
}

func (r *fakeCreditsRepo) SumTransactions(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range r.ledger {
		if tx.UserID == userID {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (r *fakeCreditsRepo) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*credits.CreditTransaction, int64, error) {
	var out []*credits.CreditTransaction
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if r.ledger[i].UserID == userID {
			out = append(out, r.ledger[i])
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeCreditsRepo) Credit(ctx context.Context, entry *credits.CreditTransaction) (*credits.UserCredits, error) {
	uc := r.row(entry.UserID)
	uc.Balance = uc.Balance.Add(entry.Amount)
	r.ledger = append(r.ledger, entry)
	return uc, nil
}

func (r *fakeCreditsRepo) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, meta credits.Metadata) (*credits.UserCredits, error) {
	uc := r.row(userID)
	if uc.Balance.LessThan(amount) {
		return nil, credits.ErrInsufficientCredits
	}
	uc.Balance = uc.Balance.Sub(amount)
	uc.MonthlyCreditsUsed = uc.MonthlyCreditsUsed.Add(amount)
	r.ledger = append(r.ledger, &credits.CreditTransaction{
		ID:              uuid.New(),
		UserID:          userID,
		Amount:          amount.Neg(),
		TransactionType: credits.TransactionTypeUsage,
		Description:     meta.Description,
	})
	return uc, nil
}

func (r *fakeCreditsRepo) ResetCycle(ctx context.Context, userID uuid.UUID, interval credits.PlanInterval, allocation decimal.Decimal, now time.Time) (*credits.UserCredits, bool, error) {
	uc := r.row(userID)
	if !credits.ShouldReset(interval, uc.LastCreditReset, now) {
		return uc, false, nil
	}
	r.ledger = append(r.ledger, uc.ApplyCycleReset(allocation, now)...)
	return uc, true, nil
}

type fakePaymentRepo struct {
	events map[string]*WebhookEvent
}

func (r *fakePaymentRepo) RecordEvent(ctx context.Context, event *WebhookEvent) (bool, error) {
	if _, ok := r.events[event.EventID]; ok {
		return false, nil
	}
	r.events[event.EventID] = event
	return true, nil
}

func (r *fakePaymentRepo) MarkProcessed(ctx context.Context, eventID string, processErr error, unresolved bool) error {
	if e, ok := r.events[eventID]; ok {
		e.Processed = true
		e.Unresolved = unresolved
		if processErr != nil {
			e.Error = processErr.Error()
		}
	}
	return nil
}

func (r *fakePaymentRepo) ListUnresolved(ctx context.Context, limit int) ([]*WebhookEvent, error) {
	var out []*WebhookEvent
	for _, e := range r.events {
		if e.Unresolved {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubProvider struct{}

func (stubProvider) VerifyWebhook(payload []byte, signature string) (*stripe.Event, error) {
	return nil, nil
}

func (stubProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	return &CheckoutSession{ID: "cs_stub"}, nil
}

func (stubProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	return &Customer{ID: customerID}, nil
}

func (stubProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return nil
}

type staticDirectory map[string]uuid.UUID

func (d staticDirectory) FindIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	return d[email], nil
}

func TestCheckoutToDeductionScenario(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	billingRepo := &fakeBillingRepo{
		plans: map[string]*billing.Plan{
			"monthly": {
				ID:             "monthly",
				Name:           "Monthly",
				Interval:       credits.IntervalMonthly,
				Price:          decimal.NewFromInt(29),
				MonthlyCredits: decimal.NewFromInt(100),
				Active:         true,
			},
		},
	}
	creditsRepo := &fakeCreditsRepo{rows: map[uuid.UUID]*credits.UserCredits{}}
	paymentRepo := &fakePaymentRepo{events: map[string]*WebhookEvent{}}

	billingSvc := billing.NewService(billingRepo, nil, zap.NewNop())
	prices, err := credits.NewPriceTable(map[string]string{"image_generation": "0.23"})
	require.NoError(t, err)
	creditsSvc := credits.NewService(creditsRepo, prices, billingSvc, nil, nil, zap.NewNop())
	paymentSvc := NewService(paymentRepo, stubProvider{}, billingSvc, creditsSvc, staticDirectory{}, &config.StripeConfig{}, nil, zap.NewNop())

	checkout := stripeEvent("evt_checkout_1", "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"mode":         "subscription",
		"metadata":     map[string]string{"user_id": userID.String(), "plan_id": "monthly"},
		"subscription": map[string]any{"id": "sub_1"},
	})

	status := paymentSvc.HandleEvent(ctx, checkout, []byte("{}"))
	require.Equal(t, StatusProcessed, status)

	// First cycle allocation granted, one active subscription.
	balance, err := creditsSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "balance = %s", balance)

	sub, err := billingSvc.CurrentSubscription(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "monthly", sub.PlanID)

	// Redelivery of the same event changes nothing.
	status = paymentSvc.HandleEvent(ctx, checkout, []byte("{}"))
	assert.Equal(t, StatusDuplicate, status)

	balance, err = creditsSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	// A duplicated subscription.created under a fresh event id still
	// yields exactly one subscription row.
	dup := stripeEvent("evt_subcreated_1", "customer.subscription.created", map[string]any{
		"id":       "sub_1",
		"status":   "active",
		"metadata": map[string]string{"user_id": userID.String(), "plan_id": "monthly"},
	})
	status = paymentSvc.HandleEvent(ctx, dup, []byte("{}"))
	require.Equal(t, StatusProcessed, status)
	assert.Len(t, billingRepo.subs, 1)

	// Fixed-price deduction.
	uc, err := creditsSvc.DeductCreditsForOperation(ctx, userID, "image_generation", credits.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "99.77", uc.Balance.String())

	txs, _, err := creditsSvc.ListTransactions(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	assert.Equal(t, credits.TransactionTypeUsage, txs[0].TransactionType)
	assert.Equal(t, "-0.23", txs[0].Amount.String())

	// The cached balance matches the ledger sum.
	sum, err := creditsRepo.SumTransactions(ctx, userID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(uc.Balance), "ledger sum %s vs balance %s", sum, uc.Balance)
}
