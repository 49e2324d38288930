package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/subscription"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/postnow/server/internal/shared/config"
	apperrors "github.com/postnow/server/internal/utils/errors"
)

// StripeProvider implements Provider for Stripe.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider creates a new Stripe provider.
func NewStripeProvider(cfg *config.StripeConfig) *StripeProvider {
	stripe.Key = cfg.SecretKey
	return &StripeProvider{
		webhookSecret: cfg.WebhookSecret,
	}
}

func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (*stripe.Event, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &event, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	mode := stripe.CheckoutSessionModeSubscription
	if params.OneTime {
		mode = stripe.CheckoutSessionModePayment
	}

	metadata := map[string]string{"user_id": params.UserID}
	if params.PlanID != "" {
		metadata["plan_id"] = params.PlanID
	}
	if params.Credits != "" {
		metadata["credits"] = params.Credits
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata:   metadata,
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	if !params.OneTime {
		sessionParams.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		}
	}

	s, err := session.New(sessionParams)
	if err != nil {
		return nil, apperrors.ExternalService("stripe", fmt.Errorf("create checkout session: %w", err))
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	c, err := customer.Get(customerID, nil)
	if err != nil {
		return nil, apperrors.ExternalService("stripe", fmt.Errorf("get customer: %w", err))
	}
	return &Customer{ID: c.ID, Email: c.Email}, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if _, err := subscription.Cancel(subscriptionID, nil); err != nil {
		return apperrors.ExternalService("stripe", fmt.Errorf("cancel subscription: %w", err))
	}
	return nil
}
