package payment

import (
	"context"

	"github.com/stripe/stripe-go/v76"
)

// CheckoutParams describes a checkout session to create.
type CheckoutParams struct {
	UserID        string
	CustomerEmail string
	PriceID       string
	PlanID        string
	// Credits marks a credit-pack purchase; the webhook grants this
	// amount instead of activating a plan.
	Credits string
	// Lifetime plans and credit packs are one-time payments; everything
	// else is a recurring subscription.
	OneTime    bool
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider-side session handed back to the client.
type CheckoutSession struct {
	ID  string
	URL string
}

// Customer is the provider-side customer record.
type Customer struct {
	ID    string
	Email string
}

// Provider abstracts the payment gateway.
type Provider interface {
	// VerifyWebhook checks the payload signature and decodes the event
	// envelope. An unverified payload is never decoded into an event.
	VerifyWebhook(payload []byte, signature string) (*stripe.Event, error)

	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}
