package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/postnow/server/internal/module/billing"
	"github.com/postnow/server/internal/module/credits"
	"github.com/postnow/server/internal/shared/config"
	"github.com/postnow/server/internal/utils/metrics"
)

// UserDirectory resolves users by email for webhook events that arrive
// without usable metadata. Implemented by the user module.
type UserDirectory interface {
	// FindIDByEmail returns uuid.Nil with a nil error when no user
	// matches.
	FindIDByEmail(ctx context.Context, email string) (uuid.UUID, error)
}

// DispatchStatus classifies the outcome of a webhook delivery.
type DispatchStatus string

const (
	StatusProcessed  DispatchStatus = "processed"
	StatusDuplicate  DispatchStatus = "duplicate"
	StatusIgnored    DispatchStatus = "ignored"
	StatusUnresolved DispatchStatus = "unresolved"
	StatusFailed     DispatchStatus = "failed"
)

// ServiceInterface defines the payment service.
type ServiceInterface interface {
	// VerifyWebhook authenticates and decodes a raw webhook payload.
	VerifyWebhook(payload []byte, signature string) (*stripe.Event, error)

	// HandleEvent dispatches a verified event. Business failures are
	// reported in the returned status, not as an error; the sender gets
	// an acknowledgement either way so it stops redelivering.
	HandleEvent(ctx context.Context, event *stripe.Event, payload []byte) DispatchStatus

	// CreateCheckout opens a provider checkout session for the plan.
	CreateCheckout(ctx context.Context, userID uuid.UUID, email, planID string) (*CheckoutSession, error)

	// CreatePackCheckout opens a one-time checkout for a credit pack.
	CreatePackCheckout(ctx context.Context, userID uuid.UUID, email, packID string) (*CheckoutSession, error)

	// ListUnresolved returns events flagged for manual reconciliation.
	ListUnresolved(ctx context.Context, limit int) ([]*WebhookEvent, error)
}

// Service wires webhook events into the subscription state machine and the
// credit ledger.
type Service struct {
	repo     Repository
	provider Provider
	billing  billing.ServiceInterface
	credits  credits.ServiceInterface
	users    UserDirectory
	cfg      *config.StripeConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	provider Provider,
	billingService billing.ServiceInterface,
	creditsService credits.ServiceInterface,
	users UserDirectory,
	cfg *config.StripeConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		billing:  billingService,
		credits:  creditsService,
		users:    users,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

func (s *Service) VerifyWebhook(payload []byte, signature string) (*stripe.Event, error) {
	return s.provider.VerifyWebhook(payload, signature)
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event, payload []byte) DispatchStatus {
	created, err := s.repo.RecordEvent(ctx, &WebhookEvent{
		ID:        uuid.New(),
		EventID:   event.ID,
		EventType: string(event.Type),
		Payload:   string(payload),
	})
	if err != nil {
		// Better to risk processing twice than to drop the event.
		s.logger.Error("failed to record webhook event", zap.Error(err))
	} else if !created {
		s.logger.Info("webhook event already processed", zap.String("event_id", event.ID))
		s.count(event, StatusDuplicate)
		return StatusDuplicate
	}

	status, dispatchErr := s.dispatch(ctx, event)

	if status == StatusUnresolved && s.metrics != nil {
		s.metrics.WebhookUnresolvedTotal.Inc()
	}
	if err := s.repo.MarkProcessed(ctx, event.ID, dispatchErr, status == StatusUnresolved); err != nil {
		s.logger.Error("failed to mark webhook event processed", zap.Error(err))
	}

	s.count(event, status)
	return status
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (DispatchStatus, error) {
	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created":
		err = s.handleSubscriptionCreated(ctx, event)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		err = s.handleInvoicePaymentSucceeded(ctx, event)
	case "invoice.payment_failed":
		err = s.handleInvoicePaymentFailed(ctx, event)
	default:
		// New provider event types must never cause failures.
		s.logger.Debug("ignoring webhook event type", zap.String("type", string(event.Type)))
		return StatusIgnored, nil
	}

	if err == nil {
		return StatusProcessed, nil
	}

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Error(err),
	}
	if isResolutionError(err) {
		// Flagged for manual reconciliation; acknowledged to the sender
		// so it does not redeliver forever.
		s.logger.Error("webhook event unresolved", fields...)
		return StatusUnresolved, err
	}
	s.logger.Error("webhook event processing failed", fields...)
	return StatusFailed, err
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	userID, err := s.resolveUser(ctx, session.Metadata, sessionEmail(&session), session.Customer)
	if err != nil {
		return err
	}

	if amount := session.Metadata["credits"]; amount != "" {
		return s.grantPurchasedCredits(ctx, userID, amount, &session)
	}

	planID := session.Metadata["plan_id"]
	if planID == "" {
		return fmt.Errorf("%w: checkout session %s has no plan metadata", ErrUnresolvedPlan, session.ID)
	}

	var stripeSubID *string
	if session.Subscription != nil && session.Subscription.ID != "" {
		id := session.Subscription.ID
		stripeSubID = &id
	}

	if _, err := s.billing.ActivateSubscription(ctx, userID, planID, stripeSubID); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	s.logger.Info("checkout completed",
		zap.String("user_id", userID.String()),
		zap.String("plan_id", planID),
		zap.String("session_id", session.ID),
	)

	// Grants the first cycle's allocation.
	return s.credits.ReconcileIfDue(ctx, userID)
}

// grantPurchasedCredits appends a purchase ledger entry for a completed
// credit-pack checkout.
func (s *Service) grantPurchasedCredits(ctx context.Context, userID uuid.UUID, amount string, session *stripe.CheckoutSession) error {
	qty, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("malformed credits metadata %q on session %s: %w", amount, session.ID, err)
	}

	meta := credits.Metadata{
		Description: "credit pack purchase",
	}
	if session.PaymentIntent != nil {
		meta.StripePaymentIntentID = session.PaymentIntent.ID
	}

	if _, err := s.credits.AddCredits(ctx, userID, qty, credits.TransactionTypePurchase, meta); err != nil {
		return fmt.Errorf("grant purchased credits: %w", err)
	}

	s.logger.Info("credit pack purchased",
		zap.String("user_id", userID.String()),
		zap.String("credits", qty.String()),
		zap.String("session_id", session.ID),
	)
	return nil
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	userID, err := s.resolveUser(ctx, sub.Metadata, "", sub.Customer)
	if err != nil {
		return err
	}

	plan, err := s.resolvePlan(ctx, &sub)
	if err != nil {
		return err
	}

	id := sub.ID
	if _, err := s.billing.ActivateSubscription(ctx, userID, plan.ID, &id); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	return s.credits.ReconcileIfDue(ctx, userID)
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	local, err := s.billing.SubscriptionByStripeID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if local == nil {
		return fmt.Errorf("%w: subscription %s unknown", ErrUnresolvedUser, sub.ID)
	}

	// A changed price means a plan change on the same provider
	// subscription.
	if plan, perr := s.resolvePlan(ctx, &sub); perr == nil && plan.ID != local.PlanID {
		if _, cerr := s.billing.ChangePlan(ctx, sub.ID, plan.ID); cerr != nil {
			return fmt.Errorf("change plan: %w", cerr)
		}
	}

	periodEnd := timePtr(sub.CurrentPeriodEnd)
	return s.billing.SyncFromProvider(ctx, sub.ID, string(sub.Status), periodEnd)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	err := s.billing.CancelByStripeID(ctx, sub.ID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		return fmt.Errorf("%w: subscription %s unknown", ErrUnresolvedUser, sub.ID)
	}
	return err
}

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		// One-time invoices carry no renewal semantics.
		return nil
	}

	local, err := s.billing.SubscriptionByStripeID(ctx, inv.Subscription.ID)
	if err != nil {
		return err
	}
	if local == nil {
		return fmt.Errorf("%w: subscription %s unknown", ErrUnresolvedUser, inv.Subscription.ID)
	}

	s.logger.Info("invoice paid",
		zap.String("invoice_id", inv.ID),
		zap.String("user_id", local.UserID.String()),
	)

	// Renewal payments trigger the cycle reset check.
	return s.credits.ReconcileIfDue(ctx, local.UserID)
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}

	// Terminal failure arrives as a subscription status change; a single
	// failed invoice is logged but does not touch local state.
	s.logger.Warn("invoice payment failed",
		zap.String("invoice_id", inv.ID),
	)
	return nil
}

func (s *Service) CreateCheckout(ctx context.Context, userID uuid.UUID, email, planID string) (*CheckoutSession, error) {
	plan, err := s.billing.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, billing.ErrPlanNotActive
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		UserID:        userID.String(),
		CustomerEmail: email,
		PriceID:       plan.StripePriceID,
		PlanID:        plan.ID,
		OneTime:       plan.IsLifetime(),
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
	})
}

func (s *Service) CreatePackCheckout(ctx context.Context, userID uuid.UUID, email, packID string) (*CheckoutSession, error) {
	pack := PackByID(packID)
	if pack == nil {
		return nil, ErrPackNotFound
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		UserID:        userID.String(),
		CustomerEmail: email,
		PriceID:       pack.StripePriceID,
		Credits:       pack.Credits.String(),
		OneTime:       true,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
	})
}

func (s *Service) ListUnresolved(ctx context.Context, limit int) ([]*WebhookEvent, error) {
	return s.repo.ListUnresolved(ctx, limit)
}

// resolveUser maps an event to a local user: metadata user id first, then
// the email carried on the event, then the provider customer's email. Never
// drops the event silently.
func (s *Service) resolveUser(ctx context.Context, metadata map[string]string, email string, cust *stripe.Customer) (uuid.UUID, error) {
	if raw, ok := metadata["user_id"]; ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err == nil {
			return id, nil
		}
		s.logger.Warn("malformed user_id metadata", zap.String("user_id", raw))
	}

	if email == "" && cust != nil && cust.ID != "" {
		if cust.Email != "" {
			email = cust.Email
		} else {
			c, err := s.provider.GetCustomer(ctx, cust.ID)
			if err != nil {
				return uuid.Nil, fmt.Errorf("lookup customer %s: %w", cust.ID, err)
			}
			email = c.Email
		}
	}
	if email != "" {
		id, err := s.users.FindIDByEmail(ctx, email)
		if err != nil {
			return uuid.Nil, fmt.Errorf("lookup user by email: %w", err)
		}
		if id != uuid.Nil {
			return id, nil
		}
	}

	return uuid.Nil, fmt.Errorf("%w: no user for email %q", ErrUnresolvedUser, email)
}

func (s *Service) resolvePlan(ctx context.Context, sub *stripe.Subscription) (*billing.Plan, error) {
	if planID := sub.Metadata["plan_id"]; planID != "" {
		plan, err := s.billing.GetPlan(ctx, planID)
		if err == nil {
			return plan, nil
		}
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		plan, err := s.billing.GetPlanByStripePrice(ctx, sub.Items.Data[0].Price.ID)
		if err == nil {
			return plan, nil
		}
	}
	return nil, fmt.Errorf("%w: subscription %s", ErrUnresolvedPlan, sub.ID)
}

func (s *Service) count(event *stripe.Event, status DispatchStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), string(status)).Inc()
}

func isResolutionError(err error) bool {
	return errors.Is(err, ErrUnresolvedUser) ||
		errors.Is(err, ErrUnresolvedPlan) ||
		errors.Is(err, billing.ErrPlanNotFound) ||
		errors.Is(err, billing.ErrSubscriptionNotFound)
}

func sessionEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	return session.CustomerEmail
}

func timePtr(unix int64) *time.Time {
	if unix == 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}
