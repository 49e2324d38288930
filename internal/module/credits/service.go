package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/postnow/server/internal/utils/metrics"
)

// SubscriptionInfo is the slice of subscription state the ledger needs.
type SubscriptionInfo struct {
	Interval       PlanInterval
	MonthlyCredits decimal.Decimal
}

// SubscriptionSource reports the user's current active subscription, or nil
// when there is none. Implemented by the billing module.
type SubscriptionSource interface {
	ActiveSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionInfo, error)
}

// AuditLogger records ledger operations for the audit trail. May be nil.
type AuditLogger interface {
	Record(ctx context.Context, actorID uuid.UUID, action, object string, details map[string]any) error
}

// ServiceInterface defines the ledger service. These are the only sanctioned
// mutation entry points; nothing else writes to user_credits or
// credit_transactions.
type ServiceInterface interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	GetCredits(ctx context.Context, userID uuid.UUID) (*UserCredits, error)
	HasSufficientCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	AddCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType TransactionType, meta Metadata) (*UserCredits, error)
	DeductCreditsForOperation(ctx context.Context, userID uuid.UUID, operationType string, meta Metadata) (*UserCredits, error)
	RefundOperation(ctx context.Context, userID uuid.UUID, operationType string, meta Metadata) (*UserCredits, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CreditTransaction, int64, error)
	ReconcileIfDue(ctx context.Context, userID uuid.UUID) error
	OperationPrice(operationType string) (decimal.Decimal, error)
}

// Service implements the credit ledger.
type Service struct {
	repo          Repository
	prices        *PriceTable
	subscriptions SubscriptionSource
	audit         AuditLogger
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a new ledger service.
func NewService(repo Repository, prices *PriceTable, subscriptions SubscriptionSource, audit AuditLogger, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		prices:        prices,
		subscriptions: subscriptions,
		audit:         audit,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// GetBalance returns the cached balance, applying a due cycle reset first.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	uc, err := s.GetCredits(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if uc == nil {
		return decimal.Zero, nil
	}
	return uc.Balance, nil
}

// GetCredits returns the full credits row, applying a due cycle reset first.
func (s *Service) GetCredits(ctx context.Context, userID uuid.UUID) (*UserCredits, error) {
	if err := s.ReconcileIfDue(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.GetCredits(ctx, userID)
}

// HasSufficientCredits reports whether the balance covers amount. Advisory
// only: the deduction re-checks under a row lock.
func (s *Service) HasSufficientCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

// AddCredits appends a positive ledger entry and returns the updated row.
func (s *Service) AddCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType TransactionType, meta Metadata) (*UserCredits, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if !txType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransactionType, txType)
	}

	entry := &CreditTransaction{
		ID:                    uuid.New(),
		UserID:                userID,
		Amount:                amount,
		TransactionType:       txType,
		AIModel:               meta.AIModel,
		Description:           meta.Description,
		StripePaymentIntentID: meta.StripePaymentIntentID,
	}

	uc, err := s.repo.Credit(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	s.countTransaction(txType)
	s.logger.Info("credits added",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
		zap.String("type", string(txType)),
	)
	s.recordAudit(ctx, userID, "credits.add", entry.ID.String(), map[string]any{
		"amount": amount.String(),
		"type":   string(txType),
	})

	return uc, nil
}

// DeductCreditsForOperation charges the flat price of operationType. The
// user must hold an active subscription and a sufficient balance; on any
// failure nothing is written.
func (s *Service) DeductCreditsForOperation(ctx context.Context, userID uuid.UUID, operationType string, meta Metadata) (*UserCredits, error) {
	price, err := s.prices.Price(operationType)
	if err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.ActiveSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrNoActiveSubscription
	}

	if err := s.ReconcileIfDue(ctx, userID); err != nil {
		return nil, err
	}

	if meta.Description == "" {
		meta.Description = operationType
	}

	uc, err := s.repo.Debit(ctx, userID, price, meta)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			if s.metrics != nil {
				s.metrics.InsufficientFundsTotal.Inc()
			}
			return nil, err
		}
		return nil, fmt.Errorf("debit: %w", err)
	}

	s.countTransaction(TransactionTypeUsage)
	if s.metrics != nil {
		s.metrics.CreditsDeductedTotal.WithLabelValues(operationType).Add(price.InexactFloat64())
	}
	s.logger.Info("credits deducted",
		zap.String("user_id", userID.String()),
		zap.String("operation", operationType),
		zap.String("price", price.String()),
		zap.String("balance", uc.Balance.String()),
	)
	s.recordAudit(ctx, userID, "credits.deduct", operationType, map[string]any{
		"price":   price.String(),
		"balance": uc.Balance.String(),
	})

	return uc, nil
}

// RefundOperation returns the flat price of a failed operation to the user.
func (s *Service) RefundOperation(ctx context.Context, userID uuid.UUID, operationType string, meta Metadata) (*UserCredits, error) {
	price, err := s.prices.Price(operationType)
	if err != nil {
		return nil, err
	}
	if meta.Description == "" {
		meta.Description = fmt.Sprintf("refund: %s", operationType)
	}
	return s.AddCredits(ctx, userID, price, TransactionTypeRefund, meta)
}

// ListTransactions returns ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CreditTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

// ReconcileIfDue applies the cycle reset when the reconciliation policy says
// one is due. Called lazily from balance reads, subscription activation and
// payment-success webhooks; there is no background sweep.
func (s *Service) ReconcileIfDue(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.subscriptions.ActiveSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if sub == nil {
		return nil
	}

	uc, err := s.repo.GetCredits(ctx, userID)
	if err != nil {
		return err
	}

	var lastReset *time.Time
	if uc != nil {
		lastReset = uc.LastCreditReset
	}

	now := s.now()
	if !ShouldReset(sub.Interval, lastReset, now) {
		return nil
	}

	// The repository decides again under the row lock; the reset is a
	// no-op when a concurrent trigger already applied it for this cycle.
	updated, applied, err := s.repo.ResetCycle(ctx, userID, sub.Interval, sub.MonthlyCredits, now)
	if err != nil {
		return fmt.Errorf("reset cycle: %w", err)
	}
	if !applied {
		return nil
	}

	if s.metrics != nil {
		s.metrics.CycleResetsTotal.WithLabelValues(string(sub.Interval)).Inc()
	}
	s.logger.Info("credit cycle reset",
		zap.String("user_id", userID.String()),
		zap.String("interval", string(sub.Interval)),
		zap.String("allocation", sub.MonthlyCredits.String()),
		zap.String("balance", updated.Balance.String()),
	)
	return nil
}

// OperationPrice returns the flat price for an operation type.
func (s *Service) OperationPrice(operationType string) (decimal.Decimal, error) {
	return s.prices.Price(operationType)
}

func (s *Service) countTransaction(txType TransactionType) {
	if s.metrics == nil {
		return
	}
	s.metrics.LedgerTransactionsTotal.WithLabelValues(string(txType)).Inc()
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action, object string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actorID, action, object, details); err != nil {
		s.logger.Warn("audit record failed", zap.Error(err))
	}
}
