package credits

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypePurchase          TransactionType = "purchase"
	TransactionTypeUsage             TransactionType = "usage"
	TransactionTypeRefund            TransactionType = "refund"
	TransactionTypeBonus             TransactionType = "bonus"
	TransactionTypeAdjustment        TransactionType = "adjustment"
	TransactionTypeMonthlyAllocation TransactionType = "monthly_allocation"
)

// IsValid checks if the type is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeUsage, TransactionTypeRefund,
		TransactionTypeBonus, TransactionTypeAdjustment, TransactionTypeMonthlyAllocation:
		return true
	default:
		return false
	}
}

// UserCredits caches the current balance for a user. The ledger is the audit
// trail; this row is the source of truth for reads and is only ever mutated
// together with a ledger entry in the same transaction.
type UserCredits struct {
	ID                       uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID                   uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	Balance                  decimal.Decimal `json:"balance" gorm:"type:decimal(15,2);not null;default:0"`
	MonthlyCreditsAllocated  decimal.Decimal `json:"monthly_credits_allocated" gorm:"type:decimal(15,2);not null;default:0"`
	MonthlyCreditsUsed       decimal.Decimal `json:"monthly_credits_used" gorm:"type:decimal(15,2);not null;default:0"`
	LastCreditReset          *time.Time      `json:"last_credit_reset"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// TableName returns the database table name.
func (UserCredits) TableName() string {
	return "user_credits"
}

// MonthlyRemaining returns the unused part of the current allocation.
func (c *UserCredits) MonthlyRemaining() decimal.Decimal {
	remaining := c.MonthlyCreditsAllocated.Sub(c.MonthlyCreditsUsed)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// ApplyCycleReset expires the unused part of the current allocation and
// grants the next one, mutating the cached row and returning the ledger
// entries to append alongside it. Unused credits do not roll over; the
// expiry is capped at the balance so the row never goes negative.
func (c *UserCredits) ApplyCycleReset(allocation decimal.Decimal, now time.Time) []*CreditTransaction {
	var entries []*CreditTransaction

	unused := c.MonthlyRemaining()
	if unused.GreaterThan(c.Balance) {
		unused = c.Balance
	}
	if unused.IsPositive() {
		c.Balance = c.Balance.Sub(unused)
		entries = append(entries, &CreditTransaction{
			ID:              uuid.New(),
			UserID:          c.UserID,
			Amount:          unused.Neg(),
			TransactionType: TransactionTypeAdjustment,
			Description:     "unused monthly credits expired",
		})
	}

	c.Balance = c.Balance.Add(allocation)
	c.MonthlyCreditsAllocated = allocation
	c.MonthlyCreditsUsed = decimal.Zero
	resetAt := now
	c.LastCreditReset = &resetAt

	entries = append(entries, &CreditTransaction{
		ID:              uuid.New(),
		UserID:          c.UserID,
		Amount:          allocation,
		TransactionType: TransactionTypeMonthlyAllocation,
		Description:     "monthly credit allocation",
	})
	return entries
}

// CreditTransaction is an append-only ledger entry. Rows are never updated
// or deleted; corrections are new adjustment or refund rows.
type CreditTransaction struct {
	ID                    uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID                uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index:idx_credit_transactions_user_created"`
	Amount                decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	TransactionType       TransactionType `json:"transaction_type" gorm:"not null;index"`
	AIModel               string          `json:"ai_model,omitempty"`
	Description           string          `json:"description"`
	StripePaymentIntentID string          `json:"stripe_payment_intent_id,omitempty" gorm:"index"`
	CreatedAt             time.Time       `json:"created_at" gorm:"index:idx_credit_transactions_user_created"`
}

// TableName returns the database table name.
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// Metadata carries optional context for a ledger operation.
type Metadata struct {
	AIModel               string
	Description           string
	StripePaymentIntentID string
}
