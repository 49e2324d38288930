package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines persistence for the credit ledger. Every mutating
// method applies its ledger entry and the balance cache update in a single
// database transaction with the UserCredits row locked, so a check can never
// race past a concurrent mutation.
type Repository interface {
	// GetCredits returns the credits row for a user, or nil if none exists.
	GetCredits(ctx context.Context, userID uuid.UUID) (*UserCredits, error)

	// SumTransactions re-derives the balance from the ledger. Used for
	// consistency checks and manual reconciliation only, never for reads.
	SumTransactions(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	// ListTransactions returns a page of ledger history, newest first.
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CreditTransaction, int64, error)

	// Credit appends a positive ledger entry and increments the balance.
	Credit(ctx context.Context, entry *CreditTransaction) (*UserCredits, error)

	// Debit re-validates the balance under a row lock, then appends the
	// negative usage entry and decrements the balance. Returns
	// ErrInsufficientCredits without writing anything when funds are short.
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, meta Metadata) (*UserCredits, error)

	// ResetCycle expires the unused part of the previous allocation,
	// grants the new one, zeroes the usage counter and stamps the reset
	// time, all in one transaction. Due-ness is re-evaluated against the
	// locked row, so concurrent triggers for the same cycle apply the
	// reset exactly once; the bool reports whether this call applied it.
	ResetCycle(ctx context.Context, userID uuid.UUID, interval PlanInterval, allocation decimal.Decimal, now time.Time) (*UserCredits, bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed ledger repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetCredits(ctx context.Context, userID uuid.UUID) (*UserCredits, error) {
	var uc UserCredits
	err := r.db.WithContext(ctx).First(&uc, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &uc, nil
}

func (r *gormRepository) SumTransactions(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *gormRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CreditTransaction, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&CreditTransaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []*CreditTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *gormRepository) Credit(ctx context.Context, entry *CreditTransaction) (*UserCredits, error) {
	var uc *UserCredits
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		uc, err = lockCredits(tx, entry.UserID)
		if err != nil {
			return err
		}

		uc.Balance = uc.Balance.Add(entry.Amount)

		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := tx.Save(uc).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uc, nil
}

func (r *gormRepository) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, meta Metadata) (*UserCredits, error) {
	var uc *UserCredits
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		uc, err = lockCredits(tx, userID)
		if err != nil {
			return err
		}

		// Re-validate against the locked row. Any earlier check outside
		// this transaction may be stale.
		if uc.Balance.LessThan(amount) {
			return ErrInsufficientCredits
		}

		uc.Balance = uc.Balance.Sub(amount)
		if uc.MonthlyRemaining().GreaterThanOrEqual(amount) {
			uc.MonthlyCreditsUsed = uc.MonthlyCreditsUsed.Add(amount)
		}

		entry := &CreditTransaction{
			ID:              uuid.New(),
			UserID:          userID,
			Amount:          amount.Neg(),
			TransactionType: TransactionTypeUsage,
			AIModel:         meta.AIModel,
			Description:     meta.Description,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := tx.Save(uc).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uc, nil
}

func (r *gormRepository) ResetCycle(ctx context.Context, userID uuid.UUID, interval PlanInterval, allocation decimal.Decimal, now time.Time) (*UserCredits, bool, error) {
	var uc *UserCredits
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		uc, err = lockCredits(tx, userID)
		if err != nil {
			return err
		}

		// The caller's check ran on an unlocked read. A concurrent reset
		// may have committed in between, so decide again on the locked
		// row and back off when the cycle is already current.
		if !ShouldReset(interval, uc.LastCreditReset, now) {
			return nil
		}
		applied = true

		for _, entry := range uc.ApplyCycleReset(allocation, now) {
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("create reset transaction: %w", err)
			}
		}

		if err := tx.Save(uc).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return uc, applied, nil
}

// lockCredits loads the user's credits row FOR UPDATE, creating it first if
// this is the user's first ledger operation. The unique index on user_id
// makes the concurrent first-touch race resolve to a single row.
func lockCredits(tx *gorm.DB, userID uuid.UUID) (*UserCredits, error) {
	fresh := &UserCredits{
		ID:                      uuid.New(),
		UserID:                  userID,
		Balance:                 decimal.Zero,
		MonthlyCreditsAllocated: decimal.Zero,
		MonthlyCreditsUsed:      decimal.Zero,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(fresh).Error; err != nil {
		return nil, fmt.Errorf("upsert credits row: %w", err)
	}

	var uc UserCredits
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&uc, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("lock credits row: %w", err)
	}
	return &uc, nil
}
