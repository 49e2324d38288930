package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence for user accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByEmail returns nil when no user matches.
	GetByEmail(ctx context.Context, email string) (*User, error)

	Update(ctx context.Context, u *User) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// ListInactiveSince returns users whose last login predates cutoff.
	// Used by re-engagement campaigns.
	ListInactiveSince(ctx context.Context, cutoff time.Time) ([]*User, error)

	// ListCreatedBetween returns users who registered inside the window.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*User, error)

	ListAll(ctx context.Context) ([]*User, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed user repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).First(&u, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) Update(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *gormRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}

func (r *gormRepository) ListInactiveSince(ctx context.Context, cutoff time.Time) ([]*User, error) {
	var users []*User
	err := r.db.WithContext(ctx).
		Where("last_login_at IS NOT NULL AND last_login_at < ?", cutoff).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *gormRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*User, error) {
	var users []*User
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *gormRepository) ListAll(ctx context.Context) ([]*User, error) {
	var users []*User
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
