package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence for audit entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Entry, int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed audit repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, entry *Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Entry, int64, error) {
	query := r.db.WithContext(ctx).Model(&Entry{}).Where("actor_id = ?", actorID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*Entry
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
