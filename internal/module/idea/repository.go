package idea

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence for generated content.
type Repository interface {
	Create(ctx context.Context, idea *Idea) error
	GetByID(ctx context.Context, id uuid.UUID) (*Idea, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Idea, int64, error)
	SetSaved(ctx context.Context, id uuid.UUID, saved bool) error
	SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed idea repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, idea *Idea) error {
	return r.db.WithContext(ctx).Create(idea).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Idea, error) {
	var idea Idea
	err := r.db.WithContext(ctx).First(&idea, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdeaNotFound
		}
		return nil, err
	}
	return &idea, nil
}

func (r *gormRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Idea, int64, error) {
	query := r.db.WithContext(ctx).Model(&Idea{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ideas []*Idea
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&ideas).Error
	if err != nil {
		return nil, 0, err
	}
	return ideas, total, nil
}

func (r *gormRepository) SetSaved(ctx context.Context, id uuid.UUID, saved bool) error {
	return r.db.WithContext(ctx).
		Model(&Idea{}).
		Where("id = ?", id).
		Update("saved", saved).Error
}

func (r *gormRepository) SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	return r.db.WithContext(ctx).
		Model(&Idea{}).
		Where("id = ?", id).
		Update("image_url", imageURL).Error
}

func (r *gormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&Idea{}, "id = ?", id).Error
}
