package payment

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines persistence for webhook event records.
type Repository interface {
	// RecordEvent stores the event, returning created=false when the
	// event id is already known.
	RecordEvent(ctx context.Context, event *WebhookEvent) (created bool, err error)

	// MarkProcessed stamps the event's outcome. processErr and unresolved
	// capture the dispatch result for manual reconciliation.
	MarkProcessed(ctx context.Context, eventID string, processErr error, unresolved bool) error

	// ListUnresolved returns events flagged for manual reconciliation,
	// newest first.
	ListUnresolved(ctx context.Context, limit int) ([]*WebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed webhook event repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) RecordEvent(ctx context.Context, event *WebhookEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, eventID string, processErr error, unresolved bool) error {
	now := time.Now()
	updates := map[string]any{
		"processed":    true,
		"unresolved":   unresolved,
		"processed_at": &now,
	}
	if processErr != nil {
		updates["error"] = processErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}

func (r *gormRepository) ListUnresolved(ctx context.Context, limit int) ([]*WebhookEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var events []*WebhookEvent
	err := r.db.WithContext(ctx).
		Where("unresolved = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
