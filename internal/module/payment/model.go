package payment

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records every received provider event for idempotency and
// manual reconciliation. Delivery is at-least-once; the unique event id is
// the dedupe key.
type WebhookEvent struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventID     string     `json:"event_id" gorm:"uniqueIndex;not null"`
	EventType   string     `json:"event_type" gorm:"not null;index"`
	Payload     string     `json:"-" gorm:"type:text"`
	Processed   bool       `json:"processed" gorm:"default:false"`
	Unresolved  bool       `json:"unresolved" gorm:"default:false;index"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
