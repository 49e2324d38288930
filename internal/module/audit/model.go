package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entry is an append-only audit record. Rows are never updated or deleted.
type Entry struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ActorID   uuid.UUID      `json:"actor_id" gorm:"type:uuid;index:idx_audit_entries_actor_created"`
	Action    string         `json:"action" gorm:"not null;index"`
	Object    string         `json:"object"`
	Details   datatypes.JSON `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_audit_entries_actor_created"`
}

// TableName returns the database table name.
func (Entry) TableName() string {
	return "audit_entries"
}
