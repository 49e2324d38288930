package idea

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the content types a user can generate.
type Kind string

const (
	KindIdea    Kind = "idea"
	KindCaption Kind = "caption"
)

// OperationType maps a content kind to its ledger operation type.
func (k Kind) OperationType() string {
	switch k {
	case KindCaption:
		return "caption_generation"
	default:
		return "idea_generation"
	}
}

// Idea is a generated piece of content kept for the user's library.
type Idea struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index:idx_ideas_user_created"`
	Kind      Kind      `json:"kind" gorm:"not null"`
	Topic     string    `json:"topic"`
	Platform  string    `json:"platform,omitempty"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	AIModel   string    `json:"ai_model,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Saved     bool      `json:"saved" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_ideas_user_created"`
}

// TableName returns the database table name.
func (Idea) TableName() string {
	return "ideas"
}
