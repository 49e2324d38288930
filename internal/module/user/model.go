package user

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account plus the brand profile that drives
// content generation.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	IsAdmin      bool      `json:"is_admin" gorm:"column:is_admin;default:false"`

	// Brand profile
	BusinessName   string `json:"business_name,omitempty"`
	Niche          string `json:"niche,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	BrandTone      string `json:"brand_tone,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "users"
}

// HasProfile reports whether the brand profile is filled in enough to
// ground a content-generation prompt.
func (u *User) HasProfile() bool {
	return u.BusinessName != "" && u.Niche != ""
}
