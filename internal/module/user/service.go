package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuditLogger records account events for the audit trail. May be nil.
type AuditLogger interface {
	Record(ctx context.Context, actorID uuid.UUID, action, object string, details map[string]any) error
}

// ProfileUpdate carries the editable brand profile fields. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	Name           *string `json:"name,omitempty"`
	BusinessName   *string `json:"business_name,omitempty"`
	Niche          *string `json:"niche,omitempty"`
	TargetAudience *string `json:"target_audience,omitempty"`
	BrandTone      *string `json:"brand_tone,omitempty"`
}

// AuthResult is a successful registration or login.
type AuthResult struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ServiceInterface defines the user service.
type ServiceInterface interface {
	Register(ctx context.Context, email, password, name string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error)

	// FindIDByEmail returns uuid.Nil when no user matches. Serves webhook
	// email-fallback resolution.
	FindIDByEmail(ctx context.Context, email string) (uuid.UUID, error)
}

// Service implements account management.
type Service struct {
	repo        Repository
	tokens      *TokenManager
	audit       AuditLogger
	adminEmails map[string]bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new user service. adminEmails grants the admin flag
// at registration time.
func NewService(repo Repository, tokens *TokenManager, audit AuditLogger, adminEmails []string, logger *zap.Logger) *Service {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[normalizeEmail(e)] = true
	}
	return &Service{
		repo:        repo,
		tokens:      tokens,
		audit:       audit,
		adminEmails: admins,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		IsAdmin:      s.adminEmails[email],
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID.String()))
	s.recordAudit(ctx, u.ID, "user.register", u.ID.String(), nil)

	return s.authResult(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		// Same cost as a real comparison so timing does not reveal
		// whether the account exists.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000u"), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	return s.authResult(u)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.BusinessName != nil {
		u.BusinessName = *update.BusinessName
	}
	if update.Niche != nil {
		u.Niche = *update.Niche
	}
	if update.TargetAudience != nil {
		u.TargetAudience = *update.TargetAudience
	}
	if update.BrandTone != nil {
		u.BrandTone = *update.BrandTone
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.recordAudit(ctx, id, "user.update_profile", id.String(), nil)
	return u, nil
}

func (s *Service) FindIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return uuid.Nil, err
	}
	if u == nil {
		return uuid.Nil, nil
	}
	return u.ID, nil
}

func (s *Service) authResult(u *User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Generate(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action, object string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actorID, action, object, details); err != nil {
		s.logger.Warn("audit record failed", zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
