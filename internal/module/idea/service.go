package idea

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postnow/server/internal/module/credits"
	"github.com/postnow/server/internal/module/user"
	"github.com/postnow/server/internal/utils/metrics"
)

// ProfileSource loads the brand profile that grounds a prompt.
type ProfileSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// ServiceInterface defines the content generation service.
type ServiceInterface interface {
	// Generate charges the flat price for the content kind, runs the
	// provider, and stores the result. A provider failure refunds the
	// charge.
	Generate(ctx context.Context, userID uuid.UUID, kind Kind, topic, platform string) (*Idea, error)

	GetByID(ctx context.Context, userID, ideaID uuid.UUID) (*Idea, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Idea, int64, error)
	SetSaved(ctx context.Context, userID, ideaID uuid.UUID, saved bool) error
	SetImageURL(ctx context.Context, userID, ideaID uuid.UUID, imageURL string) error
	Delete(ctx context.Context, userID, ideaID uuid.UUID) error
}

// Service implements content generation on top of the credit ledger.
type Service struct {
	repo      Repository
	generator Generator
	credits   credits.ServiceInterface
	profiles  ProfileSource
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates a new idea service.
func NewService(
	repo Repository,
	generator Generator,
	creditsService credits.ServiceInterface,
	profiles ProfileSource,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		generator: generator,
		credits:   creditsService,
		profiles:  profiles,
		metrics:   m,
		logger:    logger,
	}
}

func (s *Service) Generate(ctx context.Context, userID uuid.UUID, kind Kind, topic, platform string) (*Idea, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrEmptyTopic
	}

	u, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasProfile() {
		return nil, ErrProfileIncomplete
	}

	operation := kind.OperationType()
	meta := credits.Metadata{
		AIModel:     s.generator.Model(),
		Description: fmt.Sprintf("%s: %s", operation, topic),
	}

	// Charge up front; the price is fixed so the cost is known before
	// the provider runs.
	if _, err := s.credits.DeductCreditsForOperation(ctx, userID, operation, meta); err != nil {
		return nil, err
	}

	start := time.Now()
	content, err := s.generator.Generate(ctx, s.buildPrompt(u, kind, topic, platform))
	s.observeDuration(operation, time.Since(start))
	if err != nil {
		s.countRequest(operation, "error")
		s.logger.Error("generation failed, refunding",
			zap.String("user_id", userID.String()),
			zap.String("operation", operation),
			zap.Error(err),
		)
		if _, refundErr := s.credits.RefundOperation(ctx, userID, operation, meta); refundErr != nil {
			s.logger.Error("refund failed",
				zap.String("user_id", userID.String()),
				zap.Error(refundErr),
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	s.countRequest(operation, "ok")

	idea := &Idea{
		ID:       uuid.New(),
		UserID:   userID,
		Kind:     kind,
		Topic:    topic,
		Platform: platform,
		Content:  content,
		AIModel:  s.generator.Model(),
	}
	if err := s.repo.Create(ctx, idea); err != nil {
		return nil, fmt.Errorf("store idea: %w", err)
	}
	return idea, nil
}

func (s *Service) GetByID(ctx context.Context, userID, ideaID uuid.UUID) (*Idea, error) {
	idea, err := s.repo.GetByID(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea.UserID != userID {
		return nil, ErrIdeaNotFound
	}
	return idea, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Idea, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) SetSaved(ctx context.Context, userID, ideaID uuid.UUID, saved bool) error {
	if _, err := s.GetByID(ctx, userID, ideaID); err != nil {
		return err
	}
	return s.repo.SetSaved(ctx, ideaID, saved)
}

// SetImageURL attaches an externally hosted image to the idea.
func (s *Service) SetImageURL(ctx context.Context, userID, ideaID uuid.UUID, imageURL string) error {
	if _, err := s.GetByID(ctx, userID, ideaID); err != nil {
		return err
	}
	return s.repo.SetImageURL(ctx, ideaID, imageURL)
}

func (s *Service) Delete(ctx context.Context, userID, ideaID uuid.UUID) error {
	if _, err := s.GetByID(ctx, userID, ideaID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, ideaID)
}

func (s *Service) buildPrompt(u *user.User, kind Kind, topic, platform string) string {
	var b strings.Builder
	switch kind {
	case KindCaption:
		b.WriteString("Write a social media caption")
	default:
		b.WriteString("Suggest social media post ideas")
	}
	if platform != "" {
		fmt.Fprintf(&b, " for %s", platform)
	}
	fmt.Fprintf(&b, " about %q for %s, a business in the %s niche.", topic, u.BusinessName, u.Niche)
	if u.TargetAudience != "" {
		fmt.Fprintf(&b, " The target audience is %s.", u.TargetAudience)
	}
	if u.BrandTone != "" {
		fmt.Fprintf(&b, " Use a %s tone.", u.BrandTone)
	}
	return b.String()
}

func (s *Service) countRequest(operation, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AIRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

func (s *Service) observeDuration(operation string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.AIRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}
