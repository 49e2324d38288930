package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service writes and reads the audit trail. Its Record method satisfies the
// AuditLogger interfaces the other modules declare.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new audit service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends an audit entry. Failures here must never fail the calling
// operation; callers log and continue.
func (s *Service) Record(ctx context.Context, actorID uuid.UUID, action, object string, details map[string]any) error {
	entry := &Entry{
		ID:      uuid.New(),
		ActorID: actorID,
		Action:  action,
		Object:  object,
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		entry.Details = raw
	}
	return s.repo.Create(ctx, entry)
}

// ListByActor returns a page of an actor's audit history, newest first.
func (s *Service) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Entry, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByActor(ctx, actorID, limit, offset)
}
