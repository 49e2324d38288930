package idea

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postnow/server/internal/module/credits"
	"github.com/postnow/server/internal/module/user"
	"github.com/postnow/server/internal/utils/metrics"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, idea *Idea) error {
	args := m.Called(ctx, idea)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Idea, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Idea), args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Idea, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*Idea), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) SetSaved(ctx context.Context, id uuid.UUID, saved bool) error {
	args := m.Called(ctx, id, saved)
	return args.Error(0)
}

func (m *MockRepository) SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	args := m.Called(ctx, id, imageURL)
	return args.Error(0)
}

func (m *MockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) Model() string {
	return "test-model"
}

type MockCreditsService struct {
	mock.Mock
}

func (m *MockCreditsService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockCreditsService) GetCredits(ctx context.Context, userID uuid.UUID) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) HasSufficientCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockCreditsService) AddCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType credits.TransactionType, meta credits.Metadata) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID, amount, txType, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) DeductCreditsForOperation(ctx context.Context, userID uuid.UUID, operationType string, meta credits.Metadata) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID, operationType, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) RefundOperation(ctx context.Context, userID uuid.UUID, operationType string, meta credits.Metadata) (*credits.UserCredits, error) {
	args := m.Called(ctx, userID, operationType, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.UserCredits), args.Error(1)
}

func (m *MockCreditsService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*credits.CreditTransaction, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*credits.CreditTransaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockCreditsService) ReconcileIfDue(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCreditsService) OperationPrice(operationType string) (decimal.Decimal, error) {
	args := m.Called(operationType)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockProfileSource struct {
	mock.Mock
}

func (m *MockProfileSource) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

type ideaMocks struct {
	repo      *MockRepository
	generator *MockGenerator
	credits   *MockCreditsService
	profiles  *MockProfileSource
}

func newTestService() (*Service, *ideaMocks) {
	m := &ideaMocks{
		repo:      new(MockRepository),
		generator: new(MockGenerator),
		credits:   new(MockCreditsService),
		profiles:  new(MockProfileSource),
	}
	svc := NewService(m.repo, m.generator, m.credits, m.profiles, nil, zap.NewNop())
	return svc, m
}

func profiledUser(id uuid.UUID) *user.User {
	return &user.User{
		ID:           id,
		Email:        "maya@example.com",
		BusinessName: "Maya's Bakery",
		Niche:        "artisan baking",
		BrandTone:    "warm",
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("charges, generates and stores", func(t *testing.T) {
		svc, m := newTestService()

		m.profiles.On("GetByID", ctx, userID).Return(profiledUser(userID), nil)
		m.credits.On("DeductCreditsForOperation", ctx, userID, "idea_generation", mock.Anything).
			Return(&credits.UserCredits{}, nil)
		m.generator.On("Generate", ctx, mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Maya's Bakery") && strings.Contains(prompt, "sourdough")
		})).Return("1. Behind-the-scenes of the morning bake", nil)
		m.repo.On("Create", ctx, mock.MatchedBy(func(i *Idea) bool {
			return i.UserID == userID && i.Kind == KindIdea && i.Content != ""
		})).Return(nil)

		idea, err := svc.Generate(ctx, userID, KindIdea, "sourdough", "instagram")
		require.NoError(t, err)
		assert.Equal(t, "test-model", idea.AIModel)
		assert.Equal(t, "instagram", idea.Platform)
		m.credits.AssertNotCalled(t, "RefundOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("counts and times provider requests", func(t *testing.T) {
		svc, m := newTestService()
		svc.metrics = &metrics.Metrics{
			AIRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "ai_requests_total"}, []string{"operation", "status"}),
			AIRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{Name: "ai_request_duration_seconds"}, []string{"operation"}),
		}

		m.profiles.On("GetByID", ctx, userID).Return(profiledUser(userID), nil)
		m.credits.On("DeductCreditsForOperation", ctx, userID, "idea_generation", mock.Anything).
			Return(&credits.UserCredits{}, nil)
		m.generator.On("Generate", ctx, mock.Anything).Return("1. Flour dusting timelapse", nil)
		m.repo.On("Create", ctx, mock.Anything).Return(nil)

		_, err := svc.Generate(ctx, userID, KindIdea, "sourdough", "")
		require.NoError(t, err)

		assert.Equal(t, float64(1), testutil.ToFloat64(svc.metrics.AIRequestsTotal.WithLabelValues("idea_generation", "ok")))
		assert.Equal(t, 1, testutil.CollectAndCount(svc.metrics.AIRequestDuration))
	})

	t.Run("provider failure refunds the charge", func(t *testing.T) {
		svc, m := newTestService()

		m.profiles.On("GetByID", ctx, userID).Return(profiledUser(userID), nil)
		m.credits.On("DeductCreditsForOperation", ctx, userID, "caption_generation", mock.Anything).
			Return(&credits.UserCredits{}, nil)
		m.generator.On("Generate", ctx, mock.Anything).Return("", errors.New("provider down"))
		m.credits.On("RefundOperation", ctx, userID, "caption_generation", mock.Anything).
			Return(&credits.UserCredits{}, nil)

		_, err := svc.Generate(ctx, userID, KindCaption, "new croissant", "")
		assert.ErrorIs(t, err, ErrGenerationFailed)
		m.credits.AssertExpectations(t)
		m.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("insufficient credits stops before the provider", func(t *testing.T) {
		svc, m := newTestService()

		m.profiles.On("GetByID", ctx, userID).Return(profiledUser(userID), nil)
		m.credits.On("DeductCreditsForOperation", ctx, userID, "idea_generation", mock.Anything).
			Return(nil, credits.ErrInsufficientCredits)

		_, err := svc.Generate(ctx, userID, KindIdea, "sourdough", "")
		assert.ErrorIs(t, err, credits.ErrInsufficientCredits)
		m.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("incomplete profile rejected before charging", func(t *testing.T) {
		svc, m := newTestService()

		m.profiles.On("GetByID", ctx, userID).Return(&user.User{ID: userID}, nil)

		_, err := svc.Generate(ctx, userID, KindIdea, "sourdough", "")
		assert.ErrorIs(t, err, ErrProfileIncomplete)
		m.credits.AssertNotCalled(t, "DeductCreditsForOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty topic", func(t *testing.T) {
		svc, _ := newTestService()

		_, err := svc.Generate(ctx, userID, KindIdea, "   ", "")
		assert.ErrorIs(t, err, ErrEmptyTopic)
	})
}

func TestGetByIDOwnership(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()
	ideaID := uuid.New()

	svc, m := newTestService()
	m.repo.On("GetByID", ctx, ideaID).Return(&Idea{ID: ideaID, UserID: owner}, nil)

	_, err := svc.GetByID(ctx, other, ideaID)
	assert.ErrorIs(t, err, ErrIdeaNotFound)

	idea, err := svc.GetByID(ctx, owner, ideaID)
	assert.NoError(t, err)
	assert.Equal(t, ideaID, idea.ID)
}
