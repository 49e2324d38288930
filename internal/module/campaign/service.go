package campaign

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/postnow/server/internal/module/credits"
	"github.com/postnow/server/internal/module/user"
	"github.com/postnow/server/internal/shared/config"
	"github.com/postnow/server/internal/utils/metrics"
)

// UserSource supplies the recipient lists. Implemented by the user
// repository.
type UserSource interface {
	ListAll(ctx context.Context) ([]*user.User, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*user.User, error)
	ListInactiveSince(ctx context.Context, cutoff time.Time) ([]*user.User, error)
}

// Generator produces the digest content. Campaign generations are
// system-initiated and never charge user credits.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CreditGranter appends bonus ledger entries for reactivation grants.
type CreditGranter interface {
	AddCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType credits.TransactionType, meta credits.Metadata) (*credits.UserCredits, error)
}

// Summary reports a campaign run. A failure on one recipient never aborts
// the batch.
type Summary struct {
	Campaign  string `json:"campaign"`
	Attempted int    `json:"attempted"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
}

// ServiceInterface defines the campaign service.
type ServiceInterface interface {
	// RunWeeklyDigest emails every profiled user a fresh set of content
	// ideas.
	RunWeeklyDigest(ctx context.Context) (*Summary, error)

	// RunOnboarding emails users who registered one onboarding window
	// ago.
	RunOnboarding(ctx context.Context) (*Summary, error)

	// RunReactivation grants bonus credits to dormant users and invites
	// them back.
	RunReactivation(ctx context.Context) (*Summary, error)
}

// Service runs bulk email campaigns with a bounded send fan-out.
type Service struct {
	users     UserSource
	generator Generator
	granter   CreditGranter
	sender    Sender
	cfg       *config.CampaignConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new campaign service.
func NewService(
	users UserSource,
	generator Generator,
	granter CreditGranter,
	sender Sender,
	cfg *config.CampaignConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:     users,
		generator: generator,
		granter:   granter,
		sender:    sender,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) RunWeeklyDigest(ctx context.Context) (*Summary, error) {
	all, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var recipients []*user.User
	for _, u := range all {
		if u.HasProfile() {
			recipients = append(recipients, u)
		}
	}

	return s.fanOut(ctx, "weekly_digest", recipients, func(ctx context.Context, u *user.User) error {
		prompt := fmt.Sprintf(
			"Suggest three social media post ideas for this week for %s, a business in the %s niche.",
			u.BusinessName, u.Niche,
		)
		ideas, err := s.generator.Generate(ctx, prompt)
		if err != nil {
			return fmt.Errorf("generate digest: %w", err)
		}
		subject := "Your content ideas for this week"
		return s.sender.Send(ctx, u.Email, subject, digestBody(u, ideas))
	})
}

func (s *Service) RunOnboarding(ctx context.Context) (*Summary, error) {
	after := s.cfg.OnboardingAfter
	if after == 0 {
		after = 24 * time.Hour
	}

	// One window per run; a user registered inside [cutoff-24h, cutoff)
	// gets exactly one onboarding email when the job runs daily.
	cutoff := s.now().Add(-after)
	recipients, err := s.users.ListCreatedBetween(ctx, cutoff.Add(-24*time.Hour), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list new users: %w", err)
	}

	return s.fanOut(ctx, "onboarding", recipients, func(ctx context.Context, u *user.User) error {
		subject := "Getting started with PostNow"
		return s.sender.Send(ctx, u.Email, subject, onboardingBody(u))
	})
}

func (s *Service) RunReactivation(ctx context.Context) (*Summary, error) {
	after := s.cfg.ReactivationAfter
	if after == 0 {
		after = 30 * 24 * time.Hour
	}

	recipients, err := s.users.ListInactiveSince(ctx, s.now().Add(-after))
	if err != nil {
		return nil, fmt.Errorf("list inactive users: %w", err)
	}

	bonus := decimal.Zero
	if s.cfg.ReactivationCredits != "" {
		bonus, err = decimal.NewFromString(s.cfg.ReactivationCredits)
		if err != nil {
			return nil, fmt.Errorf("parse reactivation credits: %w", err)
		}
	}

	return s.fanOut(ctx, "reactivation", recipients, func(ctx context.Context, u *user.User) error {
		if bonus.IsPositive() {
			_, err := s.granter.AddCredits(ctx, u.ID, bonus, credits.TransactionTypeBonus, credits.Metadata{
				Description: "reactivation bonus",
			})
			if err != nil {
				return fmt.Errorf("grant bonus: %w", err)
			}
		}
		subject := "We miss you at PostNow"
		return s.sender.Send(ctx, u.Email, subject, reactivationBody(u, bonus))
	})
}

// fanOut runs send over recipients with a concurrency cap. Per-recipient
// failures are counted and logged, never propagated; cancellation is not
// supported mid-batch.
func (s *Service) fanOut(ctx context.Context, name string, recipients []*user.User, send func(context.Context, *user.User) error) (*Summary, error) {
	maxConcurrent := int64(s.cfg.MaxConcurrentSends)
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	sendTimeout := s.cfg.SendTimeout
	if sendTimeout == 0 {
		sendTimeout = 30 * time.Second
	}

	sem := semaphore.NewWeighted(maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	summary := &Summary{Campaign: name, Attempted: len(recipients)}

	for _, u := range recipients {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled before this recipient started; the
			// in-flight sends still finish.
			mu.Lock()
			summary.Failed++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(u *user.User) {
			defer wg.Done()
			defer sem.Release(1)

			sendCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			err := send(sendCtx, u)

			mu.Lock()
			if err != nil {
				summary.Failed++
			} else {
				summary.Sent++
			}
			mu.Unlock()

			outcome := "ok"
			if err != nil {
				outcome = "error"
				s.logger.Warn("campaign send failed",
					zap.String("campaign", name),
					zap.String("user_id", u.ID.String()),
					zap.Error(err),
				)
			}
			if s.metrics != nil {
				s.metrics.CampaignEmailsTotal.WithLabelValues(name, outcome).Inc()
			}
		}(u)
	}

	wg.Wait()

	s.logger.Info("campaign finished",
		zap.String("campaign", name),
		zap.Int("attempted", summary.Attempted),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func digestBody(u *user.User, ideas string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(firstName(u)))
	b.WriteString("<p>Here are your content ideas for this week:</p>")
	fmt.Fprintf(&b, "<div>%s</div>", html.EscapeString(ideas))
	return b.String()
}

func onboardingBody(u *user.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(firstName(u)))
	b.WriteString("<p>Welcome to PostNow. Fill in your brand profile and generate your first post ideas in under a minute.</p>")
	return b.String()
}

func reactivationBody(u *user.User, bonus decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(firstName(u)))
	if bonus.IsPositive() {
		fmt.Fprintf(&b, "<p>We added %s bonus credits to your account. Come create something new.</p>", bonus.String())
	} else {
		b.WriteString("<p>Come create something new.</p>")
	}
	return b.String()
}

func firstName(u *user.User) string {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return "there"
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}
