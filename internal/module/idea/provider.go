package idea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/postnow/server/internal/shared/config"
	apperrors "github.com/postnow/server/internal/utils/errors"
)

// Generator produces text completions from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// HTTPGenerator calls an OpenAI-compatible completion endpoint. Requests are
// bounded by a timeout and guarded by a circuit breaker so a stalled
// provider sheds load fast instead of tying up request handlers.
type HTTPGenerator struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	baseURL string
	apiKey  string
	model   string
	logger  *zap.Logger
}

// NewHTTPGenerator creates a generator from the ai config section.
func NewHTTPGenerator(cfg *config.AIConfig, logger *zap.Logger) *HTTPGenerator {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	circuitTimeout := cfg.CircuitTimeout
	if circuitTimeout == 0 {
		circuitTimeout = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "ai-provider",
		Timeout: circuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ai provider circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPGenerator{
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		logger:  logger,
	}
}

func (g *HTTPGenerator) Model() string {
	return g.model
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.breaker.Execute(func() (string, error) {
		return g.complete(ctx, prompt)
	})
	if err != nil {
		return "", apperrors.ExternalService("ai provider", err)
	}
	return result, nil
}

func (g *HTTPGenerator) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
