// Package llm calls an OpenAI-compatible chat completion service to turn a
// rendered diagnostic prompt into a remediation recommendation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codereliant/pod-doctor/internal/api/middleware"
	"github.com/codereliant/pod-doctor/internal/models"
)

// Generation service errors
var (
	ErrAuth               = errors.New("generation service authentication failed")
	ErrRateLimited        = errors.New("generation service rate limited")
	ErrServiceUnavailable = errors.New("generation service unavailable")
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxAttempts = 3
	DefaultTimeout     = 60 * time.Second
	DefaultBaseDelay   = 500 * time.Millisecond

	// maxResponseBytes bounds how much of a completion body is read.
	maxResponseBytes = 8 << 20
)

const systemPrompt = "You are a kubernetes expert, and will help the user " +
	"with the request below based on the context and info provided"

// Config holds the client's connection and retry settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	return c
}

// Client is a recommendation client against a chat-completions endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new generation service client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// wire types for the chat-completions API
type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse is the wire shape returned by the generation service.
type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Recommend sends the prompt to the generation service and returns the
// validated recommendation. RateLimited and ServiceUnavailable responses are
// retried with exponential backoff and jitter up to the attempt cap; auth
// failures and context cancellation are terminal. The identical request body
// is re-sent on every attempt.
func (c *Client) Recommend(ctx context.Context, req models.RecommendationRequest) (models.RecommendationResponse, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return models.RecommendationResponse{}, fmt.Errorf("failed to encode completion request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		start := time.Now()
		completion, err := c.doAttempt(ctx, body)
		middleware.LLMRequestDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			rec, verr := Validate(completion, c.config.Model)
			middleware.LLMAttemptsTotal.WithLabelValues(classify(verr)).Inc()
			return rec, verr
		}

		middleware.LLMAttemptsTotal.WithLabelValues(classify(err)).Inc()
		if !isRetryable(err) {
			return models.RecommendationResponse{}, err
		}
		lastErr = err

		if attempt == c.config.MaxAttempts {
			break
		}

		delay := backoffDelay(c.config.BaseDelay, attempt)
		c.logger.Warn("generation service attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleepWithContext(ctx, delay); err != nil {
			return models.RecommendationResponse{}, err
		}
	}

	return models.RecommendationResponse{}, fmt.Errorf("retries exhausted after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

func (c *Client) doAttempt(ctx context.Context, body []byte) (CompletionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return CompletionResponse{}, ctx.Err()
		}
		if isRetryableNetErr(err) {
			return CompletionResponse{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return CompletionResponse{}, fmt.Errorf("completion request failed: %w", err)
	}
	defer res.Body.Close()

	resBody, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return CompletionResponse{}, fmt.Errorf("%w (HTTP %d)", ErrAuth, res.StatusCode)
	case res.StatusCode == http.StatusTooManyRequests:
		return CompletionResponse{}, fmt.Errorf("%w (HTTP %d)", ErrRateLimited, res.StatusCode)
	case res.StatusCode >= 500:
		return CompletionResponse{}, fmt.Errorf("%w (HTTP %d): %s",
			ErrServiceUnavailable, res.StatusCode, strings.TrimSpace(string(resBody)))
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return CompletionResponse{}, fmt.Errorf("generation service error (HTTP %d): %s",
			res.StatusCode, strings.TrimSpace(string(resBody)))
	}

	var decoded CompletionResponse
	if err := json.Unmarshal(resBody, &decoded); err != nil {
		return CompletionResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return decoded, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServiceUnavailable)
}

func classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, ErrMalformedResponse):
		return "bad_response"
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// backoffDelay doubles the base delay per attempt and adds up to 25% jitter
// to avoid thundering-herd against the shared service.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableNetErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "broken pipe")
}
