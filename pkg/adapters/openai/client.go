// Package openai answers AI-node questions through any OpenAI-compatible
// chat-completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/sashabaranov/go-openai"
)

// Defaults applied to unset Config fields.
const (
	DefaultModel       = openai.GPT3Dot5Turbo
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// Config describes the completion endpoint.
type Config struct {
	APIKey      string
	BaseURL     string // empty means api.openai.com
	Model       string
	Temperature *float32 // nil means DefaultTemperature; 0 is honored
	MaxTokens   int
	Timeout     time.Duration
}

// Client implements ports.Escalator with go-openai.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom structured logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	c := &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: DefaultTemperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logging.NewNop(),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if cfg.Temperature != nil {
		c.temperature = *cfg.Temperature
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "openai", "model", c.model)
	return c
}

// Ask sends the request as one chat completion. It does not retry.
func (c *Client) Ask(ctx context.Context, req domain.EscalationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := domain.BuildPrompt(req)
	messages := make([]openai.ChatCompletionMessage, len(prompt))
	for i, m := range prompt {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	// The request field is omitempty, so a literal zero would fall back to the server default.
	temperature := c.temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	started := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		classified := classify(err)
		c.logger.Warn("chat completion failed", "duration", time.Since(started), "error", classified)
		return "", classified
	}

	if len(resp.Choices) == 0 {
		return "", &domain.AIServiceError{Kind: domain.ErrMalformedResponse, Err: errors.New("no choices returned")}
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", &domain.AIServiceError{Kind: domain.ErrMalformedResponse, Err: errors.New("empty answer")}
	}

	c.logger.Debug("chat completion",
		"duration", time.Since(started),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return answer, nil
}

// classify maps go-openai errors onto the AI failure kinds by HTTP status.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := domain.ErrAIUnavailable
	switch status {
	case http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case http.StatusPaymentRequired:
		kind = domain.ErrQuotaExhausted
	}
	return &domain.AIServiceError{Kind: kind, Status: status, Err: err}
}

// Static is an escalator with a canned outcome, for offline use and tests.
type Static struct {
	Answer string
	Err    error
}

// Ask returns the configured answer or error.
func (s Static) Ask(ctx context.Context, req domain.EscalationRequest) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Answer, nil
}

// Unavailable returns an escalator that always fails, used when no endpoint is configured.
func Unavailable() Static {
	return Static{Err: &domain.AIServiceError{
		Kind: domain.ErrAIUnavailable,
		Err:  fmt.Errorf("no completion endpoint configured"),
	}}
}
