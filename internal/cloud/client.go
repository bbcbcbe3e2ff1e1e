// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/jeranaias/triage-router/internal/util"
)

// Configuration defaults for the Groq OpenAI-compatible API.
const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the default capable model.
	DefaultModel = "mixtral-8x7b-32768"

	// DefaultTimeout bounds non-streaming calls and the wait for the first
	// response bytes of a stream.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for transient errors.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay for exponential backoff.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultRequestsPerMinute matches Groq's free tier.
	DefaultRequestsPerMinute = 30
)

// Error variables for common provider errors.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("cloud API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")
)

// Config holds configuration for the cloud client.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerMinute int
	MaxTokens         int
	Temperature       float32

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger receives retry notices. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		RequestsPerMinute: DefaultRequestsPerMinute,
		Temperature:       0.3,
	}
}

// Client talks to an OpenAI-compatible chat API. It is safe for concurrent
// use.
type Client struct {
	api     *openai.Client
	cfg     Config
	limiter *rate.Limiter
}

// NewClient creates a client, filling zero values from DefaultConfig.
// A negative MaxRetries disables retries; a negative RequestsPerMinute
// disables rate limiting.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	} else {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		apiCfg.HTTPClient = &http.Client{Transport: transport}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		cfg:     cfg,
		limiter: limiter,
	}, nil
}

// Model returns the configured model.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends prompt as a single user message and returns the answer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: 0,
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Message: "no completion choices returned", malformed: true}
	}
	return resp.Choices[0].Message.Content, nil
}

// withRetry runs op, retrying transient failures with backoff. Every
// attempt waits for the rate limiter.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return classify(ctx, ctx.Err())
			case <-time.After(util.CalculateBackoff(c.cfg.RetryDelay, attempt-1)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return classify(ctx, err)
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = classify(ctx, err)

		var ce *Error
		if !errors.As(lastErr, &ce) || !ce.retryable {
			return lastErr
		}
		c.cfg.Logger.Debug("cloud request failed, retrying", "model", c.cfg.Model, "attempt", attempt+1, "err", lastErr)
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}
