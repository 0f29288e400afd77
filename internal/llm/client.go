// Package llm talks to an OpenAI-compatible chat completion API and turns
// its replies into typed documents.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrNotConfigured is returned by every call when no API key is set.
	ErrNotConfigured = errors.New("llm: api key not configured")
	// ErrQuota is returned when the provider rejects the call with 429.
	ErrQuota = errors.New("llm: upstream quota exceeded")
	// ErrEmptyResponse is returned when the provider answers without choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

var (
	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "Chat completion calls by model and outcome.",
	}, []string{"model", "status"})
	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_request_duration_seconds",
		Help:    "Chat completion latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})
	llmTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_tokens",
		Help:    "Prompt and completion token counts (estimated when the provider omits usage).",
		Buckets: prometheus.ExponentialBuckets(64, 2, 10),
	}, []string{"model", "kind"})
)

// chatAPI is the subset of *openai.Client the client uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	api        chatAPI
	model      string
	timeout    time.Duration
	maxRetries int
	log        *slog.Logger
	sleep      func(time.Duration)
}

// New builds a client. An empty APIKey yields a client whose calls all fail
// with ErrNotConfigured, so the server can still start without one.
func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	c := &Client{
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		log:        log,
		sleep:      time.Sleep,
	}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		c.api = openai.NewClientWithConfig(oc)
	}
	return c
}

// Complete sends a system and a user message and returns the text of the
// first choice. Transport errors and 5xx replies are retried; 4xx replies
// are not.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.api == nil {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, req)
		llmRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
		if err != nil {
			status := statusOf(err)
			if status == http.StatusTooManyRequests {
				llmRequestsTotal.WithLabelValues(c.model, "quota").Inc()
				return "", fmt.Errorf("%w: %v", ErrQuota, err)
			}
			llmRequestsTotal.WithLabelValues(c.model, "error").Inc()
			lastErr = err
			if status >= 400 && status < 500 {
				return "", fmt.Errorf("chat completion: %w", err)
			}
			if ctx.Err() != nil {
				return "", fmt.Errorf("chat completion: %w", ctx.Err())
			}
			c.log.Warn("chat completion failed, retrying", "attempt", attempt, "error", err)
			if attempt < c.maxRetries {
				c.sleep(time.Duration(attempt) * time.Second)
			}
			continue
		}
		if len(resp.Choices) == 0 {
			llmRequestsTotal.WithLabelValues(c.model, "empty").Inc()
			lastErr = ErrEmptyResponse
			continue
		}
		content := resp.Choices[0].Message.Content
		llmRequestsTotal.WithLabelValues(c.model, "success").Inc()
		c.observeTokens(resp.Usage, system+user, content)
		return content, nil
	}
	return "", fmt.Errorf("chat completion after %d attempts: %w", c.maxRetries, lastErr)
}

// observeTokens records token counts, falling back to a local tiktoken
// estimate when the provider does not report usage.
func (c *Client) observeTokens(usage openai.Usage, prompt, completion string) {
	if usage.TotalTokens > 0 {
		llmTokens.WithLabelValues(c.model, "prompt").Observe(float64(usage.PromptTokens))
		llmTokens.WithLabelValues(c.model, "completion").Observe(float64(usage.CompletionTokens))
		return
	}
	tke, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		c.log.Debug("no tokenizer for model, skipping token metrics", "model", c.model)
		return
	}
	llmTokens.WithLabelValues(c.model, "prompt").Observe(float64(len(tke.Encode(prompt, nil, nil))))
	llmTokens.WithLabelValues(c.model, "completion").Observe(float64(len(tke.Encode(completion, nil, nil))))
}

// statusOf extracts the HTTP status from a go-openai error, or 0.
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
