package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/pkg/circuitbreaker"
)

// ErrEmptyCompletion is returned when the endpoint answers without content.
var ErrEmptyCompletion = errors.New("empty completion content")

// Client calls one OpenAI-compatible chat-completions endpoint with bounded
// retries behind a shared circuit breaker. One Client per configured backend;
// the underlying HTTP client is connection-pooled and shared across requests.
type Client struct {
	cfg     BackendConfig
	api     *openai.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient builds a client for cfg. The breaker is obtained from the shared
// manager so concurrent requests to the same endpoint share failure state.
func NewClient(cfg BackendConfig, breakers *circuitbreaker.Manager, circuit circuitbreaker.Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	if httpClient != nil {
		apiCfg.HTTPClient = httpClient
	}

	breaker, err := breakers.GetOrCreate(cfg.EndpointKey(), circuit)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		api:     openai.NewClientWithConfig(apiCfg),
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Config returns the backend configuration the client was built with.
func (c *Client) Config() BackendConfig { return c.cfg }

// Complete sends the messages and returns the assistant content. Retries are
// attempted only on network errors and HTTP 429/5xx; each attempt gets its
// own timeout clamped to the caller deadline. Circuit rejections surface as
// gobreaker open-state errors (test with circuitbreaker.IsOpen).
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.completeWithRetries(ctx, messages)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) completeWithRetries(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		resp, err := c.api.CreateChatCompletion(attemptCtx, req)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
				return "", ErrEmptyCompletion
			}
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err

		// The caller's deadline or disconnect wins over the retry budget.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryable(err) {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if attempt < c.cfg.MaxRetries {
			c.logger.Debug("retrying chat completion",
				zap.String("endpoint", c.cfg.EndpointKey()),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.cfg.RetryBackoff * (1 << attempt)):
			}
		}
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// retryable classifies transport errors and 429/5xx as retryable; any other
// HTTP status is terminal.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode != 0 {
			return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
		}
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Unwrapped transport errors from the HTTP client.
	return true
}

// SystemMessage builds a plain-text system message.
func SystemMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: content}
}

// UserMessage builds a user message; when imageURLs is non-empty the message
// uses the multimodal content array with the text part first.
func UserMessage(text string, imageURLs []string) openai.ChatCompletionMessage {
	if len(imageURLs) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}
	for _, u := range imageURLs {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: u},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}
