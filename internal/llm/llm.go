package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scout/internal/model"
)

// Provider represents a logical chat-completion provider.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGroq   Provider = "groq"
)

// providerSpec carries the endpoint details for one provider variant.
type providerSpec struct {
	Hostname string
	Path     string
}

var providerTable = map[Provider]providerSpec{
	ProviderOpenAI: {Hostname: "api.openai.com", Path: "/v1/chat/completions"},
	ProviderGroq:   {Hostname: "api.groq.com", Path: "/openai/v1/chat/completions"},
}

// ParseModel splits a "provider:model" string. Strings without a
// provider prefix default to Groq.
func ParseModel(s string) (Provider, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", errors.New("empty model string")
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		prov := Provider(strings.ToLower(s[:idx]))
		name := s[idx+1:]
		if _, ok := providerTable[prov]; !ok {
			return "", "", fmt.Errorf("unsupported llm provider: %s", prov)
		}
		if name == "" {
			return "", "", fmt.Errorf("model name missing after provider %q", prov)
		}
		return prov, name, nil
	}
	return ProviderGroq, s, nil
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-agnostic chat-completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// ChatResult is the assistant output plus token usage.
type ChatResult struct {
	Content string
	Model   string
	Usage   model.Usage
}

// Chatter is the contract the research call sites depend on. The
// orchestrator and tests substitute fakes.
type Chatter interface {
	Chat(ctx context.Context, apiKey string, req ChatRequest) (ChatResult, error)
	ChatWithRetry(ctx context.Context, apiKey string, req ChatRequest) (ChatResult, error)
}

// APIError is a non-2xx response from the upstream provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm upstream returned status %d: %s", e.StatusCode, e.Message)
}

// ErrInvalidResponse marks a 2xx upstream response whose body lacks
// the expected choices/content shape.
var ErrInvalidResponse = errors.New("llm upstream response missing choices or content")

// IsQuotaError reports whether the upstream rejected the call for
// billing or quota reasons rather than rate pressure.
func IsQuotaError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "billing") ||
		strings.Contains(msg, "insufficient_quota")
}

// IsAuthError reports whether the upstream rejected the credential.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// connectionErrorFragments mirror the transient socket failures worth
// retrying: DNS, refusal, timeouts, and peer resets.
var connectionErrorFragments = []string{
	"no such host",
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
}

// IsRetryable reports whether an error is worth retrying with backoff:
// transient connection failures, 429, or a 5xx gateway-class status.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range connectionErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// RetryPolicy is exponential backoff with a delay cap.
type RetryPolicy struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	MaxRetries   int
}

// DefaultRetryPolicy matches the reference behavior: 1s, x2, 10s cap,
// at most three retries.
var DefaultRetryPolicy = RetryPolicy{
	InitialDelay: time.Second,
	Factor:       2,
	MaxDelay:     10 * time.Second,
	MaxRetries:   3,
}

// Client is the HTTP transport for OpenAI-compatible chat completions.
type Client struct {
	http  *http.Client
	retry RetryPolicy

	// baseURLs maps providers to endpoint URLs; tests override these to
	// point at local servers.
	baseURLs map[Provider]string

	// sleep is swappable in tests to observe backoff without waiting.
	sleep func(time.Duration)
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout overrides the default 30s per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithBaseURL redirects a provider's endpoint, used in tests.
func WithBaseURL(p Provider, baseURL string) ClientOption {
	return func(c *Client) { c.baseURLs[p] = baseURL }
}

// WithRetryPolicy overrides the backoff schedule.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = policy }
}

// WithSleeper replaces the backoff sleeper, used in tests.
func WithSleeper(sleep func(time.Duration)) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient constructs the transport client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		retry:    DefaultRetryPolicy,
		baseURLs: map[Provider]string{},
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(p Provider) (string, error) {
	if base, ok := c.baseURLs[p]; ok && base != "" {
		return strings.TrimRight(base, "/") + providerTable[p].Path, nil
	}
	spec, ok := providerTable[p]
	if !ok {
		return "", fmt.Errorf("unsupported llm provider: %s", p)
	}
	return "https://" + spec.Hostname + spec.Path, nil
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage model.Usage `json:"usage"`
	Model string      `json:"model"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat performs a single chat-completion call without retries.
func (c *Client) Chat(ctx context.Context, apiKey string, req ChatRequest) (ChatResult, error) {
	prov, modelName, err := ParseModel(req.Model)
	if err != nil {
		return ChatResult{}, err
	}
	endpoint, err := c.endpoint(prov)
	if err != nil {
		return ChatResult{}, err
	}

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       modelName,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return ChatResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ChatResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChatResult{}, err
	}
	defer resp.Body.Close()

	var parsed chatCompletionResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return ChatResult{}, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return ChatResult{}, fmt.Errorf("decode llm response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return ChatResult{}, ErrInvalidResponse
	}

	resultModel := parsed.Model
	if resultModel == "" {
		resultModel = modelName
	}
	return ChatResult{
		Content: parsed.Choices[0].Message.Content,
		Model:   resultModel,
		Usage:   parsed.Usage,
	}, nil
}

// ChatWithRetry wraps Chat with exponential backoff on transient and
// rate-limit failures. Non-retryable errors surface immediately.
func (c *Client) ChatWithRetry(ctx context.Context, apiKey string, req ChatRequest) (ChatResult, error) {
	delay := c.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(delay)
			delay = time.Duration(float64(delay) * c.retry.Factor)
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}

		result, err := c.Chat(ctx, apiKey, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return ChatResult{}, err
		}
		if ctx.Err() != nil {
			return ChatResult{}, ctx.Err()
		}
	}
	return ChatResult{}, lastErr
}
