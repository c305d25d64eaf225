package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseModel(t *testing.T) {
	cases := []struct {
		in       string
		provider Provider
		name     string
		wantErr  bool
	}{
		{"groq:llama-3.1-8b-instant", ProviderGroq, "llama-3.1-8b-instant", false},
		{"openai:gpt-4o-mini", ProviderOpenAI, "gpt-4o-mini", false},
		{"llama-3.1-8b-instant", ProviderGroq, "llama-3.1-8b-instant", false},
		{"mystery:model", "", "", true},
		{"groq:", "", "", true},
		{"", "", "", true},
	}
	for _, c := range cases {
		prov, name, err := ParseModel(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseModel(%q) expected error", c.in)
			}
			continue
		}
		if err != nil || prov != c.provider || name != c.name {
			t.Errorf("ParseModel(%q) = (%v,%q,%v), want (%v,%q)", c.in, prov, name, err, c.provider, c.name)
		}
	}
}

func chatOK(content string) string {
	resp := map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestChatParsesResponse(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		fmt.Fprint(w, chatOK("hello"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(ProviderGroq, srv.URL))
	result, err := c.Chat(context.Background(), "secret-key", ChatRequest{
		Model:    "groq:llama-3.1-8b-instant",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if result.Content != "hello" || result.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotPath != "/openai/v1/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestChatMissingChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(ProviderGroq, srv.URL))
	_, err := c.Chat(context.Background(), "k", ChatRequest{Model: "m"})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestChatWithRetryRecovers(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			http.Error(w, `{"error":{"message":"upstream sad"}}`, http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chatOK("recovered"))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(
		WithBaseURL(ProviderGroq, srv.URL),
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)

	result, err := c.ChatWithRetry(context.Background(), "k", ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("ChatWithRetry failed: %v", err)
	}
	if result.Content != "recovered" {
		t.Fatalf("content = %q", result.Content)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("backoff delays = %v, want [1s 2s]", delays)
	}
}

func TestChatWithRetryExhausts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(
		WithBaseURL(ProviderGroq, srv.URL),
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)

	_, err := c.ChatWithRetry(context.Background(), "k", ChatRequest{Model: "m"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError after exhaustion, got %v", err)
	}
	// Three retries: 1s, 2s, 4s.
	if len(delays) != 3 || delays[2] != 4*time.Second {
		t.Fatalf("delays = %v", delays)
	}
}

func TestChatWithRetryNonRetryable(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(ProviderGroq, srv.URL))
	_, err := c.ChatWithRetry(context.Background(), "bad", ChatRequest{Model: "m"})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (401 is not retryable)", attempts)
	}
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&APIError{StatusCode: 429}, true},
		{&APIError{StatusCode: 500}, true},
		{&APIError{StatusCode: 502}, true},
		{&APIError{StatusCode: 503}, true},
		{&APIError{StatusCode: 504}, true},
		{&APIError{StatusCode: 400}, false},
		{&APIError{StatusCode: 401}, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("lookup api.example: no such host"), true},
		{errors.New("context deadline exceeded (Client.Timeout exceeded)"), true},
		{errors.New("something else entirely"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestIsQuotaError(t *testing.T) {
	if !IsQuotaError(&APIError{StatusCode: 429, Message: "insufficient_quota: billing required"}) {
		t.Fatalf("quota message not detected")
	}
	if IsQuotaError(&APIError{StatusCode: 429, Message: "rate limit reached"}) {
		t.Fatalf("rate limit misclassified as quota")
	}
}

func TestRetryDelayCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(
		WithBaseURL(ProviderGroq, srv.URL),
		WithRetryPolicy(RetryPolicy{InitialDelay: 4 * time.Second, Factor: 2, MaxDelay: 10 * time.Second, MaxRetries: 3}),
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)

	_, _ = c.ChatWithRetry(context.Background(), "k", ChatRequest{Model: "m"})
	if len(delays) != 3 || delays[1] != 8*time.Second || delays[2] != 10*time.Second {
		t.Fatalf("delays = %v, want cap at 10s", delays)
	}
}
