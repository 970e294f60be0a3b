// Package llm defines the port interface for large-language-model providers.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/resilience"
)

// Request is a single-turn completion request.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Response is the result of a completion.
type Response struct {
	Text       string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
}

// Provider is the capability every LLM backend implements.
//
// Errors wrap the domain sentinels: domain.ErrProvider for auth, quota, or
// request failures; domain.ErrContentPolicy when the provider refuses the
// input; domain.ErrRepositoryTooLarge when the prompt exceeds the model's
// context; *domain.RateLimitError on throttling; domain.ErrUpstream and
// domain.ErrUpstreamTimeout for transient failures.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Options configures a provider instance.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	Breaker    *resilience.Breaker
	HTTPClient *http.Client // optional; overrides Timeout
}

// Client returns the HTTP client implied by the options.
func (o Options) Client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}
