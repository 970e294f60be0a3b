package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
)

// contextOverflowMarkers are substrings providers use when a prompt exceeds
// the model's context window.
var contextOverflowMarkers = []string{
	"prompt is too long",
	"context length",
	"context_length_exceeded",
	"maximum context",
	"too many tokens",
	"input token count",
}

// StatusError classifies a non-2xx provider response into a domain error.
func StatusError(service string, status int, body string, retryAfter time.Duration) error {
	detail := fmt.Errorf("%s API error %d: %s", service, status, truncateBody(body))
	lower := strings.ToLower(body)

	switch {
	case status == http.StatusTooManyRequests:
		return &domain.RateLimitError{Service: service, RetryAfter: retryAfter, Err: detail}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, detail)
	case status >= 500:
		// Includes Anthropic's 529 overloaded.
		return fmt.Errorf("%w: %w", domain.ErrUpstream, detail)
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		for _, m := range contextOverflowMarkers {
			if strings.Contains(lower, m) {
				return fmt.Errorf("%w: %w", domain.ErrRepositoryTooLarge, detail)
			}
		}
		if status == http.StatusRequestEntityTooLarge {
			return fmt.Errorf("%w: %w", domain.ErrRepositoryTooLarge, detail)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrProvider, detail)
}

// CountsAsOutage reports whether err should trip a provider circuit breaker.
func CountsAsOutage(err error) bool {
	return domain.Transient(err)
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
