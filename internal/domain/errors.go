// Package domain provides shared domain-level sentinel errors.
//
// Every failure that leaves a pipeline stage wraps exactly one of these
// sentinels so callers can classify it with errors.Is.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidInput indicates a malformed repository identifier or instructions.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the repository, ref, or file does not exist or is not accessible.
	ErrNotFound = errors.New("not found")

	// ErrRepositoryTooLarge indicates the tree or content cannot fit the configured budgets.
	ErrRepositoryTooLarge = errors.New("repository too large")

	// ErrRateLimited indicates the source host or LLM provider is throttling requests.
	ErrRateLimited = errors.New("rate limited")

	// ErrProvider indicates an LLM call could not be completed (auth, quota, bad request).
	ErrProvider = errors.New("llm provider error")

	// ErrContentPolicy indicates the LLM provider refused the input.
	ErrContentPolicy = errors.New("content policy violation")

	// ErrUpstream indicates a transient failure of an external service.
	ErrUpstream = errors.New("upstream error")

	// ErrUpstreamTimeout indicates an external service did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrInternal indicates an unexpected fault. Its detail is never shown to callers.
	ErrInternal = errors.New("internal error")
)

// kinds lists the sentinels in classification order.
var kinds = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrRepositoryTooLarge,
	ErrRateLimited,
	ErrContentPolicy,
	ErrProvider,
	ErrUpstreamTimeout,
	ErrUpstream,
	ErrInternal,
}

// RateLimitError carries the retry hint of a throttling response.
// It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	Service    string        // "github", "anthropic", ...
	RetryAfter time.Duration // zero when the service gave no hint
	Err        error         // optional underlying cause
}

func (e *RateLimitError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	b.WriteString(": rate limited")
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter.Round(time.Second))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports ErrRateLimited as a match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Unwrap returns the underlying cause.
func (e *RateLimitError) Unwrap() error { return e.Err }

// Kind returns the sentinel that err wraps. Errors wrapping no sentinel
// are reported as ErrInternal. Kind(nil) is nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// RetryAfter extracts the retry hint from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Transient reports whether err is worth one bounded retry.
func Transient(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrUpstreamTimeout)
}

// UserMessage renders a human-readable detail string for err that
// distinguishes its kind without leaking internal detail.
func UserMessage(err error) string {
	switch Kind(err) {
	case nil:
		return ""
	case ErrInvalidInput:
		return "Invalid request: " + stripKind(err, ErrInvalidInput)
	case ErrNotFound:
		return "Repository not found or not accessible. Please check the owner and repository name."
	case ErrRepositoryTooLarge:
		return "This repository has too much content to analyze (over the model's limit). Try a smaller repo or a specific branch."
	case ErrRateLimited:
		if d, ok := RetryAfter(err); ok {
			return fmt.Sprintf("Rate limit exceeded. Please try again in %s.", d.Round(time.Second))
		}
		return "Rate limit exceeded. Please try again later."
	case ErrContentPolicy:
		return "The AI service declined to process this repository."
	case ErrProvider:
		return "The AI service could not complete the request. Please try again later."
	case ErrUpstreamTimeout:
		return "An upstream service timed out. Please try again in a moment."
	case ErrUpstream:
		return "Could not reach an upstream service. Check your connection or try again in a moment."
	default:
		return "An error occurred internally on the server"
	}
}

// stripKind returns the part of err's message that follows the sentinel text.
func stripKind(err, kind error) string {
	msg := err.Error()
	if i := strings.Index(msg, kind.Error()+": "); i >= 0 {
		return msg[i+len(kind.Error())+2:]
	}
	return msg
}
