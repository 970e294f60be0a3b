package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
)

// Generator produces the markdown explanation from a context bundle.
type Generator struct {
	provider   llm.Provider
	maxTokens  int
	retryDelay time.Duration
}

// NewGenerator creates a Generator.
func NewGenerator(provider llm.Provider, cfg config.LLM) *Generator {
	return &Generator{provider: provider, maxTokens: cfg.MaxTokens, retryDelay: cfg.RetryDelay}
}

// Generate calls the model once, retrying a single time on a transient failure.
func (g *Generator) Generate(ctx context.Context, bundle repo.ContextBundle, repoName, instructions string) (string, error) {
	system, user := buildExplainPrompt(repoName, bundle.Document(), instructions)

	resp, err := retryTransient(ctx, g.retryDelay, func() (*llm.Response, error) {
		return g.provider.Complete(ctx, llm.Request{
			System:    system,
			User:      user,
			MaxTokens: g.maxTokens,
		})
	})
	if err != nil {
		return "", fmt.Errorf("generate explanation: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned an empty explanation", domain.ErrProvider, g.provider.Name())
	}

	slog.InfoContext(ctx, "explanation generated",
		"repo", repoName,
		"model", resp.Model,
		"tokens_in", resp.TokensIn,
		"tokens_out", resp.TokensOut,
		"stop_reason", resp.StopReason)
	return text, nil
}
