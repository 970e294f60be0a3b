package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
	"github.com/BaoNguyen09/repo-explainer/internal/service"
)

func testBundle() repo.ContextBundle {
	return repo.ContextBundle{
		TreeSummary: "octo/hello/\n  README.md\n",
		Files:       []repo.FetchedFile{{Path: "README.md", Content: "# Hello"}},
	}
}

func TestGenerateRetriesOnceOnTransient(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{"ok", nil, nil, 1},
		{"upstream then ok", []error{fmt.Errorf("%w: 529", domain.ErrUpstream)}, nil, 2},
		{"upstream twice", []error{domain.ErrUpstream, domain.ErrUpstream}, domain.ErrUpstream, 2},
		{"provider error", []error{fmt.Errorf("%w: invalid key", domain.ErrProvider)}, domain.ErrProvider, 1},
		{"content policy", []error{domain.ErrContentPolicy}, domain.ErrContentPolicy, 1},
		{"too large", []error{domain.ErrRepositoryTooLarge}, domain.ErrRepositoryTooLarge, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := &fakeProvider{explainFn: func(n int, _ llm.Request) (*llm.Response, error) {
				if n <= len(tt.errs) {
					return nil, tt.errs[n-1]
				}
				return &llm.Response{Text: "  # Hello explained  "}, nil
			}}
			text, err := service.NewGenerator(prov, testConfig().LLM).Generate(context.Background(), testBundle(), "octo/hello", "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil || text != "# Hello explained" {
				t.Fatalf("got (%q, %v)", text, err)
			}
			if _, calls := prov.counts(); calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestGenerateEmptyTextIsProviderError(t *testing.T) {
	prov := &fakeProvider{explainFn: respond("   ")}
	_, err := service.NewGenerator(prov, testConfig().LLM).Generate(context.Background(), testBundle(), "octo/hello", "")
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
}

func TestGeneratePrompts(t *testing.T) {
	cfg := testConfig().LLM

	prov := &fakeProvider{}
	if _, err := service.NewGenerator(prov, cfg).Generate(context.Background(), testBundle(), "octo/hello", ""); err != nil {
		t.Fatal(err)
	}
	overview := prov.lastExplain
	if !strings.Contains(overview.User, "Explain this repository: octo/hello") {
		t.Error("overview prompt should name the repository")
	}
	if !strings.Contains(overview.User, "### File: README.md") {
		t.Error("overview prompt should embed the context document")
	}
	if !strings.Contains(overview.System, "Mermaid") {
		t.Error("system prompt should ask for Mermaid diagrams")
	}
	if overview.MaxTokens != cfg.MaxTokens {
		t.Errorf("expected max tokens %d, got %d", cfg.MaxTokens, overview.MaxTokens)
	}

	prov = &fakeProvider{}
	if _, err := service.NewGenerator(prov, cfg).Generate(context.Background(), testBundle(), "octo/hello", "How is the CLI wired?"); err != nil {
		t.Fatal(err)
	}
	focused := prov.lastExplain
	if !strings.Contains(focused.User, "How is the CLI wired?") {
		t.Error("instruction prompt should carry the instructions")
	}
	if strings.Contains(focused.User, "REQUIRED OUTPUT FORMAT") {
		t.Error("instruction prompt should not use the overview template")
	}
}
