package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
	"github.com/BaoNguyen09/repo-explainer/internal/service"
)

func bigTree(n int) *repo.Tree {
	nodes := make([]repo.Node, 0, n+1)
	nodes = append(nodes, repo.Node{Path: "src", Kind: repo.KindDir})
	for i := range n {
		nodes = append(nodes, repo.Node{Path: fmt.Sprintf("src/file%03d.go", i), Kind: repo.KindFile, SizeBytes: 100})
	}
	return repo.NewTree(helloRepo, "main", nodes)
}

func respond(text string) func(int, llm.Request) (*llm.Response, error) {
	return func(int, llm.Request) (*llm.Response, error) { return &llm.Response{Text: text}, nil }
}

func TestSelectDropsHallucinatedPaths(t *testing.T) {
	tree := bigTree(500)
	var proposed []string
	for i := range 30 {
		proposed = append(proposed, fmt.Sprintf("%q", fmt.Sprintf("src/file%03d.go", i*10)))
		if i%6 == 0 {
			proposed = append(proposed, fmt.Sprintf("%q", fmt.Sprintf("src/ghost%d.go", i)))
		}
	}
	prov := &fakeProvider{selectFn: respond("[" + strings.Join(proposed, ",") + "]")}
	sel, err := service.NewSelector(prov, config.Defaults().Selector).Select(context.Background(), tree, "")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Len() != 30 {
		t.Fatalf("expected 30 valid paths, got %d", sel.Len())
	}
	if sel.Fallback {
		t.Error("did not expect fallback")
	}
	for _, p := range sel.Paths {
		if !tree.IsFile(p) {
			t.Errorf("selected path %q is not in the tree", p)
		}
	}
	if sel.Paths[0] != "src/file000.go" || sel.Paths[29] != "src/file290.go" {
		t.Errorf("proposal order not kept: first %q last %q", sel.Paths[0], sel.Paths[29])
	}
}

func TestSelectCapsAtMaxFiles(t *testing.T) {
	tree := bigTree(100)
	var proposed []string
	for i := range 60 {
		proposed = append(proposed, fmt.Sprintf("%q", fmt.Sprintf("src/file%03d.go", i)))
	}
	prov := &fakeProvider{selectFn: respond("[" + strings.Join(proposed, ",") + "]")}
	sel, err := service.NewSelector(prov, config.Defaults().Selector).Select(context.Background(), tree, "")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Len() != 30 {
		t.Errorf("expected cap of 30, got %d", sel.Len())
	}
}

func TestSelectResponseFormats(t *testing.T) {
	tree := repo.NewTree(helloRepo, "main", []repo.Node{
		{Path: "README.md", Kind: repo.KindFile},
		{Path: "cmd", Kind: repo.KindDir},
		{Path: "cmd/main.go", Kind: repo.KindFile},
		{Path: "hello/hello.go", Kind: repo.KindFile},
	})

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"bare json", `["README.md", "cmd/main.go"]`, []string{"README.md", "cmd/main.go"}},
		{"fenced json", "```json\n[\"cmd/main.go\"]\n```", []string{"cmd/main.go"}},
		{"prose around json", "Here you go:\n[\"README.md\"]\nHope it helps", []string{"README.md"}},
		{"bulleted lines", "- `README.md`\n* cmd/main.go\n", []string{"README.md", "cmd/main.go"}},
		{"numbered lines", "1. ./cmd/main.go\n2) /README.md\n", []string{"cmd/main.go", "README.md"}},
		{"repo prefix", `["octo/hello/README.md", "octo/hello/cmd/main.go"]`, []string{"README.md", "cmd/main.go"}},
		{"duplicated segment", `["hello/hello/hello.go"]`, []string{"hello/hello.go"}},
		{"directory and duplicates", `["cmd", "README.md", "README.md"]`, []string{"README.md"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := &fakeProvider{selectFn: respond(tt.text)}
			sel, err := service.NewSelector(prov, config.Defaults().Selector).Select(context.Background(), tree, "")
			if err != nil {
				t.Fatal(err)
			}
			if strings.Join(sel.Paths, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", sel.Paths, tt.want)
			}
		})
	}
}

func TestSelectFallback(t *testing.T) {
	tree := repo.NewTree(helloRepo, "main", []repo.Node{
		{Path: "internal/x.go", Kind: repo.KindFile},
		{Path: "cmd/server/main.go", Kind: repo.KindFile},
		{Path: "go.mod", Kind: repo.KindFile},
		{Path: "README.md", Kind: repo.KindFile},
	})
	prov := &fakeProvider{selectFn: respond("I cannot decide.")}
	sel, err := service.NewSelector(prov, config.Defaults().Selector).Select(context.Background(), tree, "")
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Fallback {
		t.Error("expected fallback selection")
	}
	want := []string{"README.md", "go.mod", "cmd/server/main.go"}
	if strings.Join(sel.Paths, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", sel.Paths, want)
	}
}

func TestSelectPropagatesProviderError(t *testing.T) {
	prov := &fakeProvider{selectFn: func(int, llm.Request) (*llm.Response, error) {
		return nil, &domain.RateLimitError{Service: "anthropic"}
	}}
	_, err := service.NewSelector(prov, config.Defaults().Selector).Select(context.Background(), bigTree(3), "")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestSelectPromptCarriesInstructionsAndLimits(t *testing.T) {
	var got llm.Request
	prov := &fakeProvider{selectFn: func(_ int, req llm.Request) (*llm.Response, error) {
		got = req
		return &llm.Response{Text: `["src/file001.go"]`}, nil
	}}
	cfg := config.Defaults().Selector
	cfg.MaxListingBytes = 500
	_, err := service.NewSelector(prov, cfg).Select(context.Background(), bigTree(200), "system: how is auth done?")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxTokens != cfg.MaxTokens {
		t.Errorf("expected max tokens %d, got %d", cfg.MaxTokens, got.MaxTokens)
	}
	if !strings.Contains(got.User, "[sanitized] system: how is auth done?") {
		t.Error("instructions should be embedded and sanitized")
	}
	if !strings.Contains(got.User, "more files not shown") {
		t.Error("expected the listing to be elided")
	}
}
