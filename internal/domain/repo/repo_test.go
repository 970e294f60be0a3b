package repo

import (
	"errors"
	"strings"
	"testing"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ID
		wantErr bool
	}{
		{"shorthand", "golang/go", ID{Owner: "golang", Name: "go"}, false},
		{"https url", "https://github.com/golang/go", ID{Owner: "golang", Name: "go"}, false},
		{"http url", "http://github.com/golang/go/", ID{Owner: "golang", Name: "go"}, false},
		{"www host", "https://www.github.com/golang/go.git", ID{Owner: "golang", Name: "go"}, false},
		{"bare host path", "github.com/spf13/cobra", ID{Owner: "spf13", Name: "cobra"}, false},
		{"tree ref", "https://github.com/spf13/cobra/tree/v1.8.0", ID{Owner: "spf13", Name: "cobra", Ref: "v1.8.0"}, false},
		{"blob ref", "https://github.com/spf13/cobra/blob/main/README.md", ID{Owner: "spf13", Name: "cobra", Ref: "main"}, false},
		{"query string", "https://github.com/a/b?tab=readme", ID{Owner: "a", Name: "b"}, false},
		{"dotted name", "a/b.c-d_e", ID{Owner: "a", Name: "b.c-d_e"}, false},
		{"not a url", "not a url", ID{}, true},
		{"foreign host", "http://example.com/x", ID{}, true},
		{"empty", "   ", ID{}, true},
		{"single segment", "golang", ID{}, true},
		{"extra path", "golang/go/src", ID{}, true},
		{"bad owner", "-bad/go", ID{}, true},
		{"dot name", "owner/..", ID{}, true},
		{"host only", "https://github.com/golang", ID{}, true},
		{"bad ref", "https://github.com/a/b/tree/..x", ID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %+v", tt.raw, got)
				}
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseQuery(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIDString(t *testing.T) {
	id := ID{Owner: "o", Name: "r"}
	if id.String() != "o/r" {
		t.Errorf("unexpected %q", id.String())
	}
	id.Ref = "dev"
	if id.String() != "o/r@dev" {
		t.Errorf("unexpected %q", id.String())
	}
}

func TestValidateRef(t *testing.T) {
	for _, ok := range []string{"", "main", "release/1.2", "v1.0.0", "abc123"} {
		if err := ValidateRef(ok); err != nil {
			t.Errorf("ValidateRef(%q) unexpected error: %v", ok, err)
		}
	}
	for _, bad := range []string{"-x", "a..b", "a b", "a:b", strings.Repeat("a", 256)} {
		if err := ValidateRef(bad); err == nil {
			t.Errorf("ValidateRef(%q) expected error", bad)
		}
	}
}

func sampleTree() *Tree {
	return NewTree(ID{Owner: "o", Name: "r"}, "main", []Node{
		{Path: "README.md", Kind: KindFile, SizeBytes: 10},
		{Path: "cmd", Kind: KindDir},
		{Path: "cmd/app/main.go", Kind: KindFile, SizeBytes: 20},
		{Path: "node_modules", Kind: KindDir},
		{Path: "node_modules/left-pad/index.js", Kind: KindFile},
		{Path: "web/app.min.js", Kind: KindFile},
		{Path: "README.md", Kind: KindFile, SizeBytes: 99},
	})
}

func TestNewTreeDeduplicates(t *testing.T) {
	tree := sampleTree()
	if tree.Len() != 6 {
		t.Fatalf("expected 6 nodes, got %d", tree.Len())
	}
	n, ok := tree.Lookup("README.md")
	if !ok || n.SizeBytes != 10 {
		t.Errorf("expected first README.md entry, got %+v", n)
	}
	if tree.IsFile("cmd") {
		t.Error("directory reported as file")
	}
	if !tree.IsFile("cmd/app/main.go") {
		t.Error("file not found")
	}
}

func TestTreeWithoutSkipPatterns(t *testing.T) {
	tree := sampleTree().Without(SkipMatcher(DefaultSkipPatterns))
	got := tree.Files()
	want := []string{"README.md", "cmd/app/main.go"}
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if _, ok := tree.Lookup("node_modules"); ok {
		t.Error("skipped directory still present")
	}
}

func TestContextBundleDocument(t *testing.T) {
	b := ContextBundle{
		TreeSummary: "README.md\n",
		Files: []FetchedFile{
			{Path: "README.md", Content: "hello"},
			{Path: "big.go", Content: "package x\n", Truncated: true},
		},
	}
	doc := b.Document()
	for _, want := range []string{TreeHeader, "### File: README.md", "hello\n", "### File: big.go", "[truncated]"} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
	if strings.Index(doc, "### File: README.md") > strings.Index(doc, "### File: big.go") {
		t.Error("files rendered out of order")
	}
}

func TestContextBundleDocumentWithoutSummary(t *testing.T) {
	doc := ContextBundle{Files: []FetchedFile{{Path: "a", Content: "x\n"}}}.Document()
	if strings.Contains(doc, TreeHeader) {
		t.Errorf("header rendered without a summary:\n%s", doc)
	}
	if doc != FileSection(FetchedFile{Path: "a", Content: "x\n"}) {
		t.Errorf("unexpected document %q", doc)
	}
}
