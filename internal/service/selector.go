package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
)

// fallbackFiles are tried in order when the model proposes nothing usable.
var fallbackFiles = []string{
	"README.md", "README.rst", "README.txt", "README",
	"package.json", "requirements.txt", "go.mod", "Cargo.toml", "pom.xml",
	"build.gradle", "setup.py", "pyproject.toml", "Pipfile", ".env.example",
	"Dockerfile", "docker-compose.yml", "Makefile", "CONTRIBUTING.md",
	"package-lock.json", "yarn.lock",
	"main.go", "cmd/*/main.go", "main.py", "app.py", "index.js",
	"src/main.rs", "src/index.ts", "src/main.ts", "src/index.js",
}

// listingReserve keeps room for the elision line under the listing cap.
const listingReserve = 64

// Selector asks the model which files best explain a repository.
type Selector struct {
	provider llm.Provider
	cfg      config.Selector
}

// NewSelector creates a Selector.
func NewSelector(provider llm.Provider, cfg config.Selector) *Selector {
	return &Selector{provider: provider, cfg: cfg}
}

// Select returns at most cfg.MaxFiles paths that exist as files in tree.
// Provider failures are returned unchanged in kind; an unusable answer
// falls back to well-known project files.
func (s *Selector) Select(ctx context.Context, tree *repo.Tree, instructions string) (repo.Selection, error) {
	listing := condensedListing(tree, s.cfg.MaxListingBytes)
	system, user := buildSelectorPrompt(tree.Repo.FullName(), listing, instructions, s.cfg.MaxFiles)

	resp, err := s.provider.Complete(ctx, llm.Request{
		System:    system,
		User:      user,
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return repo.Selection{}, fmt.Errorf("select files: %w", err)
	}

	raw := parsePaths(resp.Text)
	paths := validatePaths(tree, raw, s.cfg.MaxFiles)
	slog.DebugContext(ctx, "files selected",
		"repo", tree.Repo.FullName(), "proposed", len(raw), "accepted", len(paths))

	if len(paths) > 0 {
		return repo.Selection{Paths: paths}, nil
	}

	fb := fallbackPaths(tree, s.cfg.MaxFiles)
	slog.InfoContext(ctx, "selector returned no usable paths, using fallback",
		"repo", tree.Repo.FullName(), "fallback", len(fb), "response", truncate(resp.Text, 200))
	return repo.Selection{Paths: fb, Fallback: true}, nil
}

// condensedListing renders file paths in tree order, eliding the tail once
// maxBytes would be exceeded.
func condensedListing(tree *repo.Tree, maxBytes int) string {
	files := tree.Files()
	var b strings.Builder
	for i, f := range files {
		if maxBytes > 0 && b.Len()+len(f)+1 > maxBytes-listingReserve {
			fmt.Fprintf(&b, "... (%d more files not shown)\n", len(files)-i)
			break
		}
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return b.String()
}

// parsePaths reads a JSON array of strings, falling back to one path per line.
func parsePaths(text string) []string {
	if arr, ok := extractJSONArray(text); ok {
		var paths []string
		if err := json.Unmarshal([]byte(arr), &paths); err == nil {
			return paths
		}
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimLeft(line, "-*+• \t")
		line = stripNumbering(line)
		line = strings.Trim(line, "`\"', ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// stripNumbering removes a leading "12." or "12)" list marker.
func stripNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// validatePaths normalises proposed paths and keeps unique existing files, in
// proposal order, up to max.
func validatePaths(tree *repo.Tree, proposed []string, max int) []string {
	prefix := tree.Repo.FullName() + "/"
	seen := make(map[string]bool, len(proposed))
	var out []string
	for _, p := range proposed {
		norm, ok := normalizePath(tree, p, prefix)
		if !ok || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// normalizePath repairs common model mistakes and reports whether the result
// names a file in tree.
func normalizePath(tree *repo.Tree, p, repoPrefix string) (string, bool) {
	p = strings.TrimSpace(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimLeft(p, "/")
	for len(p) > len(repoPrefix) && strings.EqualFold(p[:len(repoPrefix)], repoPrefix) && !tree.IsFile(p) {
		p = p[len(repoPrefix):]
	}
	if tree.IsFile(p) {
		return p, true
	}

	parts := strings.Split(p, "/")
	for len(parts) > 1 && parts[0] == parts[1] {
		parts = parts[1:]
		if c := strings.Join(parts, "/"); tree.IsFile(c) {
			return c, true
		}
	}
	return "", false
}

// fallbackPaths returns well-known project files present in tree.
func fallbackPaths(tree *repo.Tree, max int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) bool {
		if seen[p] {
			return false
		}
		seen[p] = true
		out = append(out, p)
		return max > 0 && len(out) == max
	}

	files := tree.Files()
	for _, pattern := range fallbackFiles {
		if !strings.ContainsAny(pattern, "*?[") {
			if tree.IsFile(pattern) && add(pattern) {
				return out
			}
			continue
		}
		for _, f := range files {
			if ok, _ := path.Match(pattern, f); ok && add(f) {
				return out
			}
		}
	}
	return out
}
