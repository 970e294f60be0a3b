package service_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/cache"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
	"github.com/BaoNguyen09/repo-explainer/internal/port/sourcehost"
	"github.com/BaoNguyen09/repo-explainer/internal/service"
)

// --- Source host ---

type fakeHost struct {
	mu sync.Mutex

	branch    string
	branchErr error
	nodes     []repo.Node
	truncated bool
	treeErrs  []error // consumed one per Tree call before succeeding
	files     map[string]string
	fileErrs  map[string]error
	fileDelay time.Duration
	// private, when set, hides the repository from callers without this token.
	private string

	branchCalls int
	treeCalls   int
	fileCalls   int
	inFlight    int
	maxInFlight int
}

func newFakeHost(files map[string]string) *fakeHost {
	h := &fakeHost{branch: "main", files: files, fileErrs: map[string]error{}}
	for p, content := range files {
		h.nodes = append(h.nodes, repo.Node{Path: p, Kind: repo.KindFile, SizeBytes: int64(len(content))})
	}
	return h
}

func (h *fakeHost) Name() string { return "fake" }

func (h *fakeHost) visible(ctx context.Context) bool {
	if h.private == "" {
		return true
	}
	tok, _ := sourcehost.TokenFrom(ctx)
	return tok == h.private
}

func (h *fakeHost) DefaultBranch(ctx context.Context, _ repo.ID) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branchCalls++
	if !h.visible(ctx) {
		return "", domain.ErrNotFound
	}
	return h.branch, h.branchErr
}

func (h *fakeHost) Tree(ctx context.Context, _ repo.ID, ref string) (*sourcehost.Listing, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.treeCalls++
	if !h.visible(ctx) {
		return nil, domain.ErrNotFound
	}
	if len(h.treeErrs) > 0 {
		err := h.treeErrs[0]
		h.treeErrs = h.treeErrs[1:]
		return nil, err
	}
	return &sourcehost.Listing{Ref: ref, Nodes: h.nodes, Truncated: h.truncated}, nil
}

func (h *fakeHost) File(ctx context.Context, _ repo.ID, _, path string, limit int64) (*sourcehost.FileContent, error) {
	h.mu.Lock()
	h.fileCalls++
	h.inFlight++
	h.maxInFlight = max(h.maxInFlight, h.inFlight)
	delay := h.fileDelay
	err := h.fileErrs[path]
	content, ok := h.files[path]
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.inFlight--
		h.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	data := []byte(content)
	if int64(len(data)) > limit+1 {
		data = data[:limit+1]
	}
	return &sourcehost.FileContent{Data: data, Size: int64(len(content))}, nil
}

func (h *fakeHost) counts() (branch, tree, file int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.branchCalls, h.treeCalls, h.fileCalls
}

// --- LLM provider ---

// fakeProvider routes selector and explanation calls to separate scripts.
type fakeProvider struct {
	mu sync.Mutex

	selectFn  func(n int, req llm.Request) (*llm.Response, error)
	explainFn func(n int, req llm.Request) (*llm.Response, error)

	selectCalls  int
	explainCalls int
	lastExplain  llm.Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if strings.Contains(req.System, "JSON array of file paths") {
		p.selectCalls++
		n, fn := p.selectCalls, p.selectFn
		p.mu.Unlock()
		if fn == nil {
			return &llm.Response{Text: `["README.md"]`}, nil
		}
		return fn(n, req)
	}
	p.explainCalls++
	p.lastExplain = req
	n, fn := p.explainCalls, p.explainFn
	p.mu.Unlock()
	if fn == nil {
		return &llm.Response{Text: "# Explanation", Model: "fake-1"}, nil
	}
	return fn(n, req)
}

func (p *fakeProvider) counts() (selectCalls, explainCalls int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectCalls, p.explainCalls
}

// --- Cache ---

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// --- Helpers ---

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.GitHub.RetryDelay = time.Millisecond
	cfg.LLM.RetryDelay = time.Millisecond
	return &cfg
}

func newTestResultCache(store cache.Cache) *service.ResultCache {
	rc, err := service.NewResultCache(store, time.Hour)
	if err != nil {
		panic(err)
	}
	return rc
}

func sampleRepoFiles() map[string]string {
	return map[string]string{
		"README.md":   "# Hello\nA sample project.\n",
		"go.mod":      "module example.com/hello\n",
		"main.go":     "package main\n\nfunc main() {}\n",
		"cmd/cli.go":  "package cmd\n",
		"docs/api.md": "API docs\n",
	}
}
