// Package github implements the source host port over the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/sourcehost"
	"github.com/BaoNguyen09/repo-explainer/internal/resilience"
	"github.com/BaoNguyen09/repo-explainer/internal/throttle"
)

const (
	hostName       = "github"
	defaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	acceptJSON     = "application/vnd.github+json"
	acceptRaw      = "application/vnd.github.raw+json"

	maxJSONBytes = 64 << 20 // recursive trees of large repos run to tens of MB
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Breaker    *resilience.Breaker
	Pool       *throttle.Pool
	HTTPClient *http.Client
}

// Client implements sourcehost.Host for GitHub.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *resilience.Breaker
	pool       *throttle.Pool
	now        func() time.Time
}

var _ sourcehost.Host = (*Client)(nil)

// New creates a GitHub client.
func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: opts.HTTPClient,
		breaker:    opts.Breaker,
		pool:       opts.Pool,
		now:        time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c
}

// Name returns "github".
func (c *Client) Name() string { return hostName }

func (c *Client) tokenFor(ctx context.Context) string {
	if tok, ok := sourcehost.TokenFrom(ctx); ok {
		return tok
	}
	return c.token
}

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context, id repo.ID) (string, error) {
	data, _, err := c.get(ctx, repoPath(id), acceptJSON, maxJSONBytes)
	if err != nil {
		return "", fmt.Errorf("github get repository %s: %w", id.FullName(), err)
	}
	var r struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("%w: github decode repository: %w", domain.ErrUpstream, err)
	}
	if r.DefaultBranch == "" {
		return "", fmt.Errorf("%w: github repository %s has no default branch", domain.ErrNotFound, id.FullName())
	}
	return r.DefaultBranch, nil
}

type treeResponse struct {
	SHA  string `json:"sha"`
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"` // blob | tree | commit
		Size int64  `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// Tree lists the repository recursively in one call. Submodule entries are skipped.
func (c *Client) Tree(ctx context.Context, id repo.ID, ref string) (*sourcehost.Listing, error) {
	path := repoPath(id) + "/git/trees/" + escapeRef(ref) + "?recursive=1"
	data, _, err := c.get(ctx, path, acceptJSON, maxJSONBytes)
	if err != nil {
		return nil, fmt.Errorf("github tree %s@%s: %w", id.FullName(), ref, err)
	}

	var tr treeResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("%w: github decode tree: %w", domain.ErrUpstream, err)
	}

	nodes := make([]repo.Node, 0, len(tr.Tree))
	for _, e := range tr.Tree {
		switch e.Type {
		case "blob":
			nodes = append(nodes, repo.Node{Path: e.Path, Kind: repo.KindFile, SizeBytes: e.Size})
		case "tree":
			nodes = append(nodes, repo.Node{Path: e.Path, Kind: repo.KindDir})
		}
	}
	return &sourcehost.Listing{Ref: ref, Nodes: nodes, Truncated: tr.Truncated}, nil
}

// File reads at most limit+1 bytes of the raw file content.
func (c *Client) File(ctx context.Context, id repo.ID, ref, filePath string, limit int64) (*sourcehost.FileContent, error) {
	path := repoPath(id) + "/contents/" + escapePath(filePath)
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}
	data, size, err := c.get(ctx, path, acceptRaw, limit+1)
	if err != nil {
		return nil, fmt.Errorf("github file %s: %w", filePath, err)
	}
	if size < int64(len(data)) {
		size = int64(len(data))
	}
	return &sourcehost.FileContent{Data: data, Size: size}, nil
}

// get performs a throttled, breaker-guarded GET and returns at most limit
// bytes of the body plus the declared content length.
func (c *Client) get(ctx context.Context, path, accept string, limit int64) ([]byte, int64, error) {
	var (
		data []byte
		size int64
	)
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		req.Header.Set("User-Agent", "repo-explainer")
		if tok := c.tokenFor(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		resp, err := c.httpClient.Do(req) //nolint:gosec // URL is built from the configured base URL and validated identifiers
		if err != nil {
			return domain.TransportError(ctx, hostName, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return c.statusError(resp, body)
		}

		data, err = io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return domain.TransportError(ctx, hostName, err)
		}
		size = resp.ContentLength
		return nil
	}

	err := c.pool.Run(ctx, func() error { return c.breaker.Execute(call) })
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, 0, fmt.Errorf("%w: github: %w", domain.ErrUpstream, err)
	case domain.Kind(err) == domain.ErrInternal && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		// Gave up waiting for a throttle slot.
		return nil, 0, domain.TransportError(ctx, hostName, err)
	default:
		return nil, 0, err
	}
	return data, size, nil
}

// statusError maps a GitHub error response onto the domain taxonomy.
func (c *Client) statusError(resp *http.Response, body []byte) error {
	detail := fmt.Errorf("github API %d: %s", resp.StatusCode, apiMessage(body))
	switch {
	case isRateLimited(resp, body):
		return &domain.RateLimitError{Service: hostName, RetryAfter: c.retryAfter(resp.Header), Err: detail}
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusConflict, // empty repository
		resp.StatusCode == http.StatusUnprocessableEntity, // unknown ref
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, detail)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, detail)
	default:
		return fmt.Errorf("%w: %w", domain.ErrUpstream, detail)
	}
}

func isRateLimited(resp *http.Response, body []byte) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
		return true
	}
	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}

func (c *Client) retryAfter(h http.Header) time.Duration {
	now := c.now()
	if d := resilience.ParseRetryAfter(h.Get("Retry-After"), now); d > 0 {
		return d
	}
	return resilience.ParseResetEpoch(h.Get("X-RateLimit-Reset"), now)
}

func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

func repoPath(id repo.ID) string {
	return "/repos/" + url.PathEscape(id.Owner) + "/" + url.PathEscape(id.Name)
}

// escapePath escapes each segment of a slash-separated path.
func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func escapeRef(ref string) string {
	if ref == "" {
		return "HEAD"
	}
	return escapePath(ref)
}
