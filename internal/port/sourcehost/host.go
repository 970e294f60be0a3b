// Package sourcehost defines the port interface for the repository source host.
package sourcehost

import (
	"context"

	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
)

// Listing is the raw recursive tree returned by the host.
type Listing struct {
	Ref       string      // ref the listing was resolved at
	Nodes     []repo.Node // host order
	Truncated bool        // host could not return the full tree in one response
}

// FileContent is the possibly partial body of one file.
type FileContent struct {
	Data []byte // at most limit+1 bytes, so callers can detect overflow
	Size int64  // full size when the host reports it, else len(Data)
}

// Host is the port interface for a source-control host.
//
// Errors wrap the domain sentinels: domain.ErrNotFound for a missing or
// inaccessible repository, ref, or path; *domain.RateLimitError when the
// host throttles; domain.ErrUpstream or domain.ErrUpstreamTimeout for
// other failures.
type Host interface {
	// Name returns the host identifier (e.g. "github").
	Name() string

	// DefaultBranch returns the default branch of the repository.
	DefaultBranch(ctx context.Context, id repo.ID) (string, error)

	// Tree lists every entry of the repository at ref in a single logical call.
	Tree(ctx context.Context, id repo.ID, ref string) (*Listing, error)

	// File reads the raw content of path at ref, stopping after limit+1 bytes.
	File(ctx context.Context, id repo.ID, ref, path string, limit int64) (*FileContent, error)
}

type tokenKey struct{}

// WithToken attaches a caller credential that overrides the configured host
// token for calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the caller credential stored by WithToken.
func TokenFrom(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}
