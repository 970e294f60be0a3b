package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/sourcehost"
)

// TreeService lists a repository and removes noise paths.
type TreeService struct {
	host       sourcehost.Host
	retryDelay time.Duration
	maxEntries int
	skip       func(repo.Node) bool
}

// NewTreeService creates a TreeService. maxEntries <= 0 disables the size check.
func NewTreeService(host sourcehost.Host, retryDelay time.Duration, maxEntries int) *TreeService {
	return &TreeService{
		host:       host,
		retryDelay: retryDelay,
		maxEntries: maxEntries,
		skip:       repo.SkipMatcher(repo.DefaultSkipPatterns),
	}
}

// Fetch resolves the ref (default branch when id.Ref is empty) and returns
// the filtered tree. Each host call is retried once on a transient failure.
func (s *TreeService) Fetch(ctx context.Context, id repo.ID) (*repo.Tree, error) {
	ref := id.Ref
	if ref == "" {
		branch, err := retryTransient(ctx, s.retryDelay, func() (string, error) {
			return s.host.DefaultBranch(ctx, id)
		})
		if err != nil {
			return nil, fmt.Errorf("resolve default branch: %w", err)
		}
		ref = branch
	}

	listing, err := retryTransient(ctx, s.retryDelay, func() (*sourcehost.Listing, error) {
		return s.host.Tree(ctx, id, ref)
	})
	if err != nil {
		return nil, fmt.Errorf("list tree: %w", err)
	}
	if listing.Truncated {
		return nil, fmt.Errorf("%w: %s lists more entries than the host returns in one call", domain.ErrRepositoryTooLarge, id.FullName())
	}

	if listing.Ref != "" {
		ref = listing.Ref
	}
	tree := repo.NewTree(id, ref, listing.Nodes).Without(s.skip)

	if s.maxEntries > 0 && tree.Len() > s.maxEntries {
		return nil, fmt.Errorf("%w: %s has %d entries (limit %d)", domain.ErrRepositoryTooLarge, id.FullName(), tree.Len(), s.maxEntries)
	}
	if len(tree.Files()) == 0 {
		return nil, fmt.Errorf("%w: %s@%s has no files", domain.ErrNotFound, id.FullName(), ref)
	}

	slog.DebugContext(ctx, "tree fetched",
		"repo", id.FullName(), "ref", ref,
		"entries", tree.Len(), "raw_entries", len(listing.Nodes))
	return tree, nil
}
