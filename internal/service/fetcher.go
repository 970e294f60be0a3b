package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/port/sourcehost"
)

// errBinary marks content that is not worth showing to the model.
var errBinary = errors.New("binary content")

// Fetcher reads selected files through a fixed pool of workers.
type Fetcher struct {
	host     sourcehost.Host
	workers  int
	maxBytes int64
}

// NewFetcher creates a Fetcher.
func NewFetcher(host sourcehost.Host, cfg config.Fetcher) *Fetcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{host: host, workers: workers, maxBytes: cfg.MaxFileBytes}
}

// Fetch reads every selected path of id at id.Ref and returns the readable
// files in selection order. Missing files and transient failures drop the
// file; a rate limit aborts the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, id repo.ID, sel repo.Selection) ([]repo.FetchedFile, error) {
	if sel.Len() == 0 {
		return nil, fmt.Errorf("%w: no files selected for %s", domain.ErrNotFound, id.FullName())
	}

	results := make([]*repo.FetchedFile, sel.Len())
	errs := make([]error, sel.Len())
	jobs := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range sel.Paths {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range min(f.workers, sel.Len()) {
		g.Go(func() error {
			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				p := sel.Paths[i]
				ff, err := f.fetchOne(gctx, id, p)
				switch {
				case err == nil:
					results[i] = ff
				case errors.Is(err, domain.ErrRateLimited):
					return err
				case gctx.Err() != nil:
					return gctx.Err()
				case errors.Is(err, errBinary):
					slog.DebugContext(ctx, "skipping binary file", "repo", id.FullName(), "path", p)
				default:
					errs[i] = err
					slog.WarnContext(ctx, "file fetch failed, omitting", "repo", id.FullName(), "path", p, "error", err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch files: %w", err)
	}

	out := make([]repo.FetchedFile, 0, len(results))
	var lastErr error
	for i, r := range results {
		if r != nil {
			out = append(out, *r)
		}
		if errs[i] != nil {
			lastErr = errs[i]
		}
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("fetch files: none of %d files readable: %w", sel.Len(), lastErr)
		}
		return nil, fmt.Errorf("%w: none of the %d selected files of %s has text content", domain.ErrNotFound, sel.Len(), id.FullName())
	}
	return out, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, id repo.ID, p string) (*repo.FetchedFile, error) {
	fc, err := f.host.File(ctx, id, id.Ref, p, f.maxBytes)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(fc.Data, 0) >= 0 {
		return nil, errBinary
	}

	ff := &repo.FetchedFile{Path: p, Content: string(fc.Data), SizeBytes: fc.Size}
	if ff.SizeBytes < int64(len(fc.Data)) {
		ff.SizeBytes = int64(len(fc.Data))
	}
	if f.maxBytes > 0 && int64(len(ff.Content)) > f.maxBytes {
		ff.Content = truncateUTF8(ff.Content, int(f.maxBytes))
		ff.Truncated = true
	}
	return ff, nil
}
