package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/service"
)

var helloRepo = repo.ID{Owner: "octo", Name: "hello"}

func TestTreeFetchResolvesDefaultBranch(t *testing.T) {
	host := newFakeHost(sampleRepoFiles())
	host.branch = "trunk"
	svc := service.NewTreeService(host, time.Millisecond, 0)

	tree, err := svc.Fetch(context.Background(), helloRepo)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tree.Ref != "trunk" {
		t.Errorf("expected ref trunk, got %q", tree.Ref)
	}
	if b, _, _ := host.counts(); b != 1 {
		t.Errorf("expected 1 default-branch call, got %d", b)
	}
}

func TestTreeFetchExplicitRefSkipsBranchLookup(t *testing.T) {
	host := newFakeHost(sampleRepoFiles())
	svc := service.NewTreeService(host, time.Millisecond, 0)

	id := helloRepo
	id.Ref = "v1.2.0"
	tree, err := svc.Fetch(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Ref != "v1.2.0" {
		t.Errorf("got ref %q", tree.Ref)
	}
	if b, _, _ := host.counts(); b != 0 {
		t.Errorf("expected no default-branch call, got %d", b)
	}
}

func TestTreeFetchRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{"transient then ok", []error{fmt.Errorf("%w: 502", domain.ErrUpstream)}, nil, 2},
		{"timeout then ok", []error{fmt.Errorf("%w: slow", domain.ErrUpstreamTimeout)}, nil, 2},
		{"transient twice", []error{domain.ErrUpstream, domain.ErrUpstream}, domain.ErrUpstream, 2},
		{"not found", []error{domain.ErrNotFound}, domain.ErrNotFound, 1},
		{"rate limited", []error{&domain.RateLimitError{Service: "github", RetryAfter: time.Minute}}, domain.ErrRateLimited, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost(sampleRepoFiles())
			host.treeErrs = tt.errs
			svc := service.NewTreeService(host, time.Millisecond, 0)

			_, err := svc.Fetch(context.Background(), helloRepo)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if _, calls, _ := host.counts(); calls != tt.wantCalls {
				t.Errorf("expected %d tree calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestTreeFetchRateLimitKeepsRetryHint(t *testing.T) {
	host := newFakeHost(sampleRepoFiles())
	host.treeErrs = []error{&domain.RateLimitError{Service: "github", RetryAfter: 90 * time.Second}}
	svc := service.NewTreeService(host, time.Millisecond, 0)

	_, err := svc.Fetch(context.Background(), helloRepo)
	if d, ok := domain.RetryAfter(err); !ok || d != 90*time.Second {
		t.Errorf("expected 90s retry hint, got %v %v", d, ok)
	}
}

func TestTreeFetchTooLarge(t *testing.T) {
	t.Run("truncated by host", func(t *testing.T) {
		host := newFakeHost(sampleRepoFiles())
		host.truncated = true
		_, err := service.NewTreeService(host, time.Millisecond, 0).Fetch(context.Background(), helloRepo)
		if !errors.Is(err, domain.ErrRepositoryTooLarge) {
			t.Errorf("expected ErrRepositoryTooLarge, got %v", err)
		}
	})

	t.Run("over entry limit", func(t *testing.T) {
		host := newFakeHost(sampleRepoFiles())
		_, err := service.NewTreeService(host, time.Millisecond, 3).Fetch(context.Background(), helloRepo)
		if !errors.Is(err, domain.ErrRepositoryTooLarge) {
			t.Errorf("expected ErrRepositoryTooLarge, got %v", err)
		}
	})
}

func TestTreeFetchSkipsNoise(t *testing.T) {
	host := newFakeHost(nil)
	host.nodes = []repo.Node{
		{Path: "README.md", Kind: repo.KindFile},
		{Path: "node_modules", Kind: repo.KindDir},
		{Path: "node_modules/left-pad/index.js", Kind: repo.KindFile},
		{Path: "web/app.min.js", Kind: repo.KindFile},
		{Path: "web/app.js", Kind: repo.KindFile},
		{Path: "pkg/__pycache__/x.pyc", Kind: repo.KindFile},
		{Path: ".DS_Store", Kind: repo.KindFile},
	}
	tree, err := service.NewTreeService(host, time.Millisecond, 0).Fetch(context.Background(), helloRepo)
	if err != nil {
		t.Fatal(err)
	}
	files := tree.Files()
	if len(files) != 2 || files[0] != "README.md" || files[1] != "web/app.js" {
		t.Errorf("unexpected files after filtering: %v", files)
	}
}

func TestTreeFetchEmptyRepository(t *testing.T) {
	host := newFakeHost(nil)
	host.nodes = []repo.Node{{Path: "node_modules/x.js", Kind: repo.KindFile}}
	_, err := service.NewTreeService(host, time.Millisecond, 0).Fetch(context.Background(), helloRepo)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
