package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	cfotel "github.com/BaoNguyen09/repo-explainer/internal/adapter/otel"
	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
	"github.com/BaoNguyen09/repo-explainer/internal/logger"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
	"github.com/BaoNguyen09/repo-explainer/internal/port/sourcehost"
)

// ExplainService runs the explanation pipeline:
// validating → fetching_tree → exploring_files → fetching_files →
// generating_explanation → completed | failed.
type ExplainService struct {
	trees     *TreeService
	selector  *Selector
	fetcher   *Fetcher
	builder   *ContextBuilder
	generator *Generator
	results   *ResultCache
	metrics   *cfotel.Metrics

	provider        string
	credentialKey   [32]byte
	maxInstructions int
	loc             *time.Location
	now             func() time.Time
}

// NewExplainService wires the pipeline stages from cfg. metrics may be nil.
func NewExplainService(cfg *config.Config, host sourcehost.Host, provider llm.Provider, results *ResultCache, metrics *cfotel.Metrics) *ExplainService {
	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		slog.Warn("unknown timezone, using UTC", "timezone", cfg.Server.Timezone, "error", err)
		loc = time.UTC
	}
	return &ExplainService{
		credentialKey:   credentialKey(cfg.Cache.CredentialSecret),
		trees:           NewTreeService(host, cfg.GitHub.RetryDelay, cfg.Explain.MaxTreeEntries),
		selector:        NewSelector(provider, cfg.Selector),
		fetcher:         NewFetcher(host, cfg.Fetcher),
		builder:         NewContextBuilder(cfg.Context),
		generator:       NewGenerator(provider, cfg.LLM),
		results:         results,
		metrics:         metrics,
		provider:        provider.Name(),
		maxInstructions: cfg.Explain.MaxInstructionsBytes,
		loc:             loc,
		now:             time.Now,
	}
}

// Provider returns the name of the explanation model provider.
func (s *ExplainService) Provider() string { return s.provider }

// Stream starts a run and returns its events: status events in stage
// order followed by exactly one result or error event. The channel is closed
// after the terminal event, or without one if ctx is cancelled.
func (s *ExplainService) Stream(ctx context.Context, q explanation.Query) <-chan explanation.Event {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	p := newProgress(ctx, func() time.Time { return s.now().In(s.loc) })
	go s.run(ctx, runID, q, p)
	return p.Events()
}

// Explain runs the pipeline to completion and returns only its outcome.
func (s *ExplainService) Explain(ctx context.Context, q explanation.Query) (*explanation.Result, error) {
	for ev := range s.Stream(ctx, q) {
		switch ev.Type {
		case explanation.EventResult:
			return ev.Result, nil
		case explanation.EventError:
			return nil, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: run ended without a result", domain.ErrInternal)
}

// Evict removes the cached explanation for q.
func (s *ExplainService) Evict(ctx context.Context, q explanation.Query) error {
	id, instr, err := q.Resolve(s.maxInstructions)
	if err != nil {
		return err
	}
	return s.results.Evict(ctx, s.request(ctx, id, instr))
}

func (s *ExplainService) run(ctx context.Context, runID string, q explanation.Query, p *progress) {
	defer p.Close()
	start := time.Now()
	s.metrics.RunStarted(ctx)

	label := q.Repository
	if label == "" {
		label = q.Owner + "/" + q.Repo
	}
	ctx, span := cfotel.StartRunSpan(ctx, runID, label, s.provider)
	var runErr error
	defer func() { cfotel.EndSpan(span, runErr) }()

	fail := func(err error) {
		runErr = s.translate(ctx, err)
		p.Fail(runErr)
		s.metrics.RunFinished(ctx, domain.Kind(runErr).Error(), time.Since(start))
		slog.InfoContext(ctx, "explanation failed", "error", runErr, "duration_ms", time.Since(start).Milliseconds())
	}

	p.Stage(explanation.StageValidating)
	id, instr, err := q.Resolve(s.maxInstructions)
	if err != nil {
		fail(err)
		return
	}
	req := s.request(ctx, id, instr)
	if ctx.Err() != nil {
		return
	}

	res, hit, err := s.results.GetOrCompute(ctx, req, p.Stage, func(fctx context.Context, onStage func(explanation.Stage)) (*explanation.Result, error) {
		return s.compute(fctx, id, instr, onStage)
	})
	if ctx.Err() != nil {
		slog.InfoContext(ctx, "explanation cancelled", "repo", id.String())
		return
	}
	if err != nil {
		fail(err)
		return
	}

	if hit {
		s.metrics.CacheHit(ctx)
	}
	p.Result(res)
	s.metrics.RunFinished(ctx, "", time.Since(start))
	slog.InfoContext(ctx, "explanation completed",
		"repo", id.String(), "cache", hit, "duration_ms", time.Since(start).Milliseconds())
}

// request builds the cache identity of a run. A caller token scopes it to
// that token.
func (s *ExplainService) request(ctx context.Context, id repo.ID, instr string) explanation.Request {
	req := explanation.Request{Repo: id, Instructions: instr, Provider: s.provider}
	if tok, ok := sourcehost.TokenFrom(ctx); ok {
		req.Credential = explanation.CredentialFingerprint(s.credentialKey, tok)
	}
	return req
}

func credentialKey(secret string) [32]byte {
	if secret != "" {
		return blake2b.Sum256([]byte(secret))
	}
	var key [32]byte
	_, _ = rand.Read(key[:])
	return key
}

// compute runs every stage after validation. Cancellation is checked before
// each stage starts its external calls.
func (s *ExplainService) compute(ctx context.Context, id repo.ID, instr string, onStage func(explanation.Stage)) (*explanation.Result, error) {
	enter := func(st explanation.Stage) (context.Context, func(error), error) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		onStage(st)
		sctx, span := cfotel.StartStageSpan(ctx, string(st))
		return sctx, func(err error) { cfotel.EndSpan(span, err) }, nil
	}

	sctx, end, err := enter(explanation.StageFetchingTree)
	if err != nil {
		return nil, err
	}
	tree, err := s.trees.Fetch(sctx, id)
	end(err)
	if err != nil {
		return nil, err
	}

	sctx, end, err = enter(explanation.StageExploringFiles)
	if err != nil {
		return nil, err
	}
	sel, err := s.selector.Select(sctx, tree, instr)
	end(err)
	if err != nil {
		return nil, err
	}

	sctx, end, err = enter(explanation.StageFetchingFiles)
	if err != nil {
		return nil, err
	}
	files, err := s.fetcher.Fetch(sctx, repo.ID{Owner: id.Owner, Name: id.Name, Ref: tree.Ref}, sel)
	end(err)
	if err != nil {
		return nil, err
	}

	bundle := s.builder.Build(tree, files)
	s.metrics.Fetched(ctx, len(files), len(bundle.Dropped), bundle.TotalBytes)
	if len(bundle.Dropped) > 0 {
		slog.InfoContext(ctx, "context budget reached, dropping files",
			"repo", id.String(), "kept", len(bundle.Files), "dropped", len(bundle.Dropped))
	}

	sctx, end, err = enter(explanation.StageGeneratingExplanation)
	if err != nil {
		return nil, err
	}
	text, err := s.generator.Generate(sctx, bundle, id.FullName(), instr)
	end(err)
	if err != nil {
		return nil, err
	}

	return &explanation.Result{
		Explanation: text,
		Repo:        id.FullName(),
		Timestamp:   s.now().In(s.loc),
	}, nil
}

// translate keeps classified errors and hides everything else behind
// ErrInternal.
func (s *ExplainService) translate(ctx context.Context, err error) error {
	if !errors.Is(domain.Kind(err), domain.ErrInternal) {
		return err
	}
	slog.ErrorContext(ctx, "unclassified pipeline error", "error", err)
	return fmt.Errorf("%w: run %s", domain.ErrInternal, logger.RunID(ctx))
}
