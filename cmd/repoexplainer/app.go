package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/adapter/github"
	cfhttp "github.com/BaoNguyen09/repo-explainer/internal/adapter/http"
	"github.com/BaoNguyen09/repo-explainer/internal/adapter/nats"
	"github.com/BaoNguyen09/repo-explainer/internal/adapter/natskv"
	cfotel "github.com/BaoNguyen09/repo-explainer/internal/adapter/otel"
	"github.com/BaoNguyen09/repo-explainer/internal/adapter/postgres"
	"github.com/BaoNguyen09/repo-explainer/internal/adapter/ristretto"
	"github.com/BaoNguyen09/repo-explainer/internal/adapter/tiered"
	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/port/cache"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
	"github.com/BaoNguyen09/repo-explainer/internal/resilience"
	"github.com/BaoNguyen09/repo-explainer/internal/service"
	"github.com/BaoNguyen09/repo-explainer/internal/throttle"
)

// l1Expire caps how long an entry stays in process memory in front of a
// shared L2 backend.
const l1Expire = time.Hour

// app is the wired explanation pipeline plus the resources it holds.
type app struct {
	svc     *service.ExplainService
	results *service.ResultCache
	checks  map[string]cfhttp.HealthCheck
	closers []func()
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// newApp connects the configured cache backend and builds the pipeline.
// metrics may be nil.
func newApp(ctx context.Context, cfg *config.Config, metrics *cfotel.Metrics) (_ *app, err error) {
	a := &app{checks: make(map[string]cfhttp.HealthCheck)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	provider, err := newProvider(cfg.LLM, resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithFailurePredicate(llm.CountsAsOutage)))
	if err != nil {
		return nil, err
	}
	if h, ok := provider.(interface {
		Health(context.Context) (bool, error)
	}); ok {
		a.checks["llm"] = func(ctx context.Context) error {
			_, err := h.Health(ctx)
			return err
		}
	}

	host := github.New(github.Options{
		BaseURL: cfg.GitHub.APIURL,
		Token:   cfg.GitHub.Token,
		Timeout: cfg.GitHub.Timeout,
		Breaker: resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
			resilience.WithFailurePredicate(domain.Transient)),
		Pool: throttle.NewPool(cfg.GitHub.MaxConcurrent),
	})

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.results, err = service.NewResultCache(store, cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}
	a.onClose(a.results.Close)

	a.svc = service.NewExplainService(cfg, host, provider, a.results, metrics)
	slog.Info("pipeline ready", "provider", provider.Name(), "cache", cfg.Cache.Backend)
	return a, nil
}

func newProvider(cfg config.LLM, breaker *resilience.Breaker) (llm.Provider, error) {
	p, err := llm.New(cfg.Provider, llm.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		Breaker: breaker,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider %q (available: %v): %w", cfg.Provider, llm.Available(), err)
	}
	return p, nil
}

// openStore returns the result cache backend: an in-process ristretto cache,
// tiered in front of NATS KV or PostgreSQL when one is configured.
func (a *app) openStore(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.onClose(l1.Close)

	var l2 cache.Cache
	switch cfg.Cache.Backend {
	case "nats":
		conn, err := nats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		a.onClose(func() {
			if err := conn.Close(); err != nil {
				slog.Warn("nats close failed", "error", err)
			}
		})
		kv, err := conn.KeyValue(ctx, cfg.Cache.NATSBucket, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		a.checks["nats"] = func(context.Context) error {
			if !conn.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}
		l2 = natskv.New(kv, "explain")

	case "postgres":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.onClose(pool.Close)
		pg := postgres.NewCache(pool)
		a.checks["postgres"] = pg.Healthy
		l2 = pg

	default:
		return l1, nil
	}
	return tiered.New(l1, l2, l1Expire), nil
}
