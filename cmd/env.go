package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rentcomp/internal/discovery"
	"github.com/sells-group/rentcomp/internal/insights"
	"github.com/sells-group/rentcomp/internal/match"
	"github.com/sells-group/rentcomp/internal/resilience"
	"github.com/sells-group/rentcomp/internal/store"
	"github.com/sells-group/rentcomp/internal/subject"
	"github.com/sells-group/rentcomp/pkg/anthropic"
	"github.com/sells-group/rentcomp/pkg/firecrawl"
)

// appEnv holds the services a command runs against.
type appEnv struct {
	Store    store.Store
	Subjects *subject.Service
	Insights *insights.Service
	// Runner is nil unless Firecrawl is configured.
	Runner *discovery.Runner
}

// Close releases the store.
func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initEnv validates the config for mode and builds the store and services.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	scorer := match.NewScorer(match.Config{
		Threshold:         cfg.Match.Threshold,
		GoodFallbackFloor: cfg.Match.GoodFallbackFloor,
	})

	opts := []subject.Option{subject.WithConcurrency(cfg.Discovery.UnitConcurrency)}
	var source *discovery.FirecrawlSource
	if cfg.Firecrawl.Key != "" {
		source = newFirecrawlSource()
		opts = append(opts, subject.WithUnitExtractor(source))
	}
	subjects := subject.NewService(st, scorer, opts...)

	env := &appEnv{
		Store:    st,
		Subjects: subjects,
		Insights: insights.NewService(st, newNarrator()),
	}
	if source != nil {
		cached := discovery.NewCachedSource(source, st, time.Duration(cfg.Discovery.CacheTTLHours)*time.Hour)
		env.Runner = discovery.NewRunner(st, cached, subjects, discovery.RunnerConfig{
			ListingDomain: cfg.Discovery.ListingDomain,
			MaxListings:   cfg.Discovery.MaxListings,
		})
	}
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "rentcomp.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newFirecrawlSource() *discovery.FirecrawlSource {
	var opts []firecrawl.Option
	if cfg.Firecrawl.BaseURL != "" {
		opts = append(opts, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	}
	return discovery.NewFirecrawlSource(firecrawl.NewClient(cfg.Firecrawl.Key, opts...), discovery.SourceConfig{
		RatePerSec: cfg.Firecrawl.RatePerSec,
		Timeout:    time.Duration(cfg.Discovery.TimeoutSecs) * time.Second,
		Retry:      resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
		Breaker:    resilience.FromBreakerConfig(cfg.Discovery.BreakerFailures, cfg.Discovery.BreakerResetSecs),
	})
}

// newNarrator returns nil when no Anthropic key is configured.
func newNarrator() *insights.Narrator {
	if cfg.Anthropic.Key == "" {
		return nil
	}
	client := anthropic.NewClient(cfg.Anthropic.Key, anthropic.WithMaxRetries(cfg.Retry.MaxAttempts))
	return insights.NewNarrator(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
}
