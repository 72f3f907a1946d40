package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scamlens/scamlens/internal/cost"
	"github.com/scamlens/scamlens/internal/ensemble"
	"github.com/scamlens/scamlens/internal/investigation"
	"github.com/scamlens/scamlens/internal/provider"
	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/internal/resilience"
	"github.com/scamlens/scamlens/internal/store"
	anthropicpkg "github.com/scamlens/scamlens/pkg/anthropic"
	"github.com/scamlens/scamlens/pkg/openrouter"
	"github.com/scamlens/scamlens/pkg/perplexity"
)

// coreEnv holds the initialized store, registry, and engine needed by the
// serve/investigate/models/quote commands.
type coreEnv struct {
	Store    store.Store
	Registry *registry.Registry
	Engine   *investigation.Engine
}

// Close releases resources held by the environment.
func (ce *coreEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "scamlens.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRegistry() (*registry.Registry, error) {
	if cfg.Registry.CatalogPath == "" {
		zap.L().Debug("no model catalog configured, using built-in catalog")
		return registry.DefaultCatalog(), nil
	}
	reg, err := registry.LoadFile(cfg.Registry.CatalogPath)
	if err != nil {
		return nil, eris.Wrapf(err, "load model catalog %s", cfg.Registry.CatalogPath)
	}
	return reg, nil
}

// initCore sets up the store, provider adapters, orchestrator, and engine.
// Callers should defer env.Close().
func initCore(ctx context.Context) (*coreEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg, err := initRegistry()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("model catalog loaded", zap.Int("models", reg.Len()))

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	orOpts := []openrouter.Option{}
	if cfg.OpenRouter.BaseURL != "" {
		orOpts = append(orOpts, openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))
	}
	openrouterClient := openrouter.NewClient(cfg.OpenRouter.Key, orOpts...)

	pplxOpts := []perplexity.Option{}
	if cfg.Perplexity.BaseURL != "" {
		pplxOpts = append(pplxOpts, perplexity.WithBaseURL(cfg.Perplexity.BaseURL))
	}
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key, pplxOpts...)

	adapters := provider.Map{
		registry.FamilyProprietaryCloud: provider.NewAnthropicAdapter(anthropicClient, investigation.SystemPrompt, cfg.Anthropic.RPS),
		registry.FamilyOpenWeights:      provider.NewOpenRouterAdapter(openrouterClient, investigation.SystemPrompt, cfg.OpenRouter.RPS),
		registry.FamilySpecialized:      provider.NewPerplexityAdapter(perplexityClient, investigation.SystemPrompt, cfg.Perplexity.RPS),
	}

	retry := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)

	calc := cost.NewCalculator(reg)
	orch := ensemble.New(reg, adapters, calc, retry).
		WithTimeout(time.Duration(cfg.Orchestra.CallTimeoutSecs) * time.Second)

	engine := investigation.NewEngine(orch, reg, calc, st)

	return &coreEnv{
		Store:    st,
		Registry: reg,
		Engine:   engine,
	}, nil
}
