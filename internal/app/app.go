// Package app assembles the resolution stack from configuration. The daemon
// and the one-shot CLI commands share the same wiring.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"vidresolve/internal/api"
	"vidresolve/internal/config"
	"vidresolve/internal/identifier"
	"vidresolve/internal/logging"
	"vidresolve/internal/notifications"
	"vidresolve/internal/provider"
	"vidresolve/internal/reconcile"
	"vidresolve/internal/resolution"
	"vidresolve/internal/resolver"
	"vidresolve/internal/store"
	"vidresolve/internal/webhook"
)

// Components holds every long-lived collaborator built from one config.
type Components struct {
	Config    *config.Config
	Logger    *slog.Logger
	Rules     identifier.Rules
	Store     *store.Store
	Cache     *resolution.Cache
	Provider  *provider.Client
	Resolver  *resolver.Resolver
	Webhook   *webhook.Reconciler
	Reconcile *reconcile.Job
	Videos    *api.VideoService
	Notifier  notifications.Service
}

// Build opens the store and wires the remaining components around it.
// Callers own Close.
func Build(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rules := cfg.PlaybackRules()

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	c := &Components{
		Config: cfg,
		Logger: logger,
		Rules:  rules,
		Store:  st,
	}
	if err := c.wire(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) wire() error {
	cfg := c.Config
	c.Cache = resolution.New(resolution.Options{
		PendingTTL:     cfg.PendingTTL(),
		UnavailableTTL: cfg.UnavailableTTL(),
		SnapshotPath:   cfg.Cache.SnapshotPath,
		Logger:         c.Logger,
	})
	c.Cache.Seed(SeedResults(c.Rules, cfg.Cache.Seed))

	client, err := provider.New(cfg.Provider.BaseURL, cfg.Provider.TokenID, cfg.Provider.TokenSecret,
		provider.WithTimeout(cfg.ProviderTimeout()),
		provider.WithRateLimit(cfg.Provider.RateLimit, cfg.Provider.RateBurst),
		provider.WithLogger(c.Logger),
	)
	if err != nil {
		return fmt.Errorf("provider client: %w", err)
	}
	c.Provider = client

	c.Resolver, err = resolver.New(resolver.Options{
		Rules:   c.Rules,
		Cache:   c.Cache,
		Fetcher: client,
		Timeout: cfg.ProviderTimeout(),
		Logger:  c.Logger,
	})
	if err != nil {
		return fmt.Errorf("resolver: %w", err)
	}

	c.Webhook, err = webhook.NewReconciler(c.Rules, c.Cache, c.Store, c.Logger)
	if err != nil {
		return fmt.Errorf("webhook reconciler: %w", err)
	}

	c.Reconcile, err = reconcile.New(reconcile.Options{
		Rules:       c.Rules,
		Resolver:    c.Resolver,
		Store:       c.Store,
		Concurrency: cfg.Reconcile.Concurrency,
		LockPath:    cfg.ReconcileLockPath(),
		Logger:      c.Logger,
	})
	if err != nil {
		return fmt.Errorf("reconcile job: %w", err)
	}

	c.Videos = api.NewVideoService(c.Store, c.Resolver, c.Rules, c.Logger)
	c.Notifier = notifications.NewService(cfg)
	return nil
}

// Close waits for background record patches and closes the store.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	if c.Videos != nil {
		c.Videos.Wait()
	}
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}

// SeedResults turns the static fallback table into permanent cache entries.
// Each seed is keyed by its reference and, when given, its asset id.
func SeedResults(rules identifier.Rules, seeds []config.CacheSeed) map[string]resolution.Result {
	out := make(map[string]resolution.Result, len(seeds))
	for _, seed := range seeds {
		if seed.Reference == "" || seed.PlaybackID == "" {
			continue
		}
		result := resolution.Resolved(seed.PlaybackID, rules.PlaybackURL(seed.PlaybackID), seed.AssetID)
		out[seed.Reference] = result
		if seed.AssetID != "" {
			out[seed.AssetID] = result
		}
	}
	return out
}
