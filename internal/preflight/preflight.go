package preflight

import (
	"context"

	"vidresolve/internal/config"
	"vidresolve/internal/provider"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Pinger is the part of the record store the checks need.
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

// RunAll executes every applicable check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, store Pinger, fetcher provider.Fetcher) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckStore(ctx, store),
		CheckProvider(ctx, cfg.Provider.BaseURL, cfg.Provider.TokenID, cfg.Provider.TokenSecret, fetcher),
	}

	if cfg.Webhook.AMQPURL != "" {
		results = append(results, CheckAMQP(ctx, cfg.Webhook.AMQPURL))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return true
		}
	}
	return false
}
