package testsupport

import (
	"path/filepath"
	"testing"

	"vidresolve/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Provider.TokenID = "test-id"
	cfgVal.Provider.TokenSecret = "test-secret"
	cfgVal.Provider.BaseURL = "http://127.0.0.1:0"
	cfgVal.Provider.RequestTimeout = 2
	cfgVal.Provider.RateLimit = 0
	cfgVal.Reconcile.IntervalSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithProviderURL points the provider client at a test server.
func WithProviderURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.BaseURL = url
	}
}

// WithSnapshot enables the on-disk cache snapshot inside the temp directory.
func WithSnapshot() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.SnapshotPath = filepath.Join(b.baseDir, "data", "resolutions.json")
	}
}

// WithSeed adds a static fallback entry.
func WithSeed(reference, playbackID, assetID string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Seed = append(b.cfg.Cache.Seed, config.CacheSeed{
			Reference:  reference,
			PlaybackID: playbackID,
			AssetID:    assetID,
		})
	}
}

// WithAPIToken requires bearer auth on the API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithWebhookSecret enables webhook signature verification.
func WithWebhookSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Webhook.SigningSecret = secret
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithNtfyTopic sends reconcile notifications to url.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}
