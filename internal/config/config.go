package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vidresolve/internal/identifier"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Provider contains configuration for the video provider's lookup API.
type Provider struct {
	BaseURL        string  `toml:"base_url"`
	TokenID        string  `toml:"token_id"`
	TokenSecret    string  `toml:"token_secret"`
	RequestTimeout int     `toml:"request_timeout"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second, 0 disables limiting
	RateBurst      int     `toml:"rate_burst"`
}

// Playback describes the provider's identifier and URL conventions.
type Playback struct {
	StreamingHost        string   `toml:"streaming_host"`
	ThumbnailURLTemplate string   `toml:"thumbnail_url_template"`
	UploadIDPrefixes     []string `toml:"upload_id_prefixes"`
	MinLongIDLength      int      `toml:"min_long_id_length"`
}

// CacheSeed is one entry of the static fallback table.
type CacheSeed struct {
	Reference  string `toml:"reference"`
	PlaybackID string `toml:"playback_id"`
	AssetID    string `toml:"asset_id"`
}

// Cache contains resolution cache tuning.
type Cache struct {
	PendingTTLSeconds     int         `toml:"pending_ttl_seconds"`
	UnavailableTTLSeconds int         `toml:"unavailable_ttl_seconds"`
	SnapshotPath          string      `toml:"snapshot_path"` // empty disables the on-disk snapshot
	Seed                  []CacheSeed `toml:"seed"`
}

// Store selects the record database.
type Store struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	DSN    string `toml:"dsn"`
}

// Webhook contains configuration for inbound provider notifications.
type Webhook struct {
	SigningSecret string `toml:"signing_secret"`
	AMQPURL       string `toml:"amqp_url"`
	AMQPQueue     string `toml:"amqp_queue"`
}

// Reconcile contains configuration for the batch reconciliation job.
type Reconcile struct {
	Concurrency     int `toml:"concurrency"`
	IntervalSeconds int `toml:"interval_seconds"` // 0 disables the daemon's periodic pass
}

// Notifications contains configuration for ntfy alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"` // full topic URL; empty disables notifications
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidresolve.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Provider: asset and upload lookup API credentials and limits
//   - Playback: streaming host, thumbnail template, identifier shapes
//   - Cache: resolution cache TTLs, snapshot file and static seed table
//   - Store: record database driver
//   - Webhook: notification signing secret and optional AMQP queue
//   - Reconcile: batch job concurrency and daemon interval
//   - Notifications: ntfy topic for reconcile alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Provider      Provider      `toml:"provider"`
	Playback      Playback      `toml:"playback"`
	Cache         Cache         `toml:"cache"`
	Store         Store         `toml:"store"`
	Webhook       Webhook       `toml:"webhook"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidresolve.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Cache.SnapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.Cache.SnapshotPath), 0o755); err != nil {
			return fmt.Errorf("create cache snapshot directory: %w", err)
		}
	}
	return nil
}

// PlaybackRules returns the identifier conventions configured for the provider.
func (c *Config) PlaybackRules() identifier.Rules {
	prefixes := make([]string, len(c.Playback.UploadIDPrefixes))
	copy(prefixes, c.Playback.UploadIDPrefixes)
	return identifier.Rules{
		StreamingHost:        c.Playback.StreamingHost,
		ThumbnailURLTemplate: c.Playback.ThumbnailURLTemplate,
		UploadPrefixes:       prefixes,
		MinLongIDLength:      c.Playback.MinLongIDLength,
	}
}

// ProviderTimeout bounds a single provider call.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.RequestTimeout) * time.Second
}

// NtfyTimeout bounds a single notification request.
func (c *Config) NtfyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// PendingTTL is how long a pending resolution stays cached.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Cache.PendingTTLSeconds) * time.Second
}

// UnavailableTTL is how long a provider_unavailable failure stays cached.
func (c *Config) UnavailableTTL() time.Duration {
	return time.Duration(c.Cache.UnavailableTTLSeconds) * time.Second
}

// ReconcileInterval returns the daemon's periodic reconciliation interval, or 0 when disabled.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}

// SQLitePath returns the record database file used by the sqlite driver.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Paths.DataDir, "videos.db")
}

// DaemonLockPath returns the single-instance lock file for the daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidresolve.lock")
}

// ReconcileLockPath returns the lock file guarding batch reconciliation.
func (c *Config) ReconcileLockPath() string {
	return filepath.Join(c.Paths.DataDir, "reconcile.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
