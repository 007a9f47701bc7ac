package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProvider()
	c.normalizePlayback()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeWebhook()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeProvider() {
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.TokenID = strings.TrimSpace(c.Provider.TokenID)
	if c.Provider.TokenID == "" {
		if value, ok := os.LookupEnv("VIDRESOLVE_PROVIDER_TOKEN_ID"); ok {
			c.Provider.TokenID = strings.TrimSpace(value)
		}
	}
	c.Provider.TokenSecret = strings.TrimSpace(c.Provider.TokenSecret)
	if c.Provider.TokenSecret == "" {
		if value, ok := os.LookupEnv("VIDRESOLVE_PROVIDER_TOKEN_SECRET"); ok {
			c.Provider.TokenSecret = strings.TrimSpace(value)
		}
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = defaultProviderTimeout
	}
}

func (c *Config) normalizePlayback() {
	c.Playback.StreamingHost = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(c.Playback.StreamingHost)), "/")
	c.Playback.ThumbnailURLTemplate = strings.TrimSpace(c.Playback.ThumbnailURLTemplate)
	prefixes := make([]string, 0, len(c.Playback.UploadIDPrefixes))
	seen := make(map[string]struct{}, len(c.Playback.UploadIDPrefixes))
	for _, prefix := range c.Playback.UploadIDPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if _, exists := seen[prefix]; exists {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}
	c.Playback.UploadIDPrefixes = prefixes
}

func (c *Config) normalizeCache() error {
	var err error
	if c.Cache.SnapshotPath, err = expandPath(strings.TrimSpace(c.Cache.SnapshotPath)); err != nil {
		return fmt.Errorf("cache.snapshot_path: %w", err)
	}
	for i := range c.Cache.Seed {
		c.Cache.Seed[i].Reference = strings.TrimSpace(c.Cache.Seed[i].Reference)
		c.Cache.Seed[i].PlaybackID = strings.TrimSpace(c.Cache.Seed[i].PlaybackID)
		c.Cache.Seed[i].AssetID = strings.TrimSpace(c.Cache.Seed[i].AssetID)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "sqlite", "sqlite3":
		c.Store.Driver = "sqlite"
	case "postgresql", "pg":
		c.Store.Driver = "postgres"
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("VIDRESOLVE_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeWebhook() {
	c.Webhook.SigningSecret = strings.TrimSpace(c.Webhook.SigningSecret)
	if c.Webhook.SigningSecret == "" {
		if value, ok := os.LookupEnv("VIDRESOLVE_WEBHOOK_SECRET"); ok {
			c.Webhook.SigningSecret = strings.TrimSpace(value)
		}
	}
	c.Webhook.AMQPURL = strings.TrimSpace(c.Webhook.AMQPURL)
	c.Webhook.AMQPQueue = strings.TrimSpace(c.Webhook.AMQPQueue)
	if c.Webhook.AMQPQueue == "" {
		c.Webhook.AMQPQueue = defaultAMQPQueue
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}
