package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProvider() error {
	parsed, err := url.Parse(c.Provider.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("provider.base_url must be an absolute http(s) URL, got %q", c.Provider.BaseURL)
	}
	if c.Provider.TokenID == "" || c.Provider.TokenSecret == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("provider.token_id and provider.token_secret are required. Set VIDRESOLVE_PROVIDER_TOKEN_ID/VIDRESOLVE_PROVIDER_TOKEN_SECRET or edit %s (create with 'vidresolve config init')", defaultPath)
	}
	if c.Provider.RateLimit < 0 {
		return errors.New("provider.rate_limit must be >= 0")
	}
	if c.Provider.RateLimit > 0 && c.Provider.RateBurst <= 0 {
		return errors.New("provider.rate_burst must be positive when provider.rate_limit is set")
	}
	return nil
}

func (c *Config) validatePlayback() error {
	host := c.Playback.StreamingHost
	if host == "" {
		return errors.New("playback.streaming_host must be set")
	}
	if strings.Contains(host, "://") || strings.Contains(host, "/") {
		return fmt.Errorf("playback.streaming_host must be a bare host name, got %q", host)
	}
	if c.Playback.MinLongIDLength < minLongIDLengthFloor {
		return fmt.Errorf("playback.min_long_id_length must be at least %d", minLongIDLengthFloor)
	}
	if tmpl := c.Playback.ThumbnailURLTemplate; tmpl != "" && !strings.Contains(tmpl, "{playback_id}") {
		return errors.New("playback.thumbnail_url_template must contain {playback_id}")
	}
	return nil
}

func (c *Config) validateCache() error {
	if err := ensurePositiveMap(map[string]int{
		"cache.pending_ttl_seconds":     c.Cache.PendingTTLSeconds,
		"cache.unavailable_ttl_seconds": c.Cache.UnavailableTTLSeconds,
	}); err != nil {
		return err
	}
	for i, seed := range c.Cache.Seed {
		if seed.Reference == "" {
			return fmt.Errorf("cache.seed[%d].reference must be set", i)
		}
		if seed.PlaybackID == "" {
			return fmt.Errorf("cache.seed[%d].playback_id must be set", i)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn must be set when store.driver is postgres (or set VIDRESOLVE_STORE_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("store.driver: unsupported value %q", c.Store.Driver)
	}
}

func (c *Config) validateWebhook() error {
	if c.Webhook.AMQPURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Webhook.AMQPURL)
	if err != nil || (parsed.Scheme != "amqp" && parsed.Scheme != "amqps") {
		return errors.New("webhook.amqp_url must use the amqp:// or amqps:// scheme")
	}
	if c.Webhook.AMQPQueue == "" {
		return errors.New("webhook.amqp_queue must be set when webhook.amqp_url is set")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.Concurrency <= 0 {
		return errors.New("reconcile.concurrency must be positive")
	}
	if c.Reconcile.IntervalSeconds < 0 {
		return errors.New("reconcile.interval_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.New("notifications.ntfy_topic must be an http(s) topic url")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
