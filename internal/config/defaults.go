package config

import "vidresolve/internal/identifier"

const (
	defaultConfigPath            = "~/.config/vidresolve/config.toml"
	defaultDataDir               = "~/.local/share/vidresolve"
	defaultLogDir                = "~/.local/share/vidresolve/logs"
	defaultAPIBind               = "127.0.0.1:7590"
	defaultProviderBaseURL       = "https://api.mux.com/video/v1"
	defaultProviderTimeout       = 10
	defaultProviderRateLimit     = 10
	defaultProviderRateBurst     = 5
	defaultPendingTTLSeconds     = 30
	defaultUnavailableTTLSeconds = 15
	defaultStoreDriver           = "sqlite"
	defaultAMQPQueue             = "vidresolve.webhooks"
	defaultReconcileConcurrency  = 4
	defaultReconcileInterval     = 3600
	defaultNtfyTimeout           = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	minLongIDLengthFloor         = 8
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Provider: Provider{
			BaseURL:        defaultProviderBaseURL,
			RequestTimeout: defaultProviderTimeout,
			RateLimit:      defaultProviderRateLimit,
			RateBurst:      defaultProviderRateBurst,
		},
		Playback: Playback{
			StreamingHost:        identifier.DefaultStreamingHost,
			ThumbnailURLTemplate: identifier.DefaultThumbnailURLTemplate,
			UploadIDPrefixes:     []string{identifier.DefaultUploadPrefix},
			MinLongIDLength:      identifier.DefaultMinLongIDLength,
		},
		Cache: Cache{
			PendingTTLSeconds:     defaultPendingTTLSeconds,
			UnavailableTTLSeconds: defaultUnavailableTTLSeconds,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		Webhook: Webhook{
			AMQPQueue: defaultAMQPQueue,
		},
		Reconcile: Reconcile{
			Concurrency:     defaultReconcileConcurrency,
			IntervalSeconds: defaultReconcileInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
