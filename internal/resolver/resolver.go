package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"vidresolve/internal/identifier"
	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
	"vidresolve/internal/provider"
	"vidresolve/internal/resolution"
)

// DefaultTimeout bounds a provider call when Options leaves Timeout unset.
const DefaultTimeout = 10 * time.Second

// Options configures a Resolver.
type Options struct {
	Rules   identifier.Rules
	Cache   *resolution.Cache
	Fetcher provider.Fetcher
	Timeout time.Duration
	Logger  *slog.Logger
}

// Resolver resolves references through the cache and the provider.
type Resolver struct {
	rules   identifier.Rules
	cache   *resolution.Cache
	fetcher provider.Fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a resolver. A nil cache gets an in-memory cache with default TTLs.
func New(opts Options) (*Resolver, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("resolver: provider fetcher is required")
	}
	r := &Resolver{
		rules:   opts.Rules,
		cache:   opts.Cache,
		fetcher: opts.Fetcher,
		timeout: opts.Timeout,
		logger:  logging.NewComponentLogger(opts.Logger, "resolver"),
	}
	if r.cache == nil {
		r.cache = resolution.New(resolution.Options{Logger: opts.Logger})
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	return r, nil
}

// Rules returns the identifier conventions the resolver classifies with.
func (r *Resolver) Rules() identifier.Rules {
	return r.rules
}

// Cache exposes the resolution cache shared with the webhook reconciler.
func (r *Resolver) Cache() *resolution.Cache {
	return r.cache
}

// Classify applies the resolver's identifier rules without touching the network.
func (r *Resolver) Classify(raw string) identifier.Identifier {
	return r.rules.Classify(raw)
}

// Resolve never returns a Go error: every expected outcome, including
// provider outages and caller cancellation, is a Result.
func (r *Resolver) Resolve(ctx context.Context, raw string) resolution.Result {
	if ctx == nil {
		ctx = context.Background()
	}
	id := r.rules.Classify(raw)

	var result resolution.Result
	switch id.Kind {
	case identifier.KindPlaybackID:
		result = resolution.Resolved(id.ID, r.rules.PlaybackURL(id.ID), "")
	case identifier.KindAssetID:
		result = r.settle(ctx, id.ID, r.fillAsset(id.ID))
	case identifier.KindUploadID:
		result = r.settle(ctx, id.ID, r.fillUpload(id.ID))
	default:
		result = r.seededOrMalformed(raw)
	}

	metrics.IncResolution(string(result.Outcome), string(result.Reason))
	logging.WithContext(ctx, r.logger).Debug("reference resolved",
		logging.String(logging.FieldReference, raw),
		logging.String("kind", string(id.Kind)),
		logging.String("outcome", string(result.Outcome)),
		logging.String("reason", string(result.Reason)),
		logging.String("playback_id", result.PlaybackID))
	return result
}

// fill performs the provider lookup for a reserved key. The result is cached
// under the key and, when known, its asset id.
type fill func(ctx context.Context) resolution.Result

// settle returns the cached result for key or obtains one, making sure only
// one caller per key talks to the provider at a time.
func (r *Resolver) settle(ctx context.Context, key string, lookup fill) resolution.Result {
	for {
		if entry, ok := r.cache.Get(key); ok {
			return entry.Result
		}

		if r.cache.Reserve(key) {
			return r.lead(ctx, key, lookup)
		}

		result, err := r.cache.Await(ctx, key)
		if err == nil {
			return result
		}
		if ctx.Err() != nil {
			return resolution.Failed(resolution.ReasonProviderUnavailable, "")
		}
		// The winner settled without a usable entry; race for the key again.
	}
}

// lead runs the provider lookup for a reservation this caller won. The call
// is detached from ctx so waiters are not affected when this caller gives up.
func (r *Resolver) lead(ctx context.Context, key string, lookup fill) resolution.Result {
	done := make(chan resolution.Result, 1)
	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		result := lookup(callCtx)
		r.cache.Put(result, key, result.AssetID)
		done <- result
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return resolution.Failed(resolution.ReasonProviderUnavailable, "")
	}
}

func (r *Resolver) fillAsset(assetID string) fill {
	return func(ctx context.Context) resolution.Result {
		snapshot, err := r.fetcher.FetchAsset(ctx, assetID)
		if err != nil {
			return r.failure(ctx, "asset", assetID, err)
		}
		switch snapshot.Status {
		case provider.AssetReady:
			playbackID := snapshot.PublicPlaybackID()
			if playbackID == "" {
				return resolution.Pending(assetID)
			}
			return resolution.Resolved(playbackID, r.rules.PlaybackURL(playbackID), assetID)
		case provider.AssetErrored:
			return resolution.Failed(resolution.ReasonAssetErrored, assetID)
		default:
			return resolution.Pending(assetID)
		}
	}
}

func (r *Resolver) fillUpload(uploadID string) fill {
	return func(ctx context.Context) resolution.Result {
		snapshot, err := r.fetcher.FetchUpload(ctx, uploadID)
		if err != nil {
			return r.failure(ctx, "upload", uploadID, err)
		}
		switch snapshot.Status {
		case provider.UploadAssetCreated:
			if snapshot.AssetID == "" {
				return resolution.Pending("")
			}
			// The asset has its own key and reservation; the caller caches
			// the outcome under the upload id and the asset id.
			return r.settle(ctx, snapshot.AssetID, r.fillAsset(snapshot.AssetID))
		case provider.UploadErrored, provider.UploadCancelled, provider.UploadTimedOut:
			return resolution.Failed(resolution.ReasonAssetErrored, snapshot.AssetID)
		default:
			return resolution.Pending(snapshot.AssetID)
		}
	}
}

func (r *Resolver) failure(ctx context.Context, endpoint, id string, err error) resolution.Result {
	if errors.Is(err, provider.ErrNotFound) {
		return resolution.Failed(resolution.ReasonAssetDeleted, assetIDFor(endpoint, id))
	}
	logging.WarnWithContext(logging.WithContext(ctx, r.logger), "provider lookup failed", "provider_lookup_failed",
		logging.String("endpoint", endpoint),
		logging.String(logging.FieldReference, id),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check provider credentials and reachability"),
		logging.String(logging.FieldImpact, "reference stays unresolved until the retry window passes"))
	return resolution.Failed(resolution.ReasonProviderUnavailable, assetIDFor(endpoint, id))
}

func assetIDFor(endpoint, id string) string {
	if endpoint == "asset" {
		return id
	}
	return ""
}

// seededOrMalformed lets the static fallback table cover legacy references
// that do not look like any provider id.
func (r *Resolver) seededOrMalformed(raw string) resolution.Result {
	if entry, ok := r.cache.Get(strings.TrimSpace(raw)); ok && entry.Seeded {
		return entry.Result
	}
	return resolution.Failed(resolution.ReasonMalformed, "")
}
