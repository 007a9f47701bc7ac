package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
)

// DefaultPendingTTL and DefaultUnavailableTTL apply when Options leaves them unset.
const (
	DefaultPendingTTL     = 30 * time.Second
	DefaultUnavailableTTL = 15 * time.Second
)

var (
	// ErrNoResult is returned by Await when the reservation holder finished
	// without leaving a usable entry behind.
	ErrNoResult = errors.New("resolution: no result recorded")
	// ErrNotCached is returned by Remove for unknown keys.
	ErrNotCached = errors.New("resolution: key not cached")
)

// Entry is one cached result. Entries written under several keys share the
// same Result and RecordedAt.
type Entry struct {
	Key        string    `json:"key"`
	Result     Result    `json:"result"`
	RecordedAt time.Time `json:"recorded_at"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	Permanent  bool      `json:"permanent"`
	Seeded     bool      `json:"seeded,omitempty"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.Permanent && !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Options configures a Cache.
type Options struct {
	PendingTTL     time.Duration
	UnavailableTTL time.Duration
	// SnapshotPath enables persisting permanent entries. Empty keeps the cache in memory.
	SnapshotPath string
	Logger       *slog.Logger
	Now          func() time.Time
}

// Cache maps references and asset ids to resolution results and tracks
// which keys currently have a provider call in flight.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	flights map[string]chan struct{}

	pendingTTL     time.Duration
	unavailableTTL time.Duration
	snapshotPath   string
	logger         *slog.Logger
	now            func() time.Time
}

// New creates a cache, loading the snapshot when one is configured.
func New(opts Options) *Cache {
	logger := logging.NewComponentLogger(opts.Logger, "resolution-cache")
	c := &Cache{
		entries:        make(map[string]Entry),
		flights:        make(map[string]chan struct{}),
		pendingTTL:     opts.PendingTTL,
		unavailableTTL: opts.UnavailableTTL,
		snapshotPath:   strings.TrimSpace(opts.SnapshotPath),
		logger:         logger,
		now:            opts.Now,
	}
	if c.pendingTTL <= 0 {
		c.pendingTTL = DefaultPendingTTL
	}
	if c.unavailableTTL <= 0 {
		c.unavailableTTL = DefaultUnavailableTTL
	}
	if c.now == nil {
		c.now = time.Now
	}

	if c.snapshotPath != "" {
		if err := c.load(); err != nil {
			logging.WarnWithContext(logger, "failed to load resolution cache snapshot", "resolution_snapshot_load_failed",
				logging.Error(err),
				logging.String("path", c.snapshotPath),
				logging.String(logging.FieldErrorHint, "delete or repair the snapshot file"),
				logging.String(logging.FieldImpact, "settled references will be re-resolved against the provider"))
		}
	}
	return c
}

// Get returns the live entry for key. Expired transient entries are evicted
// and reported as missing.
func (c *Cache) Get(key string) (Entry, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Entry{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		metrics.IncCacheLookup("miss")
		return Entry{}, false
	}
	if entry.expired(c.now()) {
		delete(c.entries, key)
		metrics.IncCacheLookup("expired")
		return Entry{}, false
	}
	metrics.IncCacheLookup("hit")
	return entry, true
}

// Reserve marks key as being resolved. It returns false when another caller
// already holds the reservation or a live entry exists; such callers should
// Get or Await instead of calling the provider.
func (c *Cache) Reserve(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, inFlight := c.flights[key]; inFlight {
		return false
	}
	if entry, ok := c.entries[key]; ok {
		if !entry.expired(c.now()) {
			return false
		}
		delete(c.entries, key)
	}
	c.flights[key] = make(chan struct{})
	return true
}

// Release drops a reservation without recording a result. Waiters wake up
// and receive ErrNoResult.
func (c *Cache) Release(key string) {
	key = strings.TrimSpace(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(key)
}

// Await blocks until the reservation on key is settled or ctx is done. With
// no reservation outstanding it returns the live entry, if any.
func (c *Cache) Await(ctx context.Context, key string) (Result, error) {
	key = strings.TrimSpace(key)

	c.mu.Lock()
	done, inFlight := c.flights[key]
	if !inFlight {
		entry, ok := c.liveLocked(key)
		c.mu.Unlock()
		if !ok {
			return Result{}, ErrNoResult
		}
		return entry.Result, nil
	}
	c.mu.Unlock()

	metrics.IncInflightWait()
	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.liveLocked(key)
	if !ok {
		return Result{}, ErrNoResult
	}
	return entry.Result, nil
}

// Put records result under every non-empty key and settles any reservations
// on them. Malformed results are never stored, and a key holding a terminal
// failure keeps it unless the new result is terminal too. Permanent writes
// are persisted to the snapshot when one is configured.
func (c *Cache) Put(result Result, keys ...string) {
	c.put(result, false, keys...)
}

// Seed loads static fallback mappings as permanent entries. Seeded entries
// are not written to the snapshot.
func (c *Cache) Seed(seeds map[string]Result) {
	for key, result := range seeds {
		if !result.Permanent() {
			continue
		}
		c.put(result, true, key)
	}
	c.logger.Debug("seeded resolution cache", logging.Int("entry_count", len(seeds)))
}

func (c *Cache) put(result Result, seeded bool, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ttl, storable := c.ttlFor(result)
	permanent := result.Permanent()
	stored := false
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if existing, ok := c.entries[key]; ok && !replaceable(existing, result, seeded) {
			c.logger.Info("kept settled resolution cache entry",
				logging.Args(append(logging.DecisionAttrs("cache_put", "refused", "settled entry outranks "+result.Label()),
					logging.String("key", key),
					logging.String("stored", existing.Result.Label()))...)...)
			c.finishLocked(key)
			continue
		}
		if storable {
			entry := Entry{Key: key, Result: result, RecordedAt: now, Permanent: permanent, Seeded: seeded}
			if !permanent {
				entry.ExpiresAt = now.Add(ttl)
			}
			c.entries[key] = entry
			stored = true
		}
		c.finishLocked(key)
	}

	if stored && permanent && !seeded {
		c.persistLocked()
	}
}

// replaceable reports whether incoming may overwrite existing. Transient
// results never replace permanent ones, and only another terminal result or
// a seed replaces a terminal entry: an asset confirmed deleted or errored
// stays that way until an operator removes the key.
func replaceable(existing Entry, incoming Result, seeded bool) bool {
	if existing.Permanent && !incoming.Permanent() {
		return false
	}
	if existing.Result.Terminal() && !incoming.Terminal() && !seeded {
		return false
	}
	return true
}

// Settled returns the terminal entry stored under any of keys, if one exists.
func (c *Cache) Settled(keys ...string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if entry, ok := c.liveLocked(key); ok && entry.Result.Terminal() {
			return entry, true
		}
	}
	return Entry{}, false
}

// ttlFor returns the lifetime of a transient result; storable is false for
// results that must never be cached.
func (c *Cache) ttlFor(result Result) (time.Duration, bool) {
	switch {
	case result.Permanent():
		return 0, true
	case result.Outcome == OutcomePending:
		return c.pendingTTL, true
	case result.Outcome == OutcomeFailed && result.Reason == ReasonProviderUnavailable:
		return c.unavailableTTL, true
	default:
		return 0, false
	}
}

// List returns live entries, newest first.
func (c *Cache) List() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.expired(now) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RecordedAt.Equal(entries[j].RecordedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].RecordedAt.After(entries[j].RecordedAt)
	})
	return entries
}

// Remove deletes one key so the next Resolve asks the provider again.
func (c *Cache) Remove(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotCached, key)
	}
	delete(c.entries, key)
	if entry.Permanent && !entry.Seeded {
		c.persistLocked()
	}
	c.logger.Debug("removed resolution cache entry", logging.String("key", key))
	return nil
}

// Purge evicts every expired transient entry and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored entries, including expired ones not yet evicted.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) liveLocked(key string) (Entry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if entry.expired(c.now()) {
		delete(c.entries, key)
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) finishLocked(key string) {
	if done, ok := c.flights[key]; ok {
		close(done)
		delete(c.flights, key)
	}
}

func (c *Cache) persistLocked() {
	if c.snapshotPath == "" {
		return
	}
	if err := c.save(); err != nil {
		logging.WarnWithContext(c.logger, "failed to persist resolution cache snapshot", "resolution_snapshot_save_failed",
			logging.Error(err),
			logging.String("path", c.snapshotPath),
			logging.String(logging.FieldErrorHint, "check permissions and free space on the data directory"),
			logging.String(logging.FieldImpact, "cached resolutions will not survive a restart"))
	}
}
