package resolution

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"vidresolve/internal/logging"
)

// load reads permanent entries from the snapshot file.
func (c *Cache) load() error {
	data, err := os.ReadFile(c.snapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		if strings.TrimSpace(entry.Key) == "" || !entry.Result.Permanent() {
			continue
		}
		entry.Permanent = true
		entry.ExpiresAt = time.Time{}
		c.entries[entry.Key] = entry
	}

	c.logger.Debug("loaded resolution cache snapshot",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.snapshotPath))
	return nil
}

// save writes every non-seeded permanent entry atomically. Callers hold c.mu.
func (c *Cache) save() error {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.Permanent && !entry.Seeded {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(c.snapshotPath, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending snapshot: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
