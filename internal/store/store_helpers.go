package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vidresolve/internal/video"
)

const recordColumns = "record_id, owner_id, raw_reference, playback_url, thumbnail_url, lifecycle_status, created_at, updated_at"

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// legacyTimestampLayout is what SQLite's CURRENT_TIMESTAMP produces; imported
// rows sometimes carry it.
const legacyTimestampLayout = "2006-01-02 15:04:05"

// withTx runs fn in a transaction, committing only when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*video.Record, error) {
	var (
		rec                      video.Record
		status                   string
		playback, thumbnail      sql.NullString
		createdText, updatedText sql.NullString
	)
	if err := row.Scan(&rec.RecordID, &rec.OwnerID, &rec.RawReference, &playback, &thumbnail, &status, &createdText, &updatedText); err != nil {
		return nil, err
	}
	rec.PlaybackURL = playback.String
	rec.ThumbnailURL = thumbnail.String
	// Unknown status text is kept verbatim so reconcile can still see the row.
	if parsed, ok := video.ParseStatus(status); ok {
		rec.Status = parsed
	} else {
		rec.Status = video.Status(status)
	}
	rec.CreatedAt = parseStoredTime(createdText.String)
	rec.UpdatedAt = parseStoredTime(updatedText.String)
	return &rec, nil
}

// nullableString stores empty URLs as NULL.
func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

// parseStoredTime returns the zero time for empty or unparseable values.
func parseStoredTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, legacyTimestampLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// placeholders returns "?,?,..." with n markers for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
