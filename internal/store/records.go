package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vidresolve/internal/video"
)

// Create inserts a pending record for the owner's raw reference.
func (s *Store) Create(ctx context.Context, ownerID, rawReference string) (*video.Record, error) {
	ctx = ensureContext(ctx)
	rec, err := video.NewRecord(ownerID, rawReference, s.now())
	if err != nil {
		return nil, err
	}
	rec.RecordID = uuid.NewString()

	if err := s.insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert video record: %w", err)
	}
	return rec, nil
}

// Get fetches a record by id. A missing record yields (nil, nil).
func (s *Store) Get(ctx context.Context, recordID string) (*video.Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT `+recordColumns+` FROM videos WHERE record_id = ?`),
		strings.TrimSpace(recordID),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video record: %w", err)
	}
	return rec, nil
}

// List returns every record, oldest first. Optional statuses narrow the scan.
func (s *Store) List(ctx context.Context, statuses ...video.Status) ([]*video.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM videos`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE lifecycle_status IN (` + placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, record_id`
	return s.queryRecords(ctx, query, args...)
}

// ListByOwner returns an owner's records, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*video.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM videos WHERE owner_id = ? ORDER BY created_at DESC, record_id`,
		strings.TrimSpace(ownerID),
	)
}

// FindByReference returns records whose raw reference equals ref, oldest first.
func (s *Store) FindByReference(ctx context.Context, ref string) ([]*video.Record, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM videos WHERE raw_reference = ? ORDER BY created_at, record_id`,
		ref,
	)
}

// CountByStatus tallies records per lifecycle status.
func (s *Store) CountByStatus(ctx context.Context) (map[video.Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT lifecycle_status, COUNT(1) FROM videos GROUP BY lifecycle_status`)
	if err != nil {
		return nil, fmt.Errorf("count video records: %w", err)
	}
	defer rows.Close()

	counts := make(map[video.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[video.Status(status)] = count
	}
	return counts, rows.Err()
}

// Patch applies p to the record through guard inside one transaction and
// returns the stored record. Nothing is written unless the guard reports a
// change.
func (s *Store) Patch(ctx context.Context, recordID string, guard video.Guard, p video.Patch) (*video.Record, video.PatchResult, error) {
	ctx = ensureContext(ctx)
	var (
		rec    *video.Record
		result video.PatchResult
	)
	err := retryOnBusy(ctx, func() error {
		var txErr error
		rec, result, txErr = s.patchOnce(ctx, strings.TrimSpace(recordID), guard, p)
		return txErr
	})
	if err != nil {
		return nil, video.PatchRefused, err
	}
	return rec, result, nil
}

func (s *Store) patchOnce(ctx context.Context, recordID string, guard video.Guard, p video.Patch) (*video.Record, video.PatchResult, error) {
	var rec *video.Record
	result := video.PatchRefused
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT `+recordColumns+` FROM videos WHERE record_id = ?`+s.dialect.lockClause()),
			recordID,
		)
		loaded, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, recordID)
		}
		if err != nil {
			return fmt.Errorf("load video record: %w", err)
		}

		rec = loaded
		result = guard.Apply(rec, p, s.now())
		if !result.Changed() {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			s.dialect.rebind(`UPDATE videos SET playback_url = ?, thumbnail_url = ?, lifecycle_status = ?, updated_at = ? WHERE record_id = ?`),
			nullableString(rec.PlaybackURL),
			nullableString(rec.ThumbnailURL),
			string(rec.Status),
			formatTime(rec.UpdatedAt),
			rec.RecordID,
		); err != nil {
			return fmt.Errorf("update video record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, video.PatchRefused, err
	}
	return rec, result, nil
}

// Delete removes a record. Missing records report ErrNotFound.
func (s *Store) Delete(ctx context.Context, recordID string) error {
	ctx = ensureContext(ctx)
	var res sql.Result
	if err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM videos WHERE record_id = ?`), strings.TrimSpace(recordID))
		return execErr
	}); err != nil {
		return fmt.Errorf("delete video record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	return nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*video.Record, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query video records: %w", err)
	}
	defer rows.Close()

	var records []*video.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video records: %w", err)
	}
	return records, nil
}

// Import inserts a record verbatim, bypassing the patch guard. It exists for
// migrating records from older systems, including malformed ones the
// reconcile job is meant to repair. Missing ids and timestamps are filled in.
func (s *Store) Import(ctx context.Context, rec *video.Record) error {
	ctx = ensureContext(ctx)
	if rec == nil {
		return errors.New("record is required")
	}
	rec.OwnerID = strings.TrimSpace(rec.OwnerID)
	rec.RawReference = strings.TrimSpace(rec.RawReference)
	if rec.OwnerID == "" || rec.RawReference == "" {
		return errors.New("owner id and raw reference are required")
	}
	if rec.Status == "" {
		rec.Status = video.StatusPending
	}
	if _, ok := video.ParseStatus(string(rec.Status)); !ok {
		return fmt.Errorf("unknown status %q", rec.Status)
	}
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	if err := s.insert(ctx, rec); err != nil {
		return fmt.Errorf("import video record: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, rec *video.Record) error {
	query := s.dialect.rebind(`INSERT INTO videos (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.RecordID,
			rec.OwnerID,
			rec.RawReference,
			nullableString(rec.PlaybackURL),
			nullableString(rec.ThumbnailURL),
			string(rec.Status),
			formatTime(rec.CreatedAt),
			formatTime(rec.UpdatedAt),
		)
		return err
	})
}
