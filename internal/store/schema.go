package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape.
const schemaVersion = 1

// ErrSchemaMismatch is returned when an existing database was created by a
// different schema version. There are no in-place migrations; export the
// records and import them into a fresh database instead.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ensureSchema creates the tables on an empty database and otherwise checks
// that the stored version matches schemaVersion.
func (s *Store) ensureSchema(ctx context.Context) error {
	current, err := s.storedSchemaVersion(ctx)
	if err != nil {
		return err
	}
	switch current {
	case 0:
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, s.dialect.rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	case schemaVersion:
		return nil
	default:
		return fmt.Errorf("%w: database is at version %d, this build expects %d", ErrSchemaMismatch, current, schemaVersion)
	}
}

// storedSchemaVersion returns 0 when the schema_version table does not exist yet.
func (s *Store) storedSchemaVersion(ctx context.Context) (int, error) {
	var tables int
	if err := s.db.QueryRowContext(ctx, s.dialect.schemaVersionProbe()).Scan(&tables); err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
