package testsupport

import (
	"context"
	"testing"

	"vidresolve/internal/config"
	"vidresolve/internal/store"
	"vidresolve/internal/video"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewRecord creates a pending record for tests using the provided store.
func NewRecord(t testing.TB, st *store.Store, ownerID, rawReference string) *video.Record {
	t.Helper()

	rec, err := st.Create(context.Background(), ownerID, rawReference)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}

// ImportRecord inserts a record with the given stored playback state as is,
// reproducing records written by older releases.
func ImportRecord(t testing.TB, st *store.Store, ownerID, rawReference, playbackURL string, status video.Status) *video.Record {
	t.Helper()

	rec := &video.Record{
		OwnerID:      ownerID,
		RawReference: rawReference,
		PlaybackURL:  playbackURL,
		Status:       status,
	}
	if err := st.Import(context.Background(), rec); err != nil {
		t.Fatalf("store.Import: %v", err)
	}
	return rec
}
