// Package video defines the persisted VideoRecord, its lifecycle, and the
// single guarded patch function every writer (API read path, webhook, batch
// reconciliation) goes through.
//
// The guard is what keeps concurrent writers from undoing each other: a
// terminal record is frozen, a ready record with a canonical URL is never
// replaced by a different guess, and replays of an already-applied patch
// report PatchUnchanged so callers can count real changes.
package video
