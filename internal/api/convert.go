package api

import (
	"vidresolve/internal/identifier"
	"vidresolve/internal/reconcile"
	"vidresolve/internal/resolution"
	"vidresolve/internal/video"
)

// FromRecord converts a stored record to its API representation.
func FromRecord(rules identifier.Rules, rec *video.Record) Video {
	if rec == nil {
		return Video{}
	}
	dto := Video{
		RecordID:      rec.RecordID,
		OwnerID:       rec.OwnerID,
		RawReference:  rec.RawReference,
		ReferenceKind: string(rules.Classify(rec.RawReference).Kind),
		Status:        string(rec.Status),
		PlaybackURL:   rec.PlaybackURL,
		ThumbnailURL:  rec.ThumbnailURL,
		NeedsReupload: rec.NeedsReupload(),
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromRecords converts a slice of records into API DTOs.
func FromRecords(rules identifier.Rules, records []*video.Record) []Video {
	out := make([]Video, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rules, rec))
	}
	return out
}

// FromResult converts a resolver result.
func FromResult(result resolution.Result) Resolution {
	return Resolution{
		Outcome:     string(result.Outcome),
		PlaybackID:  result.PlaybackID,
		PlaybackURL: result.PlaybackURL,
		AssetID:     result.AssetID,
		Reason:      string(result.Reason),
	}
}

// FromCacheEntries converts cache entries, preserving their order.
func FromCacheEntries(entries []resolution.Entry) []CacheEntry {
	out := make([]CacheEntry, 0, len(entries))
	for _, entry := range entries {
		dto := CacheEntry{
			Key:        entry.Key,
			Resolution: FromResult(entry.Result),
			Permanent:  entry.Permanent,
			Seeded:     entry.Seeded,
		}
		if !entry.RecordedAt.IsZero() {
			dto.RecordedAt = entry.RecordedAt.UTC().Format(dateTimeFormat)
		}
		if !entry.ExpiresAt.IsZero() {
			dto.ExpiresAt = entry.ExpiresAt.UTC().Format(dateTimeFormat)
		}
		out = append(out, dto)
	}
	return out
}

// FromSummary converts a reconciliation summary.
func FromSummary(summary reconcile.Summary) ReconcileSummary {
	return ReconcileSummary{
		Scanned:    summary.Scanned,
		Patched:    summary.Patched,
		Skipped:    summary.Skipped,
		Deferred:   summary.Deferred,
		Malformed:  summary.Malformed,
		Refused:    summary.Refused,
		Failed:     summary.Failed,
		DurationMs: summary.Duration.Milliseconds(),
	}
}

// MergeVideoCounts returns counts keyed by status string with every status present.
func MergeVideoCounts(counts map[video.Status]int) map[string]int {
	out := make(map[string]int, len(video.AllStatuses()))
	for _, status := range video.AllStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}
