package video

import (
	"strings"
	"time"

	"vidresolve/internal/identifier"
)

// PatchResult tells the writer what the guard did with its patch.
type PatchResult string

const (
	PatchApplied   PatchResult = "applied"
	PatchUnchanged PatchResult = "unchanged"
	PatchRefused   PatchResult = "refused"
)

// Changed reports whether the record was modified.
func (r PatchResult) Changed() bool {
	return r == PatchApplied
}

// Patch is a requested change to a record's resolution fields.
type Patch struct {
	Status       Status `json:"status"`
	PlaybackID   string `json:"playback_id,omitempty"`
	PlaybackURL  string `json:"playback_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	// Source names the writer (api, webhook, reconcile) for logs.
	Source string `json:"source,omitempty"`
}

// ReadyPatch builds the patch that marks a record playable via playbackID.
func ReadyPatch(rules identifier.Rules, playbackID, source string) Patch {
	playbackID = strings.TrimSpace(playbackID)
	return Patch{
		Status:       StatusReady,
		PlaybackID:   playbackID,
		PlaybackURL:  rules.PlaybackURL(playbackID),
		ThumbnailURL: rules.ThumbnailURL(playbackID),
		Source:       source,
	}
}

// TerminalPatch builds the patch that freezes a record in errored or deleted.
func TerminalPatch(status Status, source string) Patch {
	return Patch{Status: status, Source: source}
}

// Guard applies patches under the record invariants.
type Guard struct {
	Rules identifier.Rules
}

// NewGuard builds a guard for the given identifier conventions.
func NewGuard(rules identifier.Rules) Guard {
	return Guard{Rules: rules}
}

// Apply mutates rec in place when p is allowed and would change something.
//
// Rules, in order:
//   - errored and deleted records are frozen;
//   - a ready patch must carry a canonical playback URL;
//   - a ready patch matching the stored URL is a no-op, except that it may
//     fill a missing thumbnail;
//   - a ready record with a canonical URL is never moved to a different URL;
//   - a terminal patch clears the playback URL;
//   - patches back to pending are refused.
func (g Guard) Apply(rec *Record, p Patch, now time.Time) PatchResult {
	if rec == nil || rec.Status.Terminal() {
		return PatchRefused
	}
	now = now.UTC()

	switch p.Status {
	case StatusReady:
		url := strings.TrimSpace(p.PlaybackURL)
		if url == "" || !g.Rules.IsCanonicalURL(url) {
			return PatchRefused
		}
		if rec.Status == StatusReady && rec.PlaybackURL == url {
			if rec.ThumbnailURL == "" && p.ThumbnailURL != "" {
				rec.ThumbnailURL = p.ThumbnailURL
				rec.UpdatedAt = now
				return PatchApplied
			}
			return PatchUnchanged
		}
		if rec.Status == StatusReady && g.Rules.IsCanonicalURL(rec.PlaybackURL) {
			return PatchRefused
		}
		rec.Status = StatusReady
		rec.PlaybackURL = url
		if p.ThumbnailURL != "" {
			rec.ThumbnailURL = p.ThumbnailURL
		}
		rec.UpdatedAt = now
		return PatchApplied
	case StatusErrored, StatusDeleted:
		rec.Status = p.Status
		rec.PlaybackURL = ""
		rec.UpdatedAt = now
		return PatchApplied
	default:
		return PatchRefused
	}
}
