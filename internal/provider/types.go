package provider

import (
	"context"
	"strings"
)

// Asset statuses reported by the provider.
const (
	AssetPreparing = "preparing"
	AssetReady     = "ready"
	AssetErrored   = "errored"
)

// Upload statuses reported by the provider.
const (
	UploadWaiting      = "waiting"
	UploadAssetCreated = "asset_created"
	UploadErrored      = "errored"
	UploadCancelled    = "cancelled"
	UploadTimedOut     = "timed_out"
)

// PolicyPublic marks a playback id that can be streamed without a signed token.
const PolicyPublic = "public"

// PlaybackID is one streamable handle on an asset.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// AssetSnapshot is the provider's view of an asset at request time.
type AssetSnapshot struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
	UploadID    string       `json:"upload_id,omitempty"`
}

// PublicPlaybackID returns the first public playback id, or "" when none exists.
func (a AssetSnapshot) PublicPlaybackID() string {
	for _, pid := range a.PlaybackIDs {
		if strings.EqualFold(strings.TrimSpace(pid.Policy), PolicyPublic) && strings.TrimSpace(pid.ID) != "" {
			return strings.TrimSpace(pid.ID)
		}
	}
	return ""
}

// UploadSnapshot is the provider's view of a direct upload.
type UploadSnapshot struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id,omitempty"`
}

// Fetcher is the lookup surface the resolver depends on.
type Fetcher interface {
	FetchAsset(ctx context.Context, id string) (*AssetSnapshot, error)
	FetchUpload(ctx context.Context, id string) (*UploadSnapshot, error)
}
