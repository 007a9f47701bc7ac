package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Video describes a video record in a transport-friendly format.
type Video struct {
	RecordID      string      `json:"recordId"`
	OwnerID       string      `json:"ownerId"`
	RawReference  string      `json:"rawReference"`
	ReferenceKind string      `json:"referenceKind"`
	Status        string      `json:"status"`
	PlaybackURL   string      `json:"playbackUrl,omitempty"`
	ThumbnailURL  string      `json:"thumbnailUrl,omitempty"`
	NeedsReupload bool        `json:"needsReupload"`
	CreatedAt     string      `json:"createdAt,omitempty"`
	UpdatedAt     string      `json:"updatedAt,omitempty"`
	Resolution    *Resolution `json:"resolution,omitempty"`
}

// Resolution mirrors a resolver result.
type Resolution struct {
	Outcome     string `json:"outcome"`
	PlaybackID  string `json:"playbackId,omitempty"`
	PlaybackURL string `json:"playbackUrl,omitempty"`
	AssetID     string `json:"assetId,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ResolveResponse answers a one-off resolution request.
type ResolveResponse struct {
	Reference  string     `json:"reference"`
	Kind       string     `json:"kind"`
	ID         string     `json:"id,omitempty"`
	Resolution Resolution `json:"resolution"`
}

// VideoResponse wraps a single video.
type VideoResponse struct {
	Video Video `json:"video"`
}

// VideoListResponse wraps a collection of videos.
type VideoListResponse struct {
	Videos []Video `json:"videos"`
}

// CreateVideoRequest is the body of POST /api/videos.
type CreateVideoRequest struct {
	OwnerID      string `json:"ownerId"`
	RawReference string `json:"rawReference"`
}

// CacheEntry describes one resolution cache entry.
type CacheEntry struct {
	Key        string     `json:"key"`
	Resolution Resolution `json:"resolution"`
	RecordedAt string     `json:"recordedAt,omitempty"`
	ExpiresAt  string     `json:"expiresAt,omitempty"`
	Permanent  bool       `json:"permanent"`
	Seeded     bool       `json:"seeded"`
}

// CacheListResponse wraps the resolution cache listing.
type CacheListResponse struct {
	Entries []CacheEntry `json:"entries"`
}

// ReconcileSummary reports the outcome of a reconciliation pass.
type ReconcileSummary struct {
	Scanned    int    `json:"scanned"`
	Patched    int    `json:"patched"`
	Skipped    int    `json:"skipped"`
	Deferred   int    `json:"deferred"`
	Malformed  int    `json:"malformed"`
	Refused    int    `json:"refused"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running           bool           `json:"running"`
	PID               int            `json:"pid"`
	StoreDriver       string         `json:"storeDriver"`
	StorePath         string         `json:"storePath,omitempty"`
	LockFilePath      string         `json:"lockFilePath"`
	VideoCounts       map[string]int `json:"videoCounts"`
	CacheEntries      int            `json:"cacheEntries"`
	AMQPConsumer      bool           `json:"amqpConsumer"`
	ReconcileInterval string         `json:"reconcileInterval,omitempty"`
	LastReconcile     *ReconcileRun  `json:"lastReconcile,omitempty"`
}

// ReconcileRun records when a daemon-driven pass finished and what it did.
type ReconcileRun struct {
	FinishedAt string           `json:"finishedAt"`
	Trigger    string           `json:"trigger"`
	Summary    ReconcileSummary `json:"summary"`
}
