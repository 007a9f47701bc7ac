package video

import (
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle of a video record.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusErrored Status = "errored"
	StatusDeleted Status = "deleted"
)

var allStatuses = []Status{StatusPending, StatusReady, StatusErrored, StatusDeleted}

// AllStatuses returns every lifecycle status in display order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus normalizes a stored status string.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusErrored || s == StatusDeleted
}

// Record is one persisted video.
type Record struct {
	RecordID     string    `json:"record_id"`
	OwnerID      string    `json:"owner_id"`
	RawReference string    `json:"raw_reference"`
	PlaybackURL  string    `json:"playback_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NeedsReupload reports whether the record is frozen in a failure state.
func (r *Record) NeedsReupload() bool {
	return r != nil && r.Status.Terminal()
}

// NewRecord builds a pending record for an owner's raw reference. The record
// id is assigned by the store.
func NewRecord(ownerID, rawReference string, now time.Time) (*Record, error) {
	ownerID = strings.TrimSpace(ownerID)
	rawReference = strings.TrimSpace(rawReference)
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if rawReference == "" {
		return nil, errors.New("raw reference is required")
	}
	now = now.UTC()
	return &Record{
		OwnerID:      ownerID,
		RawReference: rawReference,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
