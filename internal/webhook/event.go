package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"vidresolve/internal/provider"
)

// EventAssetReady is the only notification type the reconciler acts on.
const EventAssetReady = "video.asset.ready"

// Event is a provider notification. Data carries the asset as the provider
// saw it when the event fired.
type Event struct {
	ID   string                 `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data provider.AssetSnapshot `json:"data"`
}

// ParseEvent decodes a notification body.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode notification: %w", err)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	ev.Data.ID = strings.TrimSpace(ev.Data.ID)
	ev.Data.UploadID = strings.TrimSpace(ev.Data.UploadID)
	ev.Data.Status = strings.ToLower(strings.TrimSpace(ev.Data.Status))
	return ev, nil
}
