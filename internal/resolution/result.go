package resolution

// Outcome is the top-level shape of a resolution.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomePending  Outcome = "pending"
	OutcomeFailed   Outcome = "failed"
)

// Reason explains a failed resolution.
type Reason string

const (
	ReasonAssetErrored        Reason = "asset_errored"
	ReasonAssetDeleted        Reason = "asset_deleted"
	ReasonProviderUnavailable Reason = "provider_unavailable"
	ReasonMalformed           Reason = "malformed"
)

// Result is what the resolver hands back for a reference. Expected failures
// are values, not Go errors.
type Result struct {
	Outcome     Outcome `json:"outcome"`
	PlaybackID  string  `json:"playback_id,omitempty"`
	PlaybackURL string  `json:"playback_url,omitempty"`
	AssetID     string  `json:"asset_id,omitempty"`
	Reason      Reason  `json:"reason,omitempty"`
}

// Resolved builds a successful result.
func Resolved(playbackID, playbackURL, assetID string) Result {
	return Result{Outcome: OutcomeResolved, PlaybackID: playbackID, PlaybackURL: playbackURL, AssetID: assetID}
}

// Pending builds a result for an asset that is not playable yet.
func Pending(assetID string) Result {
	return Result{Outcome: OutcomePending, AssetID: assetID}
}

// Failed builds a failed result with the given reason.
func Failed(reason Reason, assetID string) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason, AssetID: assetID}
}

// IsResolved reports whether a playable URL is available.
func (r Result) IsResolved() bool {
	return r.Outcome == OutcomeResolved && r.PlaybackURL != ""
}

// Terminal reports whether the underlying asset can never become playable.
// Such records need a re-upload.
func (r Result) Terminal() bool {
	return r.Outcome == OutcomeFailed && (r.Reason == ReasonAssetErrored || r.Reason == ReasonAssetDeleted)
}

// Permanent reports whether the result may be cached without expiry.
func (r Result) Permanent() bool {
	return r.Outcome == OutcomeResolved || r.Terminal()
}

// Transient reports whether the result should be retried after its TTL.
func (r Result) Transient() bool {
	return r.Outcome == OutcomePending || (r.Outcome == OutcomeFailed && r.Reason == ReasonProviderUnavailable)
}

// Label is the short human description used by the CLI and logs.
func (r Result) Label() string {
	switch {
	case r.Outcome == OutcomeFailed && r.Reason != "":
		return string(r.Reason)
	case r.Outcome == "":
		return "unknown"
	default:
		return string(r.Outcome)
	}
}
