package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vidresolve/internal/identifier"
	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
	"vidresolve/internal/resolution"
	"vidresolve/internal/video"
)

// Rejection reasons.
const (
	ReasonUnrecognizedEvent = "unrecognized_event"
	ReasonMalformed         = "malformed"
	ReasonTerminalAsset     = "terminal_asset"
)

// Decision is the outcome of one notification.
type Decision struct {
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	AssetID    string `json:"asset_id,omitempty"`
	PlaybackID string `json:"playback_id,omitempty"`
	Matched    int    `json:"matched"`
	Patched    int    `json:"patched"`
}

// Accepted builds an accepting decision.
func Accepted(assetID, playbackID string) Decision {
	return Decision{Accepted: true, AssetID: assetID, PlaybackID: playbackID}
}

// Rejected builds a rejecting decision.
func Rejected(reason string) Decision {
	return Decision{Reason: reason}
}

// RecordStore is the slice of the record store the reconciler needs.
type RecordStore interface {
	FindByReference(ctx context.Context, ref string) ([]*video.Record, error)
	Patch(ctx context.Context, recordID string, guard video.Guard, p video.Patch) (*video.Record, video.PatchResult, error)
}

// Reconciler applies notifications to the cache and the record store.
type Reconciler struct {
	rules  identifier.Rules
	guard  video.Guard
	cache  *resolution.Cache
	store  RecordStore
	logger *slog.Logger
}

// NewReconciler wires a reconciler.
func NewReconciler(rules identifier.Rules, cache *resolution.Cache, store RecordStore, logger *slog.Logger) (*Reconciler, error) {
	if cache == nil {
		return nil, errors.New("webhook: resolution cache is required")
	}
	if store == nil {
		return nil, errors.New("webhook: record store is required")
	}
	return &Reconciler{
		rules:  rules,
		guard:  video.NewGuard(rules),
		cache:  cache,
		store:  store,
		logger: logging.NewComponentLogger(logger, "webhook"),
	}, nil
}

// HandleNotification applies one event. Store failures come back as errors
// so at-least-once transports redeliver; everything else is a Decision.
func (r *Reconciler) HandleNotification(ctx context.Context, ev Event) (Decision, error) {
	logger := logging.WithContext(ctx, r.logger)

	if ev.Type != EventAssetReady {
		metrics.IncWebhookEvent("rejected", ReasonUnrecognizedEvent)
		logger.Info("ignoring notification",
			logging.Args(append(logging.DecisionAttrs("webhook", "rejected", ReasonUnrecognizedEvent),
				logging.String("event_type", ev.Type))...)...)
		return Rejected(ReasonUnrecognizedEvent), nil
	}

	assetID := ev.Data.ID
	playbackID := ev.Data.PublicPlaybackID()
	if assetID == "" || playbackID == "" {
		metrics.IncWebhookEvent("rejected", ReasonMalformed)
		logging.WarnWithContext(logger, "ready notification missing ids", "webhook_malformed",
			logging.String("asset_id", assetID),
			logging.Bool("has_public_playback_id", playbackID != ""),
			logging.String(logging.FieldErrorHint, "check the provider's webhook payload format"),
			logging.String(logging.FieldImpact, "notification ignored; reconcile job will pick the asset up"))
		return Rejected(ReasonMalformed), nil
	}

	uploadID := ev.Data.UploadID
	if settled, ok := r.cache.Settled(assetID, uploadID); ok {
		// Deliveries can arrive late or out of order; a deleted or errored
		// asset never becomes playable again.
		metrics.IncWebhookEvent("rejected", ReasonTerminalAsset)
		logger.Info("ignoring ready notification for settled asset",
			logging.Args(append(logging.DecisionAttrs("webhook", "rejected", ReasonTerminalAsset),
				logging.String("asset_id", assetID),
				logging.String("upload_id", uploadID),
				logging.String("cached_outcome", settled.Result.Label()))...)...)
		return Rejected(ReasonTerminalAsset), nil
	}

	result := resolution.Resolved(playbackID, r.rules.PlaybackURL(playbackID), assetID)
	r.cache.Put(result, assetID, uploadID)

	records, err := r.findRecords(ctx, uploadID, assetID)
	if err != nil {
		metrics.IncWebhookEvent("error", "store_error")
		return Decision{}, err
	}

	decision := Accepted(assetID, playbackID)
	decision.Matched = len(records)
	patch := video.ReadyPatch(r.rules, playbackID, "webhook")
	for _, rec := range records {
		_, outcome, err := r.store.Patch(ctx, rec.RecordID, r.guard, patch)
		if err != nil {
			metrics.IncWebhookEvent("error", "store_error")
			return Decision{}, fmt.Errorf("patch record %s: %w", rec.RecordID, err)
		}
		if outcome.Changed() {
			decision.Patched++
		}
		logger.Debug("applied ready notification",
			logging.String(logging.FieldRecordID, rec.RecordID),
			logging.String("patch_result", string(outcome)))
	}

	metrics.IncWebhookEvent("accepted", "")
	logger.Info("ready notification applied",
		logging.Args(append(logging.DecisionAttrs("webhook", "accepted", "asset_ready"),
			logging.String("asset_id", assetID),
			logging.String("upload_id", uploadID),
			logging.String("playback_id", playbackID),
			logging.Int("matched", decision.Matched),
			logging.Int("patched", decision.Patched))...)...)
	return decision, nil
}

// findRecords looks records up by upload id first, falling back to the asset id.
func (r *Reconciler) findRecords(ctx context.Context, uploadID, assetID string) ([]*video.Record, error) {
	for _, ref := range []string{uploadID, assetID} {
		if ref == "" {
			continue
		}
		records, err := r.store.FindByReference(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("find records by %s: %w", ref, err)
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}
