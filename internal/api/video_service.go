package api

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidresolve/internal/identifier"
	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
	"vidresolve/internal/resolution"
	"vidresolve/internal/services"
	"vidresolve/internal/video"
)

const backgroundPatchTimeout = 30 * time.Second

// RecordStore abstracts the record persistence needed by the API.
type RecordStore interface {
	Create(ctx context.Context, ownerID, rawReference string) (*video.Record, error)
	Get(ctx context.Context, recordID string) (*video.Record, error)
	List(ctx context.Context, statuses ...video.Status) ([]*video.Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*video.Record, error)
	Patch(ctx context.Context, recordID string, guard video.Guard, p video.Patch) (*video.Record, video.PatchResult, error)
}

// Resolver turns raw references into resolution results.
type Resolver interface {
	Resolve(ctx context.Context, raw string) resolution.Result
}

// VideoService exposes record operations returning API DTOs.
type VideoService struct {
	store    RecordStore
	resolver Resolver
	rules    identifier.Rules
	guard    video.Guard
	logger   *slog.Logger
	now      func() time.Time

	background sync.WaitGroup
}

// NewVideoService constructs a VideoService around the provided store and resolver.
func NewVideoService(store RecordStore, resolver Resolver, rules identifier.Rules, logger *slog.Logger) *VideoService {
	if store == nil || resolver == nil {
		return nil
	}
	return &VideoService{
		store:    store,
		resolver: resolver,
		rules:    rules,
		guard:    video.NewGuard(rules),
		logger:   logging.NewComponentLogger(logger, "video-service"),
		now:      time.Now,
	}
}

// Create stores a new pending record.
func (s *VideoService) Create(ctx context.Context, req CreateVideoRequest) (Video, error) {
	owner := strings.TrimSpace(req.OwnerID)
	ref := strings.TrimSpace(req.RawReference)
	if owner == "" || ref == "" {
		return Video{}, services.Wrap(services.ErrValidation, "api", "create video", "ownerId and rawReference are required", nil)
	}
	rec, err := s.store.Create(ctx, owner, ref)
	if err != nil {
		return Video{}, services.Wrap(services.ErrTransient, "api", "create video", "store write failed", err)
	}
	s.logger.Info("video record created",
		logging.String(logging.FieldRecordID, rec.RecordID),
		logging.String("owner_id", rec.OwnerID),
		logging.String("reference_kind", string(s.rules.Classify(ref).Kind)))
	return FromRecord(s.rules, rec), nil
}

// Describe returns one record. A pending record is resolved on the way out:
// the response shows what the record will look like once patched, and the
// patch itself is written in the background.
func (s *VideoService) Describe(ctx context.Context, recordID string) (Video, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return Video{}, services.Wrap(services.ErrValidation, "api", "describe video", "record id is required", nil)
	}
	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		return Video{}, services.Wrap(services.ErrTransient, "api", "describe video", "store read failed", err)
	}
	if rec == nil {
		return Video{}, services.Wrap(services.ErrNotFound, "api", "describe video", "record "+recordID, nil)
	}
	if rec.Status != video.StatusPending {
		return FromRecord(s.rules, rec), nil
	}

	ctx = services.WithRecordID(ctx, rec.RecordID)
	result := s.resolver.Resolve(ctx, rec.RawReference)
	view := *rec
	if patch, ok := s.patchFor(result); ok {
		s.guard.Apply(&view, patch, s.now())
		s.patchInBackground(ctx, rec.RecordID, patch)
	}
	dto := FromRecord(s.rules, &view)
	res := FromResult(result)
	dto.Resolution = &res
	return dto, nil
}

// ListByOwner returns an owner's records, newest first.
func (s *VideoService) ListByOwner(ctx context.Context, ownerID string) ([]Video, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "list videos", "owner id is required", nil)
	}
	records, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "list videos", "store read failed", err)
	}
	return FromRecords(s.rules, records), nil
}

// List returns every record filtered by status, oldest first.
func (s *VideoService) List(ctx context.Context, statuses ...video.Status) ([]Video, error) {
	records, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "list videos", "store read failed", err)
	}
	return FromRecords(s.rules, records), nil
}

// Resolve classifies and resolves a reference without touching any record.
func (s *VideoService) Resolve(ctx context.Context, ref string) (ResolveResponse, error) {
	if strings.TrimSpace(ref) == "" {
		return ResolveResponse{}, services.Wrap(services.ErrValidation, "api", "resolve", "reference is required", nil)
	}
	id := s.rules.Classify(ref)
	return ResolveResponse{
		Reference:  ref,
		Kind:       string(id.Kind),
		ID:         id.ID,
		Resolution: FromResult(s.resolver.Resolve(ctx, ref)),
	}, nil
}

// Wait blocks until every background patch started so far has finished.
func (s *VideoService) Wait() {
	s.background.Wait()
}

func (s *VideoService) patchFor(result resolution.Result) (video.Patch, bool) {
	switch {
	case result.IsResolved():
		return video.ReadyPatch(s.rules, result.PlaybackID, "api"), true
	case result.Terminal() && result.Reason == resolution.ReasonAssetDeleted:
		return video.TerminalPatch(video.StatusDeleted, "api"), true
	case result.Terminal():
		return video.TerminalPatch(video.StatusErrored, "api"), true
	default:
		return video.Patch{}, false
	}
}

// patchInBackground writes patch without holding up the response. The
// outcome is only logged and counted.
func (s *VideoService) patchInBackground(ctx context.Context, recordID string, patch video.Patch) {
	detached := context.WithoutCancel(ctx)
	logger := logging.WithContext(detached, s.logger)
	s.background.Go(func() {
		patchCtx, cancel := context.WithTimeout(detached, backgroundPatchTimeout)
		defer cancel()

		_, result, err := s.store.Patch(patchCtx, recordID, s.guard, patch)
		if err != nil {
			metrics.IncBackgroundPatch("error")
			logging.WarnWithContext(logger, "background record patch failed", "background_patch_failed",
				logging.Error(err),
				logging.String("status", string(patch.Status)),
				logging.String(logging.FieldErrorHint, "the next read or reconcile pass will retry"),
				logging.String(logging.FieldImpact, "record keeps its previous state until retried"))
			return
		}
		metrics.IncBackgroundPatch(string(result))
		logger.Debug("background record patch",
			logging.Args(logging.DecisionAttrs("background_patch", string(result), string(patch.Status))...)...)
	})
}
