package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"vidresolve/internal/identifier"
	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
	"vidresolve/internal/resolution"
	"vidresolve/internal/services"
	"vidresolve/internal/video"
)

// DefaultConcurrency bounds parallel record work when Options leaves it unset.
const DefaultConcurrency = 4

// ErrAlreadyRunning reports that another pass holds the reconcile lock.
var ErrAlreadyRunning = errors.New("reconcile: another pass is already running")

// Action is what the job did with one record.
type Action string

const (
	ActionPatched   Action = "patched"
	ActionSkipped   Action = "skipped"
	ActionDeferred  Action = "deferred"
	ActionMalformed Action = "malformed"
	ActionRefused   Action = "refused"
	ActionFailed    Action = "failed"
)

// Summary counts per-record outcomes of a pass.
type Summary struct {
	Scanned   int           `json:"scanned"`
	Patched   int           `json:"patched"`
	Skipped   int           `json:"skipped"`
	Deferred  int           `json:"deferred"`
	Malformed int           `json:"malformed"`
	Refused   int           `json:"refused"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

func (s *Summary) add(action Action) {
	s.Scanned++
	switch action {
	case ActionPatched:
		s.Patched++
	case ActionSkipped:
		s.Skipped++
	case ActionDeferred:
		s.Deferred++
	case ActionMalformed:
		s.Malformed++
	case ActionRefused:
		s.Refused++
	default:
		s.Failed++
	}
}

// Resolver is the resolution entry point the job depends on.
type Resolver interface {
	Resolve(ctx context.Context, raw string) resolution.Result
}

// RecordStore is the slice of the record store the job needs.
type RecordStore interface {
	List(ctx context.Context, statuses ...video.Status) ([]*video.Record, error)
	Patch(ctx context.Context, recordID string, guard video.Guard, p video.Patch) (*video.Record, video.PatchResult, error)
}

// Options configures a Job.
type Options struct {
	Rules       identifier.Rules
	Resolver    Resolver
	Store       RecordStore
	Concurrency int
	// LockPath enables the single-pass file lock used by RunAll.
	LockPath string
	Logger   *slog.Logger
}

// Job reconciles records.
type Job struct {
	rules       identifier.Rules
	guard       video.Guard
	resolver    Resolver
	store       RecordStore
	concurrency int
	lockPath    string
	logger      *slog.Logger
}

// New validates options and builds a job.
func New(opts Options) (*Job, error) {
	if opts.Resolver == nil {
		return nil, errors.New("reconcile: resolver is required")
	}
	if opts.Store == nil {
		return nil, errors.New("reconcile: record store is required")
	}
	j := &Job{
		rules:       opts.Rules,
		guard:       video.NewGuard(opts.Rules),
		resolver:    opts.Resolver,
		store:       opts.Store,
		concurrency: opts.Concurrency,
		lockPath:    strings.TrimSpace(opts.LockPath),
		logger:      logging.NewComponentLogger(opts.Logger, "reconcile"),
	}
	if j.concurrency <= 0 {
		j.concurrency = DefaultConcurrency
	}
	return j, nil
}

// RunAll reconciles every record in the store while holding the reconcile lock.
func (j *Job) RunAll(ctx context.Context) (Summary, error) {
	if j.lockPath != "" {
		lock := flock.New(j.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return Summary{}, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			return Summary{}, ErrAlreadyRunning
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				j.logger.Warn("failed to release reconcile lock", logging.Error(err))
			}
		}()
	}

	records, err := j.store.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list records: %w", err)
	}
	summary := j.Reconcile(ctx, records)
	return summary, ctx.Err()
}

// Reconcile processes records with bounded concurrency. Records not started
// before ctx is cancelled are left out of the summary.
func (j *Job) Reconcile(ctx context.Context, records []*video.Record) Summary {
	ctx = services.WithOperation(ctx, "reconcile")
	start := time.Now()

	var (
		mu      sync.Mutex
		summary Summary
		group   errgroup.Group
	)
	group.SetLimit(j.concurrency)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			action := j.reconcileRecord(ctx, rec)
			metrics.IncReconcileRecord(string(action))
			mu.Lock()
			summary.add(action)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	summary.Duration = time.Since(start)
	j.logger.Info("reconcile pass finished",
		logging.Int("scanned", summary.Scanned),
		logging.Int("patched", summary.Patched),
		logging.Int("skipped", summary.Skipped),
		logging.Int("deferred", summary.Deferred),
		logging.Int("malformed", summary.Malformed),
		logging.Int("refused", summary.Refused),
		logging.Int("failed", summary.Failed),
		logging.Duration("duration", summary.Duration))
	return summary
}

func (j *Job) reconcileRecord(ctx context.Context, rec *video.Record) Action {
	ctx = services.WithRecordID(ctx, rec.RecordID)
	logger := logging.WithContext(ctx, j.logger)

	if rec.Status.Terminal() {
		return ActionSkipped
	}

	canonical := j.rules.IsCanonicalURL(rec.PlaybackURL)
	if canonical {
		if rec.Status == video.StatusReady {
			return ActionSkipped
		}
		// A canonical URL already names its playback id; only the status lags.
		playbackID, _ := j.rules.EmbeddedID(rec.PlaybackURL)
		return j.apply(ctx, rec, video.ReadyPatch(j.rules, playbackID, "reconcile"))
	}

	reference := j.candidate(rec)
	result := j.resolver.Resolve(ctx, reference)
	logger.Debug("reconcile resolved record",
		logging.String(logging.FieldReference, reference),
		logging.String("outcome", result.Label()))

	switch {
	case result.IsResolved():
		return j.apply(ctx, rec, video.ReadyPatch(j.rules, result.PlaybackID, "reconcile"))
	case result.Reason == resolution.ReasonAssetErrored:
		return j.apply(ctx, rec, video.TerminalPatch(video.StatusErrored, "reconcile"))
	case result.Reason == resolution.ReasonAssetDeleted:
		return j.apply(ctx, rec, video.TerminalPatch(video.StatusDeleted, "reconcile"))
	case result.Reason == resolution.ReasonMalformed:
		return ActionMalformed
	default:
		return ActionDeferred
	}
}

// candidate picks the reference to resolve: the id embedded in a stored
// non-canonical URL when it names an asset or upload, the stored URL itself
// when it sits on the streaming host, and the raw reference otherwise.
func (j *Job) candidate(rec *video.Record) string {
	stored := strings.TrimSpace(rec.PlaybackURL)
	if stored == "" {
		return rec.RawReference
	}
	if embedded, ok := j.rules.EmbeddedID(stored); ok {
		switch j.rules.Classify(embedded).Kind {
		case identifier.KindAssetID, identifier.KindUploadID:
			return embedded
		}
	}
	if j.rules.Classify(stored).Kind == identifier.KindPlaybackID {
		return stored
	}
	return rec.RawReference
}

func (j *Job) apply(ctx context.Context, rec *video.Record, patch video.Patch) Action {
	_, result, err := j.store.Patch(ctx, rec.RecordID, j.guard, patch)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, j.logger), "reconcile patch failed", "reconcile_patch_failed",
			logging.Error(err),
			logging.String("target_status", string(patch.Status)),
			logging.String(logging.FieldErrorHint, "check the record store"),
			logging.String(logging.FieldImpact, "record left unchanged until the next pass"))
		return ActionFailed
	}
	if result.Changed() {
		logging.WithContext(ctx, j.logger).Info("record repaired",
			logging.Args(append(logging.DecisionAttrs("reconcile", string(result), string(patch.Status)),
				logging.String("playback_url", patch.PlaybackURL))...)...)
		return ActionPatched
	}
	if result == video.PatchRefused {
		logging.WarnWithContext(logging.WithContext(ctx, j.logger), "reconcile repair refused", "reconcile_patch_refused",
			logging.String("target_status", string(patch.Status)),
			logging.String("playback_url", patch.PlaybackURL),
			logging.String("stored_status", string(rec.Status)),
			logging.String(logging.FieldErrorHint, "inspect the record; the resolved URL is not canonical or the record changed state"),
			logging.String(logging.FieldImpact, "record keeps its stored URL and status"))
		return ActionRefused
	}
	return ActionSkipped
}
