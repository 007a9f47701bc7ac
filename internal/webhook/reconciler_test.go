package webhook_test

import (
	"context"
	"errors"
	"testing"

	"vidresolve/internal/identifier"
	"vidresolve/internal/provider"
	"vidresolve/internal/resolution"
	"vidresolve/internal/store"
	"vidresolve/internal/testsupport"
	"vidresolve/internal/video"
	"vidresolve/internal/webhook"
)

const (
	assetID  = "Ab12Cd34Ef56Gh78Ij90Kl12Mn34Op56Qr78St90Uv12"
	uploadID = "upl2Cd34Ef56Gh78Ij90Kl12Mn34Op56Qr78St90Uv12"
)

func readyEvent(asset, upload, playbackID string) webhook.Event {
	ev := webhook.Event{
		Type: webhook.EventAssetReady,
		Data: provider.AssetSnapshot{ID: asset, UploadID: upload, Status: provider.AssetReady},
	}
	if playbackID != "" {
		ev.Data.PlaybackIDs = []provider.PlaybackID{{ID: playbackID, Policy: provider.PolicyPublic}}
	}
	return ev
}

func newReconciler(t *testing.T) (*webhook.Reconciler, *store.Store, *resolution.Cache) {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	cache := resolution.New(resolution.Options{})
	r, err := webhook.NewReconciler(identifier.DefaultRules(), cache, st, nil)
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	return r, st, cache
}

func TestUnrecognizedEventIsRejected(t *testing.T) {
	r, st, cache := newReconciler(t)
	rec := testsupport.NewRecord(t, st, "owner", assetID)

	ev := readyEvent(assetID, "", "PB1")
	ev.Type = "video.asset.created"
	decision, err := r.HandleNotification(context.Background(), ev)
	if err != nil {
		t.Fatalf("HandleNotification returned error: %v", err)
	}
	if decision.Accepted || decision.Reason != webhook.ReasonUnrecognizedEvent {
		t.Fatalf("decision = %+v, want unrecognized_event", decision)
	}
	if cache.Count() != 0 {
		t.Fatalf("cache should be untouched, count=%d", cache.Count())
	}
	stored, _ := st.Get(context.Background(), rec.RecordID)
	if stored.Status != video.StatusPending {
		t.Fatalf("record status = %q, want pending", stored.Status)
	}
}

func TestMalformedReadyEventIsRejected(t *testing.T) {
	r, _, cache := newReconciler(t)
	cases := map[string]webhook.Event{
		"missing asset id":      readyEvent("", uploadID, "PB1"),
		"missing public id":     readyEvent(assetID, uploadID, ""),
		"only signed playbacks": {Type: webhook.EventAssetReady, Data: provider.AssetSnapshot{ID: assetID, PlaybackIDs: []provider.PlaybackID{{ID: "SIGNED", Policy: "signed"}}}},
	}
	for name, ev := range cases {
		decision, err := r.HandleNotification(context.Background(), ev)
		if err != nil {
			t.Fatalf("%s: HandleNotification returned error: %v", name, err)
		}
		if decision.Accepted || decision.Reason != webhook.ReasonMalformed {
			t.Fatalf("%s: decision = %+v, want malformed", name, decision)
		}
	}
	if cache.Count() != 0 {
		t.Fatalf("cache should be untouched, count=%d", cache.Count())
	}
}

func TestReadyEventPatchesRecordByUploadID(t *testing.T) {
	r, st, cache := newReconciler(t)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, st, "owner", uploadID)

	decision, err := r.HandleNotification(ctx, readyEvent(assetID, uploadID, "PB1"))
	if err != nil {
		t.Fatalf("HandleNotification returned error: %v", err)
	}
	if !decision.Accepted || decision.Matched != 1 || decision.Patched != 1 {
		t.Fatalf("decision = %+v, want accepted with one patch", decision)
	}

	stored, _ := st.Get(ctx, rec.RecordID)
	if stored.Status != video.StatusReady || stored.PlaybackURL != "https://stream.mux.com/PB1.m3u8" {
		t.Fatalf("unexpected stored record %#v", stored)
	}
	for _, key := range []string{assetID, uploadID} {
		entry, ok := cache.Get(key)
		if !ok || entry.Result.PlaybackID != "PB1" || !entry.Permanent {
			t.Fatalf("cache[%s] = %+v %v, want permanent PB1", key, entry, ok)
		}
	}
}

func TestReplayedReadyEventWritesOnce(t *testing.T) {
	r, st, _ := newReconciler(t)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, st, "owner", uploadID)
	ev := readyEvent(assetID, uploadID, "PB1")

	if _, err := r.HandleNotification(ctx, ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first, _ := st.Get(ctx, rec.RecordID)

	decision, err := r.HandleNotification(ctx, ev)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !decision.Accepted || decision.Patched != 0 {
		t.Fatalf("replay decision = %+v, want accepted without patches", decision)
	}
	second, _ := st.Get(ctx, rec.RecordID)
	if *first != *second {
		t.Fatalf("replay changed the record:\nfirst  %#v\nsecond %#v", first, second)
	}
}

func TestReadyEventFallsBackToAssetID(t *testing.T) {
	r, st, _ := newReconciler(t)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, st, "owner", assetID)

	decision, err := r.HandleNotification(ctx, readyEvent(assetID, uploadID, "PB1"))
	if err != nil {
		t.Fatalf("HandleNotification returned error: %v", err)
	}
	if decision.Patched != 1 {
		t.Fatalf("decision = %+v, want one patch", decision)
	}
	stored, _ := st.Get(ctx, rec.RecordID)
	if stored.Status != video.StatusReady {
		t.Fatalf("status = %q, want ready", stored.Status)
	}
}

func TestReadyEventWithoutRecordWarmsCache(t *testing.T) {
	r, _, cache := newReconciler(t)

	decision, err := r.HandleNotification(context.Background(), readyEvent(assetID, "", "PB1"))
	if err != nil {
		t.Fatalf("HandleNotification returned error: %v", err)
	}
	if !decision.Accepted || decision.Matched != 0 {
		t.Fatalf("decision = %+v, want accepted without matches", decision)
	}
	if _, ok := cache.Get(assetID); !ok {
		t.Fatal("expected cache entry for asset id")
	}
}

func TestReadyEventDoesNotResurrectTerminalRecord(t *testing.T) {
	r, st, _ := newReconciler(t)
	ctx := context.Background()
	rec := testsupport.ImportRecord(t, st, "owner", assetID, "", video.StatusDeleted)

	decision, err := r.HandleNotification(ctx, readyEvent(assetID, "", "PB1"))
	if err != nil {
		t.Fatalf("HandleNotification returned error: %v", err)
	}
	if decision.Matched != 1 || decision.Patched != 0 {
		t.Fatalf("decision = %+v, want matched but not patched", decision)
	}
	stored, _ := st.Get(ctx, rec.RecordID)
	if stored.Status != video.StatusDeleted || stored.PlaybackURL != "" {
		t.Fatalf("terminal record changed: %#v", stored)
	}
}

func TestLateReadyEventKeepsDeletedAsset(t *testing.T) {
	r, st, cache := newReconciler(t)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, st, "owner", uploadID)
	cache.Put(resolution.Failed(resolution.ReasonAssetDeleted, assetID), assetID)

	decision, err := r.HandleNotification(ctx, readyEvent(assetID, uploadID, "PB1"))
	if err != nil {
		t.Fatalf("HandleNotification returned error: %v", err)
	}
	if decision.Accepted || decision.Reason != webhook.ReasonTerminalAsset {
		t.Fatalf("decision = %+v, want terminal_asset rejection", decision)
	}
	entry, ok := cache.Get(assetID)
	if !ok || entry.Result.Reason != resolution.ReasonAssetDeleted {
		t.Fatalf("cache[%s] = %+v, want asset_deleted kept", assetID, entry.Result)
	}
	if _, ok := cache.Get(uploadID); ok {
		t.Fatalf("upload id should not be warmed from a stale ready event")
	}
	stored, _ := st.Get(ctx, rec.RecordID)
	if stored.Status != video.StatusPending || stored.PlaybackURL != "" {
		t.Fatalf("record changed by stale ready event: %#v", stored)
	}
}

type failingStore struct {
	findErr  error
	patchErr error
	records  []*video.Record
}

func (f *failingStore) FindByReference(context.Context, string) ([]*video.Record, error) {
	return f.records, f.findErr
}

func (f *failingStore) Patch(context.Context, string, video.Guard, video.Patch) (*video.Record, video.PatchResult, error) {
	return nil, video.PatchRefused, f.patchErr
}

func TestStoreFailuresAreReturned(t *testing.T) {
	boom := errors.New("database is down")
	stores := map[string]*failingStore{
		"find":  {findErr: boom},
		"patch": {patchErr: boom, records: []*video.Record{{RecordID: "rec-1", Status: video.StatusPending}}},
	}
	for name, fs := range stores {
		r, err := webhook.NewReconciler(identifier.DefaultRules(), resolution.New(resolution.Options{}), fs, nil)
		if err != nil {
			t.Fatalf("%s: NewReconciler: %v", name, err)
		}
		if _, err := r.HandleNotification(context.Background(), readyEvent(assetID, uploadID, "PB1")); !errors.Is(err, boom) {
			t.Fatalf("%s: error = %v, want %v", name, err, boom)
		}
	}
}

func TestParseEvent(t *testing.T) {
	body := []byte(`{"type":" video.asset.ready ","data":{"id":" ` + assetID + ` ","upload_id":"` + uploadID + `","status":"Ready","playback_ids":[{"id":"PB1","policy":"public"}]}}`)
	ev, err := webhook.ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent returned error: %v", err)
	}
	if ev.Type != webhook.EventAssetReady || ev.Data.ID != assetID || ev.Data.UploadID != uploadID || ev.Data.Status != "ready" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := webhook.ParseEvent([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
