package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"

	"vidresolve/internal/api"
	"vidresolve/internal/app"
	"vidresolve/internal/config"
	"vidresolve/internal/provider"
	"vidresolve/internal/testsupport"
	"vidresolve/internal/video"
)

const (
	readyAsset = "Ab12Cd34Ef56Gh78Ij90Kl12Mn34Op56Qr78St90Uv12"
	goneAsset  = "Dl12Cd34Ef56Gh78Ij90Kl12Mn34Op56Qr78St90Uv12"
)

type apiFixture struct {
	cfg     *config.Config
	daemon  *Daemon
	handler http.Handler
	fake    *testsupport.FakeProvider
}

func newAPIFixture(t *testing.T, opts ...testsupport.ConfigOption) *apiFixture {
	t.Helper()
	fake := testsupport.NewFakeProvider(t)
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithProviderURL(fake.URL())}, opts...)...)
	comps, err := app.Build(cfg, nil)
	if err != nil {
		t.Fatalf("app.Build: %v", err)
	}
	d, err := New(cfg, comps, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return &apiFixture{cfg: cfg, daemon: d, handler: d.api.routes(cfg), fake: fake}
}

func (f *apiFixture) serve(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for key, values := range header {
		req.Header[http.CanonicalHeaderKey(key)] = values
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestAPIServerHandleStatus(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.NewRecord(t, f.daemon.comps.Store, "owner", readyAsset)

	w := f.serve(http.MethodGet, "/api/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.VideoCounts["pending"] != 1 || resp.VideoCounts["ready"] != 0 {
		t.Fatalf("unexpected counts %+v", resp.VideoCounts)
	}
	if resp.StoreDriver != "sqlite" || resp.LockFilePath != f.cfg.DaemonLockPath() {
		t.Fatalf("unexpected status %+v", resp)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestAPIServerEchoesRequestID(t *testing.T) {
	f := newAPIFixture(t)
	w := f.serve(http.MethodGet, "/api/cache", "", http.Header{requestIDHeader: {"req-42"}})
	if got := w.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}
}

func TestAPIServerVideoErrors(t *testing.T) {
	f := newAPIFixture(t)

	if w := f.serve(http.MethodGet, "/api/videos/missing", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown record status = %d, want 404", w.Code)
	}
	if w := f.serve(http.MethodPost, "/api/videos", "{", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d, want 400", w.Code)
	}
	if w := f.serve(http.MethodPost, "/api/videos", `{"ownerId":"o"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing reference status = %d, want 400", w.Code)
	}
	if w := f.serve(http.MethodGet, "/api/videos?status=bogus", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status filter = %d, want 400", w.Code)
	}
	if w := f.serve(http.MethodDelete, "/api/videos/x", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE video status = %d, want 405", w.Code)
	}
}

func TestAPIServerOwnerVideos(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.NewRecord(t, f.daemon.comps.Store, "owner-a", readyAsset)
	testsupport.NewRecord(t, f.daemon.comps.Store, "owner-b", goneAsset)

	w := f.serve(http.MethodGet, "/api/owners/owner-a/videos", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.VideoListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Videos) != 1 || resp.Videos[0].OwnerID != "owner-a" {
		t.Fatalf("unexpected videos %+v", resp.Videos)
	}
}

func TestAPIServerReconcile(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.SetAsset(readyAsset, provider.AssetReady, "PB1")
	f.fake.Remove(goneAsset)
	st := f.daemon.comps.Store
	testsupport.ImportRecord(t, st, "owner", readyAsset, "https://stream.mux.com/"+readyAsset+".mp4", video.StatusReady)
	testsupport.NewRecord(t, st, "owner", goneAsset)

	w := f.serve(http.MethodPost, "/api/reconcile", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var summary api.ReconcileSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary.Scanned != 2 || summary.Patched != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if last := f.daemon.Status().LastReconcile; last == nil || last.Trigger != "api" {
		t.Fatalf("expected last reconcile to be recorded, got %+v", last)
	}

	lock := flock.New(f.cfg.ReconcileLockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer lock.Unlock()
	if w := f.serve(http.MethodPost, "/api/reconcile", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("reconcile while locked = %d, want 409", w.Code)
	}
}

func TestAPIServerReconcileNotifies(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
	}))
	defer ntfy.Close()

	f := newAPIFixture(t, testsupport.WithNtfyTopic(ntfy.URL))
	f.fake.SetAsset(readyAsset, provider.AssetReady, "PB1")
	testsupport.NewRecord(t, f.daemon.comps.Store, "owner", readyAsset)

	if w := f.serve(http.MethodPost, "/api/reconcile", "", nil); w.Code != http.StatusOK {
		t.Fatalf("reconcile = %d, want 200", w.Code)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 || !strings.Contains(bodies[0], "1 patched") || !strings.Contains(bodies[0], "(api)") {
		t.Fatalf("unexpected notifications %q", bodies)
	}
}

func TestCancelledReconcileIsNotReported(t *testing.T) {
	var calls atomic.Int32
	ntfy := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer ntfy.Close()

	f := newAPIFixture(t, testsupport.WithNtfyTopic(ntfy.URL))
	testsupport.NewRecord(t, f.daemon.comps.Store, "owner", readyAsset)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.daemon.RunReconcile(ctx, "interval"); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunReconcile error = %v, want context.Canceled", err)
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("expected no notification for a cancelled pass, got %d", n)
	}
	if last := f.daemon.Status().LastReconcile; last != nil {
		t.Fatalf("cancelled pass should not replace the last reconcile, got %+v", last)
	}
}

func TestAPIServerCacheListAndRemove(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.SetAsset(readyAsset, provider.AssetReady, "PB1")
	f.daemon.comps.Resolver.Resolve(context.Background(), readyAsset)

	w := f.serve(http.MethodGet, "/api/cache", "", nil)
	var resp api.CacheListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Key != readyAsset || !resp.Entries[0].Permanent {
		t.Fatalf("unexpected entries %+v", resp.Entries)
	}

	if w := f.serve(http.MethodDelete, "/api/cache/"+readyAsset, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want 204", w.Code)
	}
	if w := f.serve(http.MethodDelete, "/api/cache/"+readyAsset, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second remove status = %d, want 404", w.Code)
	}
}

func TestAPIServerAuthSkipsWebhook(t *testing.T) {
	f := newAPIFixture(t, testsupport.WithAPIToken("sekrit"), testsupport.WithWebhookSecret("whsec"))

	if w := f.serve(http.MethodGet, "/api/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", w.Code)
	}
	if w := f.serve(http.MethodGet, "/api/status", "", http.Header{"Authorization": {"Bearer wrong"}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d, want 401", w.Code)
	}
	if w := f.serve(http.MethodGet, "/api/status", "", http.Header{"Authorization": {"Bearer sekrit"}}); w.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", w.Code)
	}
	if w := f.serve(http.MethodGet, "/metrics", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("metrics without token = %d, want 401", w.Code)
	}

	// The webhook answers on its own signature, not the bearer token.
	w := f.serve(http.MethodPost, "/webhooks/provider", `{"type":"video.asset.ready"}`, nil)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "signature") {
		t.Fatalf("unsigned webhook = %d %s, want signature rejection", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareDisabledWithoutToken(t *testing.T) {
	called := false
	handler := authMiddleware("  ", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("expected request to pass through without a token")
	}
}
