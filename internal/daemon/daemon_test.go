package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"vidresolve/internal/api"
	"vidresolve/internal/app"
	"vidresolve/internal/config"
	"vidresolve/internal/daemon"
	"vidresolve/internal/provider"
	"vidresolve/internal/testsupport"
	"vidresolve/internal/webhook"
)

const (
	uploadID = "upl2Cd34Ef56Gh78Ij90Kl12Mn34Op56Qr78St90Uv12"
	assetID  = "Ab12Cd34Ef56Gh78Ij90Kl12Mn34Op56Qr78St90Uv12"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	comps, err := app.Build(cfg, nil)
	if err != nil {
		t.Fatalf("app.Build: %v", err)
	}
	d, err := daemon.New(cfg, comps, nil)
	if err != nil {
		comps.Close()
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	fake := testsupport.NewFakeProvider(t)
	cfg := testsupport.NewConfig(t, testsupport.WithProviderURL(fake.URL()))
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" || status.StoreDriver != "sqlite" {
		t.Fatalf("unexpected status %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected second start to fail with ErrAlreadyRunning, got %v", err)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonRefusesHeldLock(t *testing.T) {
	fake := testsupport.NewFakeProvider(t)
	cfg := testsupport.NewConfig(t, testsupport.WithProviderURL(fake.URL()))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	other := flock.New(cfg.DaemonLockPath())
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer other.Unlock()

	d := newDaemon(t, cfg)
	err := d.Start(context.Background())
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if d.Status().Running {
		t.Fatal("daemon must not run without the lock")
	}
}

func TestDaemonServesVideosAndWebhooks(t *testing.T) {
	fake := testsupport.NewFakeProvider(t)
	fake.SetUpload(uploadID, provider.UploadWaiting, "")
	cfg := testsupport.NewConfig(t,
		testsupport.WithProviderURL(fake.URL()),
		testsupport.WithAPIToken("sekrit"),
		testsupport.WithWebhookSecret("whsec"),
	)
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	base := "http://" + d.APIAddress()

	body, _ := json.Marshal(api.CreateVideoRequest{OwnerID: "owner-1", RawReference: uploadID})
	resp := doRequest(t, http.MethodPost, base+"/api/videos", "sekrit", body, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created api.VideoResponse
	decode(t, resp, &created)
	if created.Video.ReferenceKind != "upload_id" {
		t.Fatalf("unexpected created video %+v", created.Video)
	}

	unauthorized := doRequest(t, http.MethodGet, base+"/api/videos/"+created.Video.RecordID, "", nil, nil)
	unauthorized.Body.Close()
	if unauthorized.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", unauthorized.StatusCode)
	}

	event, _ := json.Marshal(webhook.Event{
		Type: webhook.EventAssetReady,
		Data: provider.AssetSnapshot{
			ID:          assetID,
			Status:      provider.AssetReady,
			UploadID:    uploadID,
			PlaybackIDs: []provider.PlaybackID{{ID: "PB1", Policy: provider.PolicyPublic}},
		},
	})
	headers := map[string]string{webhook.SignatureHeader: webhook.Sign(event, "whsec", time.Now())}
	hook := doRequest(t, http.MethodPost, base+"/webhooks/provider", "", event, headers)
	var decision webhook.Decision
	decode(t, hook, &decision)
	if hook.StatusCode != http.StatusOK || !decision.Accepted || decision.Patched != 1 {
		t.Fatalf("webhook = %d %+v", hook.StatusCode, decision)
	}

	got := doRequest(t, http.MethodGet, base+"/api/videos/"+created.Video.RecordID, "sekrit", nil, nil)
	var shown api.VideoResponse
	decode(t, got, &shown)
	if shown.Video.Status != "ready" || shown.Video.PlaybackURL != "https://stream.mux.com/PB1.m3u8" {
		t.Fatalf("unexpected video after webhook %+v", shown.Video)
	}

	resolved := doRequest(t, http.MethodGet, base+"/api/resolve?ref="+uploadID, "sekrit", nil, nil)
	var res api.ResolveResponse
	decode(t, resolved, &res)
	if res.Resolution.PlaybackID != "PB1" {
		t.Fatalf("webhook should have settled the cache, got %+v", res)
	}
	if fake.Calls(uploadID) != 0 {
		t.Fatalf("expected no provider lookups for %s, got %d", uploadID, fake.Calls(uploadID))
	}

	metrics := doRequest(t, http.MethodGet, base+"/metrics", "sekrit", nil, nil)
	raw, _ := io.ReadAll(metrics.Body)
	metrics.Body.Close()
	if !strings.Contains(string(raw), "vidresolve_webhook_events_total") {
		t.Fatal("expected webhook counter in metrics output")
	}
}

func doRequest(t *testing.T, method, url, token string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response (status %d): %v", resp.StatusCode, err)
	}
}
