package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vidresolve/internal/provider"
)

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := provider.New("  ", "id", "secret"); err == nil {
		t.Fatal("expected error when base url missing")
	}
}

func TestFetchAssetReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/asset/asset123" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			t.Errorf("expected basic auth, got %q/%q (%v)", user, pass, ok)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"asset123","status":"ready","playback_ids":[{"id":"SIGNED","policy":"signed"},{"id":"PB1","policy":"public"}]}}`))
	}))
	t.Cleanup(server.Close)

	client, err := provider.New(server.URL+"/v1/", "id", "secret")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	snapshot, err := client.FetchAsset(context.Background(), "asset123")
	if err != nil {
		t.Fatalf("FetchAsset returned error: %v", err)
	}
	if snapshot.Status != provider.AssetReady {
		t.Fatalf("unexpected status %q", snapshot.Status)
	}
	if got := snapshot.PublicPlaybackID(); got != "PB1" {
		t.Fatalf("PublicPlaybackID = %q, want PB1", got)
	}
}

func TestFetchAssetBareBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"Preparing","playback_ids":[]}`))
	}))
	t.Cleanup(server.Close)

	client, err := provider.New(server.URL, "", "")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	snapshot, err := client.FetchAsset(context.Background(), "asset-bare")
	if err != nil {
		t.Fatalf("FetchAsset returned error: %v", err)
	}
	if snapshot.ID != "asset-bare" || snapshot.Status != provider.AssetPreparing {
		t.Fatalf("unexpected snapshot %#v", snapshot)
	}
	if snapshot.PublicPlaybackID() != "" {
		t.Fatal("expected no public playback id")
	}
}

func TestFetchAssetErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{}`, provider.ErrNotFound},
		{"server error", http.StatusBadGateway, `oops`, provider.ErrUnavailable},
		{"rate limited", http.StatusTooManyRequests, `{}`, provider.ErrUnavailable},
		{"unauthorized", http.StatusUnauthorized, `{}`, provider.ErrUnavailable},
		{"garbage body", http.StatusOK, `{not json`, provider.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(server.Close)

			client, err := provider.New(server.URL, "id", "secret")
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			_, err = client.FetchAsset(context.Background(), "asset123")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFetchAssetExposesStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client, err := provider.New(server.URL, "id", "secret")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = client.FetchAsset(context.Background(), "asset123")
	var statusErr *provider.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.Code != http.StatusForbidden || statusErr.Endpoint != "asset" || !statusErr.Unauthorized() {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("status error should still match ErrUnavailable: %v", err)
	}
}

func TestFetchAssetTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client, err := provider.New(server.URL, "id", "secret", provider.WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.FetchAsset(context.Background(), "slow"); !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
	}
}

func TestFetchUpload(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/upload/upl123" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"upl123","status":"asset_created","asset_id":" asset456 "}}`))
	}))
	t.Cleanup(server.Close)

	client, err := provider.New(server.URL, "id", "secret", provider.WithRateLimit(100, 1))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	snapshot, err := client.FetchUpload(context.Background(), "upl123")
	if err != nil {
		t.Fatalf("FetchUpload returned error: %v", err)
	}
	if snapshot.Status != provider.UploadAssetCreated || snapshot.AssetID != "asset456" {
		t.Fatalf("unexpected upload snapshot %#v", snapshot)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", calls.Load())
	}
}

func TestRateLimiterRespectsCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}))
	t.Cleanup(server.Close)

	client, err := provider.New(server.URL, "", "", provider.WithRateLimit(0.001, 1))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.FetchAsset(context.Background(), "first"); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := client.FetchAsset(ctx, "second"); !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable when limiter wait is abandoned, got %v", err)
	}
}
