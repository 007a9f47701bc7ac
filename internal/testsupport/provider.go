package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vidresolve/internal/provider"
)

// FakeProvider is an in-process stand-in for the provider's lookup API that
// counts every request it receives.
type FakeProvider struct {
	Server *httptest.Server

	mu       sync.Mutex
	assets   map[string]provider.AssetSnapshot
	uploads  map[string]provider.UploadSnapshot
	failures map[string]int
	calls    map[string]int
	total    int
	gate     chan struct{}
}

// NewFakeProvider starts a fake provider and registers cleanup.
func NewFakeProvider(t testing.TB) *FakeProvider {
	t.Helper()

	f := &FakeProvider{
		assets:   make(map[string]provider.AssetSnapshot),
		uploads:  make(map[string]provider.UploadSnapshot),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /asset/{id}", f.serveAsset)
	mux.HandleFunc("GET /upload/{id}", f.serveUpload)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		f.Unblock()
		f.Server.Close()
	})
	return f
}

// URL returns the base URL to configure the provider client with.
func (f *FakeProvider) URL() string {
	return f.Server.URL
}

// SetAsset registers an asset. A non-empty publicPlaybackID is exposed with
// the public policy.
func (f *FakeProvider) SetAsset(id, status, publicPlaybackID string) {
	snapshot := provider.AssetSnapshot{ID: id, Status: status}
	if publicPlaybackID != "" {
		snapshot.PlaybackIDs = []provider.PlaybackID{{ID: publicPlaybackID, Policy: provider.PolicyPublic}}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[id] = snapshot
	delete(f.failures, id)
}

// SetUpload registers a direct upload.
func (f *FakeProvider) SetUpload(id, status, assetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[id] = provider.UploadSnapshot{ID: id, Status: status, AssetID: assetID}
	delete(f.failures, id)
}

// Fail makes every lookup of id answer with the given HTTP status.
func (f *FakeProvider) Fail(id string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = status
}

// Remove forgets id so lookups answer 404.
func (f *FakeProvider) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assets, id)
	delete(f.uploads, id)
	delete(f.failures, id)
}

// Block holds every request until Unblock is called.
func (f *FakeProvider) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Unblock releases held requests.
func (f *FakeProvider) Unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Calls returns how many requests were made for id on any endpoint.
func (f *FakeProvider) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// TotalCalls returns the number of requests served.
func (f *FakeProvider) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func (f *FakeProvider) serveAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, ok := f.record(r, id)
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	f.mu.Lock()
	snapshot, found := f.assets[id]
	f.mu.Unlock()
	if !ok || !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeData(w, snapshot)
}

func (f *FakeProvider) serveUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, ok := f.record(r, id)
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	f.mu.Lock()
	snapshot, found := f.uploads[id]
	f.mu.Unlock()
	if !ok || !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeData(w, snapshot)
}

// record counts the request, waits on the gate, and returns a forced failure
// status if one is configured. ok is false when the client went away.
func (f *FakeProvider) record(r *http.Request, id string) (int, bool) {
	f.mu.Lock()
	f.calls[id]++
	f.total++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return 0, false
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[id], true
}

func writeData(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": payload})
}
