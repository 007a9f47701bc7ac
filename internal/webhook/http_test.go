package webhook_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vidresolve/internal/identifier"
	"vidresolve/internal/resolution"
	"vidresolve/internal/testsupport"
	"vidresolve/internal/video"
	"vidresolve/internal/webhook"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func readyBody() []byte {
	return []byte(`{"type":"video.asset.ready","data":{"id":"` + assetID + `","upload_id":"` + uploadID + `","status":"ready","playback_ids":[{"id":"PB1","policy":"public"}]}}`)
}

func newHandler(t *testing.T, secret string) (http.Handler, func() *video.Record) {
	t.Helper()
	r, st, _ := newReconciler(t)
	rec := testsupport.NewRecord(t, st, "owner", uploadID)
	handler := webhook.Handler(r, webhook.HandlerOptions{
		SigningSecret: secret,
		Now:           func() time.Time { return fixedNow },
	})
	return handler, func() *video.Record {
		stored, err := st.Get(t.Context(), rec.RecordID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		return stored
	}
}

func post(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAcceptsSignedNotification(t *testing.T) {
	handler, stored := newHandler(t, "secret")
	body := readyBody()

	resp := post(handler, body, webhook.Sign(body, "secret", fixedNow))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", resp.Code, resp.Body.String())
	}
	var decision webhook.Decision
	if err := json.Unmarshal(resp.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if !decision.Accepted || decision.Patched != 1 {
		t.Fatalf("decision = %+v, want accepted with one patch", decision)
	}
	if got := stored(); got.Status != video.StatusReady {
		t.Fatalf("record status = %q, want ready", got.Status)
	}
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	handler, stored := newHandler(t, "secret")
	body := readyBody()

	for _, signature := range []string{"", webhook.Sign(body, "wrong", fixedNow)} {
		resp := post(handler, body, signature)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.Code)
		}
	}
	if got := stored(); got.Status != video.StatusPending {
		t.Fatalf("record status = %q, want pending", got.Status)
	}
}

func TestHandlerWithoutSecretSkipsVerification(t *testing.T) {
	handler, _ := newHandler(t, "")
	if resp := post(handler, readyBody(), ""); resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	handler, _ := newHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/webhooks/provider", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", resp.Code)
	}

	if resp := post(handler, []byte(`{broken`), ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("malformed status = %d, want 400", resp.Code)
	}

	unrecognized := []byte(`{"type":"video.upload.created","data":{}}`)
	resp = post(handler, unrecognized, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), webhook.ReasonUnrecognizedEvent) {
		t.Fatalf("unrecognized status = %d body %s, want 200 with reason", resp.Code, resp.Body.String())
	}

	huge := bytes.Repeat([]byte("a"), 2<<20)
	if resp := post(handler, huge, ""); resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized status = %d, want 413", resp.Code)
	}
}

func TestHandlerReportsStoreFailure(t *testing.T) {
	fs := &failingStore{findErr: errors.New("database is down")}
	r, err := webhook.NewReconciler(identifier.DefaultRules(), resolution.New(resolution.Options{}), fs, nil)
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	handler := webhook.Handler(r, webhook.HandlerOptions{})
	if resp := post(handler, readyBody(), ""); resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
}
