package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
)

const maxBodyBytes = 1 << 20

// HandlerOptions configures the HTTP receiver.
type HandlerOptions struct {
	// SigningSecret enables signature verification when non-empty.
	SigningSecret string
	Logger        *slog.Logger
	Now           func() time.Time
}

// Handler receives notifications over HTTP. Rejected events are still
// acknowledged with 200 so the provider does not redeliver them; store
// failures answer 500 so it does.
func Handler(r *Reconciler, opts HandlerOptions) http.Handler {
	logger := logging.NewComponentLogger(opts.Logger, "webhook-http")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	secret := strings.TrimSpace(opts.SigningSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				metrics.IncWebhookEvent("rejected", ReasonMalformed)
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
			return
		}

		if secret != "" {
			if err := VerifySignature(req.Header.Get(SignatureHeader), body, secret, now()); err != nil {
				metrics.IncWebhookEvent("rejected", "bad_signature")
				logging.WarnWithContext(logging.WithContext(req.Context(), logger), "webhook signature rejected", "webhook_bad_signature",
					logging.Error(err),
					logging.String("remote_addr", req.RemoteAddr),
					logging.String(logging.FieldErrorHint, "check webhook.signing_secret matches the provider dashboard"),
					logging.String(logging.FieldImpact, "notification dropped"))
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
				return
			}
		}

		ev, err := ParseEvent(body)
		if err != nil {
			metrics.IncWebhookEvent("rejected", ReasonMalformed)
			writeJSON(w, http.StatusBadRequest, Rejected(ReasonMalformed))
			return
		}

		decision, err := r.HandleNotification(req.Context(), ev)
		if err != nil {
			logging.ErrorWithContext(logging.WithContext(req.Context(), logger), "webhook processing failed", "webhook_store_error",
				logging.Error(err),
				logging.String("asset_id", ev.Data.ID),
				logging.String(logging.FieldErrorHint, "check the record store; the provider will redeliver"),
				logging.String(logging.FieldImpact, "record not updated yet"))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
			return
		}
		writeJSON(w, http.StatusOK, decision)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
