package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidresolve/internal/api"
	"vidresolve/internal/config"
	"vidresolve/internal/logging"
	"vidresolve/internal/reconcile"
	"vidresolve/internal/resolution"
	"vidresolve/internal/services"
	"vidresolve/internal/video"
	"vidresolve/internal/webhook"
)

const maxRequestBytes = 64 << 10

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// routes builds the handler tree. The webhook route sits outside the bearer
// check because the provider authenticates with its own signature.
func (s *apiServer) routes(cfg *config.Config) http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/status", s.handleStatus)
	protected.HandleFunc("GET /api/resolve", s.handleResolve)
	protected.HandleFunc("GET /api/videos", s.handleListVideos)
	protected.HandleFunc("POST /api/videos", s.handleCreateVideo)
	protected.HandleFunc("GET /api/videos/{id}", s.handleVideo)
	protected.HandleFunc("GET /api/owners/{id}/videos", s.handleOwnerVideos)
	protected.HandleFunc("POST /api/reconcile", s.handleReconcile)
	protected.HandleFunc("GET /api/cache", s.handleCache)
	protected.HandleFunc("DELETE /api/cache/{key}", s.handleCacheRemove)
	protected.Handle("GET /metrics", promhttp.Handler())

	mux := http.NewServeMux()
	mux.Handle("/webhooks/provider", webhook.Handler(s.daemon.comps.Webhook, webhook.HandlerOptions{
		SigningSecret: cfg.Webhook.SigningSecret,
		Logger:        s.logger,
	}))
	mux.Handle("/", authMiddleware(cfg.Paths.APIToken, protected))
	return requestIDMiddleware(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	counts, err := s.daemon.comps.Store.CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		StoreDriver:   status.StoreDriver,
		StorePath:     status.StorePath,
		LockFilePath:  status.LockFilePath,
		VideoCounts:   api.MergeVideoCounts(counts),
		CacheEntries:  status.CacheEntries,
		AMQPConsumer:  status.AMQPConsumer,
		LastReconcile: status.LastReconcile,
	}
	if interval := s.daemon.cfg.ReconcileInterval(); interval > 0 {
		payload.ReconcileInterval = interval.String()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.comps.Videos.Resolve(r.Context(), r.URL.Query().Get("ref"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleListVideos(w http.ResponseWriter, r *http.Request) {
	var statuses []video.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := video.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	videos, err := s.daemon.comps.Videos.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoListResponse{Videos: videos})
}

func (s *apiServer) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	var req api.CreateVideoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := s.daemon.comps.Videos.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.VideoResponse{Video: created})
}

func (s *apiServer) handleVideo(w http.ResponseWriter, r *http.Request) {
	item, err := s.daemon.comps.Videos.Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoResponse{Video: item})
}

func (s *apiServer) handleOwnerVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.daemon.comps.Videos.ListByOwner(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoListResponse{Videos: videos})
}

func (s *apiServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.RunReconcile(r.Context(), "api")
	switch {
	case errors.Is(err, reconcile.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, api.FromSummary(summary))
	}
}

func (s *apiServer) handleCache(w http.ResponseWriter, _ *http.Request) {
	entries := api.FromCacheEntries(s.daemon.comps.Cache.List())
	s.writeJSON(w, http.StatusOK, api.CacheListResponse{Entries: entries})
}

func (s *apiServer) handleCacheRemove(w http.ResponseWriter, r *http.Request) {
	err := s.daemon.comps.Cache.Remove(r.PathValue("key"))
	switch {
	case errors.Is(err, resolution.ErrNotCached):
		s.writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log().Error("api request failed", logging.Error(err))
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
