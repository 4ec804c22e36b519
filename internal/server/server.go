// Package server exposes the content update webhook and the admin API over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"docsync/internal/app"
	"docsync/internal/docsync"
)

const (
	defaultContentLimit = 50
	maxContentLimit     = 500
	shutdownTimeout     = 5 * time.Second

	// updateTimeout bounds a webhook-triggered pull and rebuild.
	updateTimeout = 10 * time.Minute
)

// Backend is the application surface the HTTP handlers drive.
type Backend interface {
	QueueStatus(ctx context.Context) (*app.QueueStatus, error)
	BuildFromPath(ctx context.Context, dir string) (*docsync.BuildSummary, error)
	RunQueue(ctx context.Context, timeLimit time.Duration) (int, error)
	ClearQueue(ctx context.Context) error
	SetForceUpdate(ctx context.Context, on bool) error
	ListContent(ctx context.Context, limit, offset int) (int64, []*docsync.ContentRecord, error)
	MaintenanceMode(ctx context.Context) (bool, error)
	RequestSourceUpdate(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Addr string

	// WebhookAccessKey must match the {key} path segment of webhook calls.
	// An empty key disables the webhook.
	WebhookAccessKey string

	// Media, when set, serves mirrored images below /media/.
	Media http.Handler
}

// Server serves the webhook and admin endpoints.
type Server struct {
	cfg     Config
	backend Backend
	logger  docsync.Logger
}

func New(cfg Config, backend Backend, logger docsync.Logger) *Server {
	return &Server{cfg: cfg, backend: backend, logger: logger}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhook/content-update/{key}", s.handleContentUpdate)

	mux.HandleFunc("GET /admin/queue", s.handleQueueStatus)
	mux.HandleFunc("POST /admin/queue/build", s.handleQueueBuild)
	mux.HandleFunc("POST /admin/queue/run", s.handleQueueRun)
	mux.HandleFunc("POST /admin/queue/clear", s.handleQueueClear)
	mux.HandleFunc("PUT /admin/settings/force-update", s.handleForceUpdate)
	mux.HandleFunc("GET /admin/content", s.handleContentList)

	if s.cfg.Media != nil {
		mux.Handle("/media/", http.StripPrefix("/media", s.cfg.Media))
	}
	return mux
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// webhookAllowed denies access in maintenance mode, when no key is
// configured, or when the key does not match.
func (s *Server) webhookAllowed(ctx context.Context, key string) (bool, error) {
	maintenance, err := s.backend.MaintenanceMode(ctx)
	if err != nil {
		return false, err
	}
	if maintenance || s.cfg.WebhookAccessKey == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.WebhookAccessKey)) == 1, nil
}

func (s *Server) handleContentUpdate(w http.ResponseWriter, r *http.Request) {
	ok, err := s.webhookAllowed(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
		return
	}

	s.logger.Info("content update requested", "remote", r.RemoteAddr)

	// A client that hangs up must not kill git halfway through a pull.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), updateTimeout)
	defer cancel()
	if err := s.backend.RequestSourceUpdate(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.QueueStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleQueueBuild rebuilds the queue. The optional dir value is only used
// when it names an existing directory; otherwise the configured docs dir is.
func (s *Server) handleQueueBuild(w http.ResponseWriter, r *http.Request) {
	dir := r.FormValue("dir")
	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			s.logger.Warn("ignoring build dir that is not a directory", "dir", dir)
			dir = ""
		}
	}

	summary, err := s.backend.BuildFromPath(r.Context(), dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleQueueRun(w http.ResponseWriter, r *http.Request) {
	var limit time.Duration
	if v := r.FormValue("time_limit"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "time_limit must be a non-negative number of seconds"})
			return
		}
		limit = time.Duration(secs) * time.Second
	}

	processed, err := s.backend.RunQueue(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ClearQueue(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForceUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: `body must be {"enabled": true|false}`})
		return
	}
	if err := s.backend.SetForceUpdate(r.Context(), *body.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type contentRow struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
	Locale     string `json:"locale"`
	Core       string `json:"core"`
	Title      string `json:"title"`
}

type contentList struct {
	Total int64        `json:"total"`
	Rows  []contentRow `json:"rows"`
}

func (s *Server) handleContentList(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultContentLimit)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive number"})
		return
	}
	limit = min(limit, maxContentLimit)
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "offset must be a non-negative number"})
		return
	}

	total, records, err := s.backend.ListContent(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := contentList{Total: total, Rows: make([]contentRow, 0, len(records))}
	for _, rec := range records {
		out.Rows = append(out.Rows, contentRow{
			ID:         rec.ID,
			ExternalID: rec.ExternalID,
			Locale:     rec.Locale,
			Core:       rec.CoreVersion,
			Title:      rec.Title,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, docsync.ErrInvalidSourceDirectory):
		status = http.StatusBadRequest
	case errors.Is(err, docsync.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
