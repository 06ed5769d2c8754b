// Package httpapi implements the Control API described in section 4.8 and
// section 6 of the design specification: the HTTP surface that starts and
// stops ingestion and reports status and health, grounded on the route
// table in the original implementation's app/main.py (FastAPI) restated as
// a plain net/http.ServeMux handler.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/gurre/nfs-ingestd/config"
	"github.com/gurre/nfs-ingestd/session"
)

// WatchStartRequest is the body of POST /v1/watch/start. SessionName is
// optional; an empty value auto-generates a name (see session.GenerateName).
type WatchStartRequest struct {
	SessionName string `json:"session_name,omitempty"`
}

// WatchStartResponse is returned by POST /v1/watch/start.
type WatchStartResponse struct {
	DatePrefix     string `json:"date_prefix"`
	SessionName    string `json:"session_name"`
	EncodedSession string `json:"encoded_session"`
}

// WatchStopResponse is returned by POST /v1/watch/stop.
type WatchStopResponse struct {
	Enabled bool `json:"enabled"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	Enabled       bool   `json:"enabled"`
	ActiveSession string `json:"active_session,omitempty"`
	ProcessedOK   int64  `json:"processed_ok"`
	ProcessedErr  int64  `json:"processed_err"`
	LastError     string `json:"last_error,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// errorResponse is the JSON body written for non-2xx responses, mirroring
// FastAPI's {"detail": "..."} convention used by the original implementation.
type errorResponse struct {
	Detail string `json:"detail"`
}

// Server exposes the ingest pipeline's control surface over HTTP.
type Server struct {
	cfg  *config.Config
	sess *session.State
	log  zerolog.Logger

	ready      atomic.Bool
	httpServer *http.Server
}

// NewServer constructs a Server bound to cfg.HTTPAddr. Call MarkReady once
// the Supervisor has finished startup (Azure auth, Recovery, background
// loops launched) so /readyz starts returning 200.
func NewServer(cfg *config.Config, sess *session.State, log zerolog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		sess: sess,
		log:  log.With().Str("component", "httpapi").Logger(),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/watch/start", s.handleWatchStart)
	mux.HandleFunc("POST /v1/watch/stop", s.handleWatchStop)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	return mux
}

// MarkReady flips /readyz to 200. Idempotent.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// ListenAndServe blocks serving the control API until the server is shut
// down or an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.HTTPAddr).Msg("control API listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWatchStart(w http.ResponseWriter, r *http.Request) {
	var body WatchStartRequest
	if r.Body != nil && r.ContentLength != 0 {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	datePrefix, sessionName, err := s.sess.Start(s.cfg.IncomingDir, s.cfg.ProcessingRoot, s.cfg.StagingRoot, body.SessionName)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionActive):
			writeError(w, http.StatusConflict, "session already active")
		case errors.Is(err, session.ErrInvalidSessionName):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error().Err(err).Msg("failed to start session")
			writeError(w, http.StatusInternalServerError, "failed to start session")
		}
		return
	}

	writeJSON(w, http.StatusOK, WatchStartResponse{
		DatePrefix:     datePrefix,
		SessionName:    sessionName,
		EncodedSession: sessionName,
	})
}

func (s *Server) handleWatchStop(w http.ResponseWriter, r *http.Request) {
	s.sess.Stop()
	writeJSON(w, http.StatusOK, WatchStopResponse{Enabled: false})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.sess.Snapshot()
	writeJSON(w, http.StatusOK, StatusResponse{
		Enabled:       snap.Active,
		ActiveSession: snap.SessionName,
		ProcessedOK:   snap.ProcessedOK,
		ProcessedErr:  snap.ProcessedErr,
		LastError:     snap.LastError,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
