package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-idv-capture/media"
	"go-idv-capture/metrics"
	"go-idv-capture/models"
	"go-idv-capture/session"
	"go-idv-capture/transport"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_INVALID_SESSION = "invalid session"
const ERR_SESSION_NOT_FOUND = "session not found"
const ERR_TOKEN_REMOVAL = "failed to remove token from storage"
const ERR_CAMERA_UNAVAILABLE = "camera unavailable"

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	UseTls         bool   `json:"use_tls,omitempty"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty"`
	TlsCertPath    string `json:"tls_cert_path,omitempty"`
}

// SessionFactory builds a capture session for a resolved token.
type SessionFactory func(id, token string) *session.Session

type sessionEntry struct {
	session *session.Session
	claimId string
}

type ServerState struct {
	tokenResolver TokenResolver
	tokenStorage  TokenStorage
	tokenIssuer   *TokenIssuer // nil unless the dev token endpoint is enabled
	metrics       *metrics.Metrics
	newSession    SessionFactory

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type Server struct {
	server *http.Server
	config ServerConfig
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)
	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	})

	router.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(state, w, r)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/session/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		handleStartSession(state, w, r)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/session/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		handleCapture(state, w, r)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/session/{id}/reset", func(w http.ResponseWriter, r *http.Request) {
		handleReset(state, w, r)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleSessionStatus(state, w, r)
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleEndSession(state, w, r)
	}).Methods(http.MethodDelete)

	if state.tokenIssuer != nil {
		slog.Warn("Dev token endpoint enabled, do not run this in production")
		router.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			handleIssueToken(state, w, r)
		}).Methods(http.MethodPost)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	slog.Debug("Registered all API routes")

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler: router,
		Addr:    addr,
		// Good practice: enforce timeouts for servers you create!
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
	}, nil
}

type CreateSessionRequest struct {
	Token string `json:"token"`
}

type CreateSessionResponse struct {
	SessionId string `json:"session_id"`
}

func handleCreateSession(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	slog.Info("Received request to create a capture session")

	var request CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", "failed to decode request body", err)
		return
	}

	claimId, err := state.tokenResolver.ResolveToken(request.Token)
	if err != nil {
		// An unresolvable token bypasses the capture flow entirely.
		respondWithErr(w, http.StatusUnauthorized, ERR_INVALID_SESSION, "failed to resolve verification token", err)
		return
	}

	id := uuid.NewString()
	sess := state.newSession(id, request.Token)
	sess.OnChunk = func(bytes int) {
		state.metrics.ChunksSent.Inc()
		state.metrics.ChunkBytes.Add(float64(bytes))
	}

	state.mu.Lock()
	state.sessions[id] = &sessionEntry{session: sess, claimId: claimId}
	state.mu.Unlock()

	slog.Info("Capture session created", "session_id", id)
	if err := writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionId: id}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleStartSession(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	entry, ok := lookupSession(state, w, r)
	if !ok {
		return
	}

	slog.Info("Received request to start streaming", "session_id", entry.session.ID)

	if err := entry.session.Start(r.Context()); err != nil {
		switch {
		case errors.Is(err, transport.ErrAuthenticationFailed):
			respondWithErr(w, http.StatusUnauthorized, ERR_INVALID_SESSION, "channel authentication failed", err)
		case errors.Is(err, media.ErrCameraUnavailable):
			respondWithErr(w, http.StatusServiceUnavailable, ERR_CAMERA_UNAVAILABLE, "failed to acquire camera", err)
		case errors.Is(err, session.ErrSessionCompleted), errors.Is(err, session.ErrSessionClosed):
			respondWithErr(w, http.StatusConflict, "session no longer active", "start rejected", err)
		case errors.Is(err, session.ErrSessionFailed):
			respondWithErr(w, http.StatusConflict, "session failed, reset required", "start rejected", err)
		default:
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to start session", err)
		}
		return
	}

	state.metrics.SessionsStarted.Inc()

	if err := writeJSON(w, http.StatusOK, entry.session.Snapshot()); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

type CaptureResponse struct {
	State    session.State `json:"state"`
	Code     int           `json:"code"`
	Message  string        `json:"message"`
	NextStep string        `json:"next_step"`
}

func handleCapture(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	entry, ok := lookupSession(state, w, r)
	if !ok {
		return
	}

	slog.Info("Received request to capture a frame", "session_id", entry.session.ID)

	status, err := entry.session.Capture(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotStreaming):
			respondWithErr(w, http.StatusConflict, "capture requires a streaming session", "capture rejected", err)
		case errors.Is(err, session.ErrSessionClosed):
			respondWithErr(w, http.StatusConflict, "session no longer active", "capture rejected", err)
		default:
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to capture", err)
		}
		return
	}

	state.metrics.FramesCaptured.Inc()
	if !status.OK() {
		state.metrics.AnalysisFailures.Inc()
	}

	// A completed verification invalidates the token.
	if status.OK() && status.NextStep == models.NextStepDone {
		removeSessionToken(state.tokenStorage, entry.claimId)
	}

	response := CaptureResponse{
		State:    entry.session.Snapshot().State,
		Code:     status.Code,
		Message:  status.Message,
		NextStep: status.NextStep,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleReset(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	entry, ok := lookupSession(state, w, r)
	if !ok {
		return
	}

	slog.Info("Received request to reset session", "session_id", entry.session.ID)

	if err := entry.session.Reset(r.Context()); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionCompleted), errors.Is(err, session.ErrSessionClosed):
			respondWithErr(w, http.StatusConflict, "session no longer active", "reset rejected", err)
		case errors.Is(err, session.ErrCaptureInFlight):
			respondWithErr(w, http.StatusConflict, "capture analysis in flight", "reset rejected", err)
		case errors.Is(err, media.ErrCameraUnavailable):
			respondWithErr(w, http.StatusServiceUnavailable, ERR_CAMERA_UNAVAILABLE, "failed to acquire camera", err)
		default:
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to reset session", err)
		}
		return
	}

	if err := writeJSON(w, http.StatusOK, entry.session.Snapshot()); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

type SessionStatusResponse struct {
	session.Snapshot
	FrameWidth     int                   `json:"frame_width,omitempty"`
	FrameHeight    int                   `json:"frame_height,omitempty"`
	FrameThumbnail string                `json:"frame_thumbnail,omitempty"`
	Face           *models.FaceDetection `json:"face,omitempty"`
}

func handleSessionStatus(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	entry, ok := lookupSession(state, w, r)
	if !ok {
		return
	}

	response := SessionStatusResponse{Snapshot: entry.session.Snapshot()}

	// The failed frame stays visible until the user resets.
	if frame := entry.session.Frame(); !frame.Empty() {
		response.FrameWidth = frame.Width
		response.FrameHeight = frame.Height
		thumbnail, err := frame.Thumbnail(320, 320)
		if err != nil {
			slog.Warn("Failed to render frame thumbnail", "session_id", entry.session.ID, "error", err)
		} else {
			response.FrameThumbnail = thumbnail
		}
	}

	response.Face = entry.session.FaceResult().Face

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleEndSession(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	id := mux.Vars(r)["id"]

	state.mu.Lock()
	entry, ok := state.sessions[id]
	delete(state.sessions, id)
	state.mu.Unlock()

	if !ok {
		respondWithErr(w, http.StatusNotFound, ERR_SESSION_NOT_FOUND, "unknown session id", nil)
		return
	}

	entry.session.Teardown()
	slog.Info("Capture session ended", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type IssueTokenRequest struct {
	SessionId string `json:"session_id"`
}

type IssueTokenResponse struct {
	SessionId string `json:"session_id"`
	Token     string `json:"token"`
}

// handleIssueToken mints and stores a verification token; only wired up
// when the dev token endpoint is enabled in the config.
func handleIssueToken(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	var request IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", "failed to decode request body", err)
		return
	}
	if request.SessionId == "" {
		request.SessionId = uuid.NewString()
	}

	token, err := state.tokenIssuer.IssueToken(request.SessionId)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to issue token", err)
		return
	}
	if err := state.tokenStorage.StoreToken(request.SessionId, token); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to store token", err)
		return
	}

	slog.Info("Issued verification token", "session_id", request.SessionId)
	if err := writeJSON(w, http.StatusOK, IssueTokenResponse{SessionId: request.SessionId, Token: token}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// -----------------------------------------------------------------------------------

// lookupSession resolves the {id} path variable to a registered session
func lookupSession(state *ServerState, w http.ResponseWriter, r *http.Request) (*sessionEntry, bool) {
	id := mux.Vars(r)["id"]

	state.mu.Lock()
	entry, ok := state.sessions[id]
	state.mu.Unlock()

	if !ok {
		slog.Warn("Unknown session id", "session_id", id)
		respondWithErr(w, http.StatusNotFound, ERR_SESSION_NOT_FOUND, "unknown session id", nil)
		return nil, false
	}
	return entry, true
}

// removeSessionToken removes the token and logs an error if it failed
func removeSessionToken(storage TokenStorage, sessionId string) {
	slog.Debug("Removing session token", "session_id", sessionId)
	if err := storage.RemoveToken(sessionId); err != nil {
		slog.Error(ERR_TOKEN_REMOVAL, "session_id", sessionId, "error", err)
	} else {
		slog.Debug("Session token removed successfully", "session_id", sessionId)
	}
}

// helpers ------------

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	w.WriteHeader(code)
	if _, err := w.Write([]byte(responseBody)); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written successfully", "status_code", status, "payload_size", len(payload))
	}
	return nil
}
