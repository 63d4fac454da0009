// Package ctlserver serves the local control API of the voxtype daemon.
//
// Global hotkey daemons, tray applets, and shell scripts drive dictation
// through this surface instead of linking the pipeline directly:
//
//	POST /toggle      start dictation when idle, stop it otherwise
//	POST /start       start dictation
//	POST /stop        finish the running dictation
//	POST /transcript  submit the final transcript of an externally captured session
//	POST /token       mint a vendor token for an external capture frontend
//	GET  /status      current lifecycle state, session ID, recording time
//
// The surface also exposes /healthz, /readyz, and /metrics for probes and
// Prometheus scrapes. Responses are JSON. The server binds to loopback by
// configuration; anything that can reach it can paste text into the focused
// window, so it must never listen on a public interface.
package ctlserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxtype/internal/health"
	"github.com/MrWong99/voxtype/internal/observe"
	"github.com/MrWong99/voxtype/internal/session"
	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

// TranscriptSink accepts the final transcript of a session whose audio was
// captured outside the daemon. Implementations reject transcripts for
// sessions that are no longer live.
type TranscriptSink interface {
	SubmitTranscript(id session.ID, text string) error
}

// Server translates control API requests into session controller calls.
type Server struct {
	controller *session.Controller
	sink       TranscriptSink
	health     *health.Handler
	metrics    *observe.Metrics
	tokens     stt.TokenIssuer
}

// New creates a control server around the given controller. Externally
// captured transcripts are handed to sink; the health handler serves the
// probe endpoints; metrics feeds the HTTP middleware.
func New(controller *session.Controller, sink TranscriptSink, h *health.Handler, m *observe.Metrics) *Server {
	return &Server{
		controller: controller,
		sink:       sink,
		health:     h,
		metrics:    m,
	}
}

// SetTokenIssuer enables POST /token. Without an issuer the route answers
// 404, which tells a capture frontend the configured STT provider has no
// browser-token support.
func (s *Server) SetTokenIssuer(iss stt.TokenIssuer) {
	s.tokens = iss
}

// Handler returns the full route table. The dictation routes run inside the
// observability middleware; health probes and metric scrapes are registered
// outside it so tray frontends polling /healthz do not flood the log or the
// request histogram.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /toggle", s.handleToggle)
	api.HandleFunc("POST /start", s.handleStart)
	api.HandleFunc("POST /stop", s.handleStop)
	api.HandleFunc("POST /transcript", s.handleTranscript)
	api.HandleFunc("POST /token", s.handleToken)
	api.HandleFunc("GET /status", s.handleStatus)

	root := http.NewServeMux()
	root.Handle("/", observe.Middleware(s.metrics)(api))
	s.health.Register(root)
	root.Handle("GET /metrics", promhttp.Handler())
	return root
}

// statusResponse is the JSON body returned by /status and by successful
// control operations. State is the lifecycle phase name ("inactive",
// "starting", "recording", "stopping").
type statusResponse struct {
	State     string `json:"state"`
	SessionID uint64 `json:"session_id,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
}

// errorResponse is the JSON body for rejected control operations.
type errorResponse struct {
	Error string `json:"error"`

	// State reports the lifecycle phase that caused the rejection, when the
	// rejection was state-dependent.
	State string `json:"state,omitempty"`
}

func statusFrom(st session.Status) statusResponse {
	return statusResponse{
		State:     st.State.String(),
		SessionID: uint64(st.ID),
		ElapsedMS: st.Elapsed.Milliseconds(),
	}
}

// handleToggle handles POST /toggle. It starts a session when idle and stops
// the running one otherwise, mirroring the hotkey behaviour for clients that
// cannot track state themselves.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if _, err := s.controller.Toggle(r.Context()); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusFrom(s.controller.Status()))
}

// handleStart handles POST /start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if _, err := s.controller.Start(r.Context()); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusFrom(s.controller.Status()))
}

// handleStop handles POST /stop.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.controller.Stop(); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusFrom(s.controller.Status()))
}

// transcriptRequest is the JSON body accepted by POST /transcript.
type transcriptRequest struct {
	// SessionID identifies the session the transcript belongs to, as
	// returned by /start or /status. Submissions for a superseded session
	// are rejected.
	SessionID uint64 `json:"session_id"`

	// Text is the final transcript. May be empty when the user said
	// nothing; the session then completes without inserting anything.
	Text string `json:"text"`
}

// handleTranscript handles POST /transcript. The transcript is queued for
// delivery and processed asynchronously; the response reports acceptance,
// not insertion.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.SessionID == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}
	if err := s.sink.SubmitTranscript(session.ID(req.SessionID), req.Text); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusFrom(s.controller.Status()))
}

// tokenResponse is the JSON body returned by /token.
type tokenResponse struct {
	Token string `json:"token"`
}

// handleToken handles POST /token. External capture frontends stream audio
// to the STT vendor themselves; the daemon holds the API key and mints them
// a short-lived token on demand. Each token is single-use, so clients
// request one per session.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "the configured STT provider does not issue capture tokens"})
		return
	}
	token, err := s.tokens.IssueToken(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "issuing capture token: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusFrom(s.controller.Status()))
}

// writeControlError maps controller errors onto HTTP statuses: a duplicate
// start or a stop with nothing running is a conflict with the current state,
// a missing focus target is a failed precondition the client can surface to
// the user.
func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	var active *session.AlreadyActiveError
	switch {
	case errors.As(err, &active):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(),
			State: active.State.String(),
		})
	case errors.Is(err, session.ErrNotActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrNoFocusTarget):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// writeJSON encodes v as JSON and writes it with the given status code. The
// body is marshalled before any header goes out, so an encoding failure can
// still turn into a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}
