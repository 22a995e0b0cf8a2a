package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"toolagent/agent"
	"toolagent/audit"
	"toolagent/state"
)

// Option configures a Server, following the teacher's functional-options
// pattern from the deleted app.go (adapted here, not byte-copied: that
// file built a multi-tenant agent registry server, this one drives a
// single agent.Controller).
type Option func(*Server)

// WithHost records a listen host (default "0.0.0.0"). Handler does not use
// it; the caller chooses the address it serves on.
func WithHost(host string) Option { return func(s *Server) { s.host = host } }

// WithPort records a listen port (default 8000). Handler does not use it;
// the caller chooses the address it serves on.
func WithPort(port int) Option { return func(s *Server) { s.port = port } }

// WithAuth enables the bearer-token gate.
func WithAuth(cfg AuthConfig) Option { return func(s *Server) { s.auth = cfg } }

// WithLogger attaches a zerolog.Logger. Default a disabled logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// Server exposes the core loop over HTTP/WebSocket, per SPEC_FULL.md's
// ADDITIONAL EXTERNAL INTERFACE section. It is additive: the core loop is
// identical whether driven from here or from cmd/toolagent's CLI.
type Server struct {
	host string
	port int
	auth AuthConfig
	log  zerolog.Logger

	controller *agent.Controller
	auditLog   *audit.Log

	mu   sync.Mutex
	runs map[string]*runRecord
}

type runRecord struct {
	ID      string
	Request string
	Status  string // "running", "done", "error"
	Result  *agent.Result
	Err     error
	State   *state.State
	events  chan runEvent
}

type runEvent struct {
	Event string
	Data  any
}

// New builds a Server around an already-wired Controller and its audit log
// (read by the /tail endpoint; the Server itself writes no entries).
func New(ctrl *agent.Controller, auditLog *audit.Log, opts ...Option) *Server {
	s := &Server{
		host:       "0.0.0.0",
		port:       8000,
		controller: ctrl,
		auditLog:   auditLog,
		runs:       make(map[string]*runRecord),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the http.Handler exposing all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /runs", s.requireAuth(s.handleCreateRun))
	mux.HandleFunc("GET /runs/{id}/events", s.requireAuth(s.handleRunEvents))
	mux.HandleFunc("GET /runs/{id}/tail", s.requireAuth(s.handleRunTail))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRunRequest struct {
	Request string `json:"request"`
}

type createRunResponse struct {
	RunID string `json:"run_id"`
}

// handleCreateRun starts one run(request) synchronously in a goroutine,
// per spec.md's single-threaded-per-request model: this run's internal
// Planner/Tool-Runner/Responder steps execute strictly in sequence, while
// the HTTP handler itself returns immediately with the run ID.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Request == "" {
		writeError(w, http.StatusBadRequest, "request field is required")
		return
	}

	runID := uuid.NewString()
	rec := &runRecord{
		ID:      runID,
		Request: req.Request,
		Status:  "running",
		State:   state.New(0),
		events:  make(chan runEvent, 64),
	}

	s.mu.Lock()
	s.runs[runID] = rec
	s.mu.Unlock()

	go s.runInBackground(rec)

	writeJSON(w, http.StatusAccepted, createRunResponse{RunID: runID})
}

func (s *Server) runInBackground(rec *runRecord) {
	defer close(rec.events)

	rec.events <- runEvent{Event: "plan", Data: map[string]string{"request": rec.Request}}
	result, err := s.controller.Run(context.Background(), rec.Request, rec.State)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		rec.Status = "error"
		rec.Err = err
		rec.events <- runEvent{Event: "error", Data: map[string]string{"error": err.Error()}}
		s.log.Error().Err(err).Str("run_id", rec.ID).Msg("run failed")
		return
	}
	rec.Status = "done"
	rec.Result = result
	rec.events <- runEvent{Event: "done", Data: map[string]string{"response": result.Response, "stopped": result.Stopped}}
}

func (s *Server) lookupRun(id string) (*runRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	return rec, ok
}
