package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"prompt_json_structurer/render"
	"prompt_json_structurer/structurer"
)

// SubmitTimeout bounds one submit request, model call included.
const SubmitTimeout = 60 * time.Second

// Default session limits.
const (
	DefaultMaxSessions = 1000
	DefaultSessionIdle = 30 * time.Minute
)

// SessionLimits bounds the in-memory session store. A session unused for
// Idle is dropped, and past Max the least recently used one is.
type SessionLimits struct {
	Max  int
	Idle time.Duration
}

type Server struct {
	llm    structurer.LLMClient
	opts   []structurer.AgentOption
	store  *sessionStore
	logger *slog.Logger
}

type sessionStore struct {
	// mu makes get-and-renew atomic with respect to delete.
	mu       sync.Mutex
	sessions *expirable.LRU[string, *structurer.Agent]
}

func newStore(limits SessionLimits) *sessionStore {
	if limits.Max <= 0 {
		limits.Max = DefaultMaxSessions
	}
	if limits.Idle <= 0 {
		limits.Idle = DefaultSessionIdle
	}
	return &sessionStore{sessions: expirable.NewLRU[string, *structurer.Agent](limits.Max, nil, limits.Idle)}
}

func (s *sessionStore) set(id string, agent *structurer.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Add(id, agent)
}

// get returns the session and restarts its idle timer.
func (s *sessionStore) get(id string) (*structurer.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.sessions.Get(id)
	if ok {
		s.sessions.Add(id, agent)
	}
	return agent, ok
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(id)
}

// New creates a Server whose sessions all talk to llm. opts are applied to
// every session's Agent. Zero limits take the defaults.
func New(llm structurer.LLMClient, logger *slog.Logger, limits SessionLimits, opts ...structurer.AgentOption) (*Server, error) {
	if llm == nil {
		return nil, errors.New("llm client required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		llm:    llm,
		opts:   append(opts, structurer.WithLogger(logger)),
		store:  newStore(limits),
		logger: logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/examples", s.handleExamples)
	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleSessionGet))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("PUT /api/sessions/{id}/prompt", s.withSession(s.handlePrompt))
	mux.HandleFunc("POST /api/sessions/{id}/submit", s.withSession(s.handleSubmit))
	mux.HandleFunc("POST /api/sessions/{id}/edit", s.withSession(s.handleEdit))
	mux.HandleFunc("POST /api/sessions/{id}/expand", s.withSession(s.handleExpand))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	mux.HandleFunc("POST /api/sessions/{id}/dismiss", s.withSession(s.handleDismiss))
	mux.HandleFunc("GET /api/sessions/{id}/result.json", s.withSession(s.handleDownload))
	mux.HandleFunc("GET /api/sessions/{id}/view", s.withSession(s.handleView))
	return logMiddleware(s.logger, mux)
}

// --- Handlers ---

type promptReq struct {
	Prompt string `json:"prompt"`
}

type sessionResp struct {
	SessionID string `json:"session_id"`
	structurer.Snapshot
}

type errorResp struct {
	Error     string      `json:"error"`
	SessionID string      `json:"session_id,omitempty"`
	Session   *sessionResp `json:"session,omitempty"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent)

func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		agent, ok := s.store.get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		next(w, r, id, agent)
	}
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"examples": structurer.ExamplePrompts})
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	agent, err := structurer.NewAgent(s.llm, s.opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id := uuid.NewString()
	s.store.set(id, agent)
	writeJSON(w, http.StatusCreated, sessionResp{SessionID: id, Snapshot: agent.Snapshot()})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	writeJSON(w, http.StatusOK, sessionResp{SessionID: id, Snapshot: agent.Snapshot()})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if !s.store.delete(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	req, ok := decodePrompt(w, r)
	if !ok {
		return
	}
	s.transition(w, id, agent, agent.SetPromptText(req.Prompt))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	req, ok := decodePrompt(w, r)
	if !ok {
		return
	}
	text := strings.TrimSpace(req.Prompt)
	if text == "" {
		text = strings.TrimSpace(agent.Snapshot().PromptText)
	}
	ctx, cancel := context.WithTimeout(r.Context(), SubmitTimeout)
	defer cancel()
	snap, err := agent.Submit(ctx, text)
	if errors.Is(err, structurer.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, structurer.UserMessage(err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionResp{SessionID: id, Snapshot: snap})
}

// handleEdit reopens the result; without a body prompt the result's original
// prompt is offered.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	req, ok := decodePrompt(w, r)
	if !ok {
		return
	}
	text := req.Prompt
	if text == "" {
		text = agent.Snapshot().EditTarget()
	}
	s.transition(w, id, agent, agent.EditPrompt(text))
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	s.transition(w, id, agent, agent.Expand())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	agent.Reset()
	s.transition(w, id, agent, true)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	s.transition(w, id, agent, agent.DismissError())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	snap := agent.Snapshot()
	if snap.Result == nil {
		writeError(w, http.StatusNotFound, "no result to download")
		return
	}
	data, err := render.JSON(snap.Result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+render.DownloadFilename+`"`)
	_, _ = w.Write(data)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, id string, agent *structurer.Agent) {
	snap := agent.Snapshot()
	if snap.Result == nil {
		writeError(w, http.StatusNotFound, "no result to view")
		return
	}
	page, err := render.HTML(snap.Result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// transition answers 200 with the snapshot, or 409 when the session was not
// in a phase that allows the action.
func (s *Server) transition(w http.ResponseWriter, id string, agent *structurer.Agent, accepted bool) {
	resp := sessionResp{SessionID: id, Snapshot: agent.Snapshot()}
	if !accepted {
		writeJSON(w, http.StatusConflict, errorResp{
			Error:     "action not allowed while session is " + resp.Phase.String(),
			SessionID: id,
			Session:   &resp,
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// decodePrompt reads an optional {"prompt": "..."} body.
func decodePrompt(w http.ResponseWriter, r *http.Request) (promptReq, bool) {
	var req promptReq
	if r.Body == nil {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
