// Package httpapi implements the gateway's HTTP facade (spec §6, C7): a
// Go 1.22+ http.ServeMux with method-pattern routes, JSON bodies, and the
// error-code-to-status mapping from spec §7.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehrlich-b/gatekeeper/internal/gwerrors"
	"github.com/ehrlich-b/gatekeeper/internal/logger"
	"github.com/ehrlich-b/gatekeeper/internal/metrics"
	"github.com/ehrlich-b/gatekeeper/internal/registry"
	"github.com/ehrlich-b/gatekeeper/internal/taskt"
)

// Stepper dispatches a step through whatever coordination layer sits in
// front of the session (directly, or via the batch coordinator).
type Stepper interface {
	Step(sess *registry.Session, action string) (registry.StepResult, error)
}

// Registry is the subset of *registry.Registry the HTTP facade depends on.
type Registry interface {
	Create(ctx context.Context, gameFile, taskType string) (*registry.Session, error)
	Get(id string) (*registry.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) []string
	ActiveCount() int
	MaxSessions() int
	GameFileCount() int
}

// Server wires the registry and step dispatcher behind net/http handlers.
type Server struct {
	registry    Registry
	steps       Stepper
	games       []string
	mux         *http.ServeMux
	createLimit *rate.Limiter
}

// New builds a Server and registers its routes. Session creation is
// additionally throttled by a coarse, server-wide token bucket — the core
// has no fairness policy (spec Non-goals), but an unthrottled creation
// storm would exhaust admission permits in a single burst. Requests beyond
// the bucket's capacity are rejected with 429 before reaching the registry,
// whether or not admission slots are free.
func New(reg Registry, steps Stepper, games []string) *Server {
	s := &Server{
		registry:    reg,
		steps:       steps,
		games:       games,
		mux:         http.NewServeMux(),
		createLimit: rate.NewLimiter(rate.Limit(20), 20),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /sessions", s.withCreateRateLimit(s.handleCreateSession))
	s.mux.HandleFunc("DELETE /sessions", s.handleDeleteAllSessions)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /sessions/{id}/step", s.handleStep)
	s.mux.HandleFunc("GET /games", s.handleListGames)
	s.mux.HandleFunc("GET /task-types", s.handleTaskTypes)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// withCreateRateLimit rejects session-creation bursts beyond the token
// bucket's capacity with a plain 429, before the request ever reaches the
// registry's admission semaphore.
func (s *Server) withCreateRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.createLimit.Allow() {
			writeError(w, http.StatusTooManyRequests, gwerrors.CodeInternal, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameFile string `json:"game_file"`
		TaskType string `json:"task_type"`
	}
	// An empty body is valid — both fields default to "".
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, gwerrors.CodeInternal, err.Error())
			return
		}
	}

	sess, err := s.registry.Create(r.Context(), req.GameFile, req.TaskType)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess.Snapshot()))
}

func (s *Server) handleDeleteAllSessions(w http.ResponseWriter, r *http.Request) {
	deleted := s.registry.DeleteAll(r.Context())
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "count": len(deleted)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess.Snapshot()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, gwerrors.CodeInternal, err.Error())
		return
	}

	result, err := s.steps.Step(sess, req.Action)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":          sess.ID,
		"observation":         result.Observation,
		"score":               result.Score,
		"done":                result.Done,
		"won":                 result.Won,
		"admissible_commands": result.AdmissibleCommands,
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games := s.games
	if games == nil {
		games = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games, "total": len(games)})
}

func (s *Server) handleTaskTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, taskt.Types)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.registry.ActiveCount(),
		"max_sessions":    s.registry.MaxSessions(),
		"available_games": s.registry.GameFileCount(),
		"metrics":         metrics.Default.Snapshot(),
	})
}

func sessionJSON(snap registry.Snapshot) map[string]any {
	return map[string]any{
		"session_id":          snap.SessionID,
		"game_file":           snap.GameFile,
		"observation":         snap.Observation,
		"admissible_commands": snap.AdmissibleCommands,
		"status":              snap.Status,
		"created_at":          snap.CreatedAt.Format(time.RFC3339),
		"last_active_at":      snap.LastActiveAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("httpapi: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code gwerrors.Code, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail, "error_code": string(code)})
}

// writeGatewayError maps a gwerrors.Code to its HTTP status (spec §7) and
// writes the error object.
func writeGatewayError(w http.ResponseWriter, err error) {
	code := gwerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case gwerrors.CodeSessionNotFound:
		status = http.StatusNotFound
	case gwerrors.CodeSessionDone:
		status = http.StatusConflict
	case gwerrors.CodeNoSlots:
		status = http.StatusServiceUnavailable
	case gwerrors.CodeContainerError, gwerrors.CodeInternal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, code, err.Error())
}
