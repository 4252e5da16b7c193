package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plantsim/console/internal/session"
)

// SessionAPI is the dashboard shell's backing API for the active simulation
// session. All state lives in the injected store; handlers translate HTTP
// into store operations and report the derived queries back.
type SessionAPI struct {
	store *session.Store
	log   zerolog.Logger
}

func NewSessionAPI(store *session.Store, log zerolog.Logger) *SessionAPI {
	return &SessionAPI{store: store, log: log}
}

// Register wires the session endpoints onto the mux. Every session route
// sits behind requireAuth; only the health check is reachable anonymously.
func (s *SessionAPI) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/health", s.health)
	mux.Handle("GET /api/session", requireAuth(http.HandlerFunc(s.get)))
	mux.Handle("POST /api/session", requireAuth(http.HandlerFunc(s.start)))
	mux.Handle("PATCH /api/session", requireAuth(http.HandlerFunc(s.patch)))
	mux.Handle("POST /api/session/status", requireAuth(http.HandlerFunc(s.updateStatus)))
	mux.Handle("POST /api/session/recover", requireAuth(http.HandlerFunc(s.recover)))
	mux.Handle("DELETE /api/session", requireAuth(http.HandlerFunc(s.clear)))
}

type sessionResponse struct {
	CurrentSessionID string            `json:"currentSessionId,omitempty"`
	Metadata         *session.Metadata `json:"sessionMetadata,omitempty"`
	SocketConnected  bool              `json:"socketConnected"`
	Hydrated         bool              `json:"isHydrated"`
	Valid            bool              `json:"valid"`
	NeedsRecovery    bool              `json:"needsRecovery"`
}

func (s *SessionAPI) writeState(w http.ResponseWriter, status int) {
	state := s.store.State()
	writeJSON(w, status, sessionResponse{
		CurrentSessionID: state.CurrentSessionID,
		Metadata:         state.Metadata,
		SocketConnected:  state.SocketConnected,
		Hydrated:         state.Hydrated,
		Valid:            s.store.Valid(),
		NeedsRecovery:    s.store.NeedsRecovery(),
	})
}

func (s *SessionAPI) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *SessionAPI) get(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, http.StatusOK)
}

// start begins a new simulation run, replacing any current session. The name
// is optional, so an empty body is treated the same as an empty object.
func (s *SessionAPI) start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to generate session id")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	md := session.Metadata{
		Name:      req.Name,
		Status:    session.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SetSession(r.Context(), id.String(), md); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info().Str("session_id", id.String()).Str("name", req.Name).Msg("session started")
	s.writeState(w, http.StatusCreated)
}

func (s *SessionAPI) patch(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.store.SessionID(); !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}

	var req struct {
		Name   *string `json:"name"`
		Status *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := session.MetadataPatch{Name: req.Name}
	if req.Status != nil {
		status, err := session.ParseStatus(*req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Status = &status
	}

	s.store.UpdateMetadata(r.Context(), patch)
	s.writeState(w, http.StatusOK)
}

// updateStatus applies an externally observed status transition, e.g. one
// relayed by an operator action in the UI.
func (s *SessionAPI) updateStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.store.SessionID(); !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := session.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.store.UpdateStatus(r.Context(), status)
	s.writeState(w, http.StatusOK)
}

// recover resumes an interrupted run. Only valid while the store reports
// recovery is needed; the backend's recovery window still applies.
func (s *SessionAPI) recover(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.store.SessionID(); !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	if !s.store.NeedsRecovery() {
		writeError(w, http.StatusConflict, "session is not interrupted")
		return
	}

	s.store.UpdateStatus(r.Context(), session.StatusRunning)

	id, _ := s.store.SessionID()
	s.log.Info().Str("session_id", id).Msg("session recovered")
	s.writeState(w, http.StatusOK)
}

func (s *SessionAPI) clear(w http.ResponseWriter, r *http.Request) {
	s.store.ClearSession(r.Context())
	s.writeState(w, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
