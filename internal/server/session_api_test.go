package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/plantsim/console/internal/auth"
	httpmiddleware "github.com/plantsim/console/internal/http"
	"github.com/plantsim/console/internal/session"
)

// passthrough stands in for the token middleware where authentication is not
// under test.
func passthrough(next http.Handler) http.Handler { return next }

func newTestAPI(t *testing.T) (*http.ServeMux, *session.Store) {
	t.Helper()

	store := session.NewStore(session.Config{Snapshots: session.NewMemorySnapshotStore()})
	store.Hydrate(context.Background())

	mux := http.NewServeMux()
	NewSessionAPI(store, zerolog.Nop()).Register(mux, passthrough)
	return mux, store
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) (*http.Response, sessionResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	resp := w.Result()
	var state sessionResponse
	if resp.StatusCode < 400 && path != "/api/health" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	}
	return resp, state
}

func TestHealth(t *testing.T) {
	mux, _ := newTestAPI(t)

	resp, _ := doJSON(t, mux, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestSessionLifecycle(t *testing.T) {
	mux, store := newTestAPI(t)

	// Empty to begin with.
	resp, state := doJSON(t, mux, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, state.CurrentSessionID)
	require.True(t, state.Hydrated)
	require.False(t, state.Valid)

	// Start a run.
	resp, state = doJSON(t, mux, http.MethodPost, "/api/session", `{"name":"line-3 stress run"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, state.CurrentSessionID)
	require.Equal(t, session.StatusRunning, state.Metadata.Status)
	require.Equal(t, "line-3 stress run", state.Metadata.Name)
	require.True(t, state.Valid)

	started := state.CurrentSessionID

	// Pause it.
	resp, state = doJSON(t, mux, http.MethodPost, "/api/session/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, session.StatusPaused, state.Metadata.Status)
	require.Equal(t, started, state.CurrentSessionID)

	// Rename it.
	resp, state = doJSON(t, mux, http.MethodPatch, "/api/session", `{"name":"renamed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "renamed", state.Metadata.Name)
	require.Equal(t, session.StatusPaused, state.Metadata.Status)

	// Terminate.
	resp, state = doJSON(t, mux, http.MethodDelete, "/api/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, state.CurrentSessionID)

	_, ok := store.SessionID()
	require.False(t, ok)
}

func TestStartWithEmptyBody(t *testing.T) {
	mux, _ := newTestAPI(t)

	// The name is optional, so no body at all still starts a run.
	resp, state := doJSON(t, mux, http.MethodPost, "/api/session", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, state.CurrentSessionID)
	require.Empty(t, state.Metadata.Name)
}

func TestSessionEndpointsRequireAuth(t *testing.T) {
	secret := []byte("session-api-test-secret-32-bytes!!")

	store := session.NewStore(session.Config{Snapshots: session.NewMemorySnapshotStore()})
	store.Hydrate(context.Background())
	require.NoError(t, store.SetSession(context.Background(), "run-1", session.Metadata{
		Name:   "active run",
		Status: session.StatusRunning,
	}))

	strategies := auth.DefaultStrategies(secret)
	authenticated := func(r *http.Request) bool {
		return auth.Authenticate(r, strategies) != nil
	}

	mux := http.NewServeMux()
	NewSessionAPI(store, zerolog.Nop()).Register(mux, httpmiddleware.RequireToken(authenticated))

	anonymous := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/session"},
		{http.MethodPost, "/api/session"},
		{http.MethodPatch, "/api/session"},
		{http.MethodPost, "/api/session/status"},
		{http.MethodPost, "/api/session/recover"},
		{http.MethodDelete, "/api/session"},
	}
	for _, tc := range anonymous {
		r := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		require.Equalf(t, http.StatusUnauthorized, w.Result().StatusCode, "%s %s", tc.method, tc.path)
	}

	// The anonymous delete must not have touched the run.
	id, ok := store.SessionID()
	require.True(t, ok)
	require.Equal(t, "run-1", id)

	// Health stays open.
	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	// With a valid token the same delete goes through.
	token, err := auth.NewCodec(auth.SecureTokenCookie, secret).
		Encode(auth.NewSessionClaims("op1", "Operator One", time.Hour))
	require.NoError(t, err)

	r = httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	r.AddCookie(&http.Cookie{Name: auth.SecureTokenCookie, Value: token})
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	_, ok = store.SessionID()
	require.False(t, ok)
}

func TestStatusEndpointValidation(t *testing.T) {
	mux, _ := newTestAPI(t)

	resp, _ := doJSON(t, mux, http.MethodPost, "/api/session/status", `{"status":"running"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, _ = doJSON(t, mux, http.MethodPost, "/api/session", `{"name":"run"}`)

	resp, _ = doJSON(t, mux, http.MethodPost, "/api/session/status", `{"status":"rebooting"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, mux, http.MethodPost, "/api/session/status", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecover(t *testing.T) {
	mux, store := newTestAPI(t)

	// No session at all.
	resp, _ := doJSON(t, mux, http.MethodPost, "/api/session/recover", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, _ = doJSON(t, mux, http.MethodPost, "/api/session", `{"name":"run"}`)

	// Running sessions have nothing to recover from.
	resp, _ = doJSON(t, mux, http.MethodPost, "/api/session/recover", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	store.UpdateStatus(context.Background(), session.StatusInterrupted)

	resp, state := doJSON(t, mux, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, state.NeedsRecovery)

	resp, state = doJSON(t, mux, http.MethodPost, "/api/session/recover", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, session.StatusRunning, state.Metadata.Status)
	require.False(t, state.NeedsRecovery)
}

func TestExpiredSessionIsInvalid(t *testing.T) {
	mux, store := newTestAPI(t)

	_, _ = doJSON(t, mux, http.MethodPost, "/api/session", `{"name":"run"}`)
	store.UpdateStatus(context.Background(), session.StatusExpired)

	resp, state := doJSON(t, mux, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, state.Valid)
	require.NotEmpty(t, state.CurrentSessionID)
}
