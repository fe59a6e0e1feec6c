package principal

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passGate(next http.Handler) http.Handler { return next }

func denyGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	})
}

func newPrincipalRouter(t *testing.T, gates Gates) (chi.Router, *mockRepository) {
	t.Helper()
	repo := newMockRepository()
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo))
	r := chi.NewRouter()
	r.Route("/users", func(r chi.Router) { handler.MountUserRoutes(r, gates) })
	r.Route("/groups", func(r chi.Router) { handler.MountGroupRoutes(r, gates) })
	return r, repo
}

func openGates() Gates {
	return Gates{Read: passGate, Write: passGate, GroupWrite: passGate}
}

func doJSON(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndListUsersEndpoint(t *testing.T) {
	router, _ := newPrincipalRouter(t, openGates())

	rec := doJSON(t, router, http.MethodPost, "/users/", `{"username":"alice","name":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = doJSON(t, router, http.MethodGet, "/users/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
}

func TestCreateUserEndpointValidates(t *testing.T) {
	router, _ := newPrincipalRouter(t, openGates())

	rec := doJSON(t, router, http.MethodPost, "/users/", `{"name":"No Username"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserEndpointNotFound(t *testing.T) {
	router, _ := newPrincipalRouter(t, openGates())

	rec := doJSON(t, router, http.MethodGet, "/users/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUserEndpointRejectsBadID(t *testing.T) {
	router, _ := newPrincipalRouter(t, openGates())

	rec := doJSON(t, router, http.MethodGet, "/users/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroupLifecycleEndpoints(t *testing.T) {
	router, _ := newPrincipalRouter(t, openGates())

	rec := doJSON(t, router, http.MethodPost, "/groups/", `{"name":"editors","description":"can edit"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"resource_key":"groups-1"`)

	rec = doJSON(t, router, http.MethodPost, "/users/", `{"username":"alice","name":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/groups/1/members/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/users/1/group-ids", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[1]`, rec.Body.String())

	rec = doJSON(t, router, http.MethodDelete, "/groups/1/members/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/users/1/group-ids", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(t, router, http.MethodDelete, "/groups/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/groups/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestWriteGateBlocksMutations(t *testing.T) {
	router, _ := newPrincipalRouter(t, Gates{Read: passGate, Write: denyGate, GroupWrite: denyGate})

	rec := doJSON(t, router, http.MethodPost, "/users/", `{"username":"alice"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/groups/1/members/1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Reads stay open under their own gate.
	rec = doJSON(t, router, http.MethodGet, "/users/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
