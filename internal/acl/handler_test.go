package acl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/principal"
)

func newTestRouter(t *testing.T) (chi.Router, *mockStore) {
	t.Helper()
	store := newMockStore()
	store.addUser(principal.AnyUserID)
	store.addUser(7)
	store.addResource(docKey)

	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(store, nil))
	r := chi.NewRouter()
	r.Route("/grants", handler.MountGrantRoutes)
	r.Route("/authz", handler.MountAuthzRoutes)
	return r, store
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

func TestGrantEndpointThenCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/grants/",
		`{"principal":{"kind":"user","id":7},"kinds":["read","write"],"resource_key":"doc-42"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/authz/check",
		`{"user_id":7,"kind":"read","resource_key":"doc-42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":true}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/authz/check",
		`{"user_id":7,"kind":"delete","resource_key":"doc-42"}`)
	require.Equal(t, http.StatusOK, rec.Code, "denial is a 200 decision, not an error status")
	assert.JSONEq(t, `{"allowed":false}`, rec.Body.String())
}

func TestGrantEndpointAcceptsSentinelPrincipals(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/grants/",
		`{"principal":{"kind":"user","id":-1},"kinds":["read"],"resource_key":"doc-42"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/authz/check",
		`{"user_id":7,"kind":"read","resource_key":"doc-42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":true}`, rec.Body.String())
}

func TestGrantEndpointRejectsUnknownKind(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/grants/",
		`{"principal":{"kind":"user","id":7},"kinds":["own"],"resource_key":"doc-42"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrantEndpointRejectsUnknownPrincipalKind(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/grants/",
		`{"principal":{"kind":"robot","id":7},"kinds":["read"],"resource_key":"doc-42"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	require.NoError(t, store.InsertUserGrants(context.Background(), 7, docKey, []Kind{Read, Write}))

	rec := doJSON(t, router, http.MethodDelete, "/grants/",
		`{"principal":{"kind":"user","id":7},"kinds":["write"],"resource_key":"doc-42"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/authz/permissions?user_id=7&resource_key=doc-42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["read"]`, rec.Body.String())
}

func TestCheckRejectsUnknownReferences(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/authz/check",
		`{"user_id":999,"kind":"read","resource_key":"doc-42"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/authz/check",
		`{"user_id":7,"kind":"read","resource_key":"doc-404"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionsEndpointReturnsEmptyArray(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/authz/permissions?user_id=7&resource_key=doc-42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestResourcesEndpointRequiresUserID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/authz/resources", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
