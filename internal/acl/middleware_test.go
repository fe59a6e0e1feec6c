package acl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/principal"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

func gateRequest(t *testing.T, mw Middleware, kind Kind, keyFn KeyFunc, userID *int64) *httptest.ResponseRecorder {
	t.Helper()
	var called bool
	handler := mw.Require(kind, keyFn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if userID != nil {
		sess := &shared.Session{}
		sess.SetUserID(*userID)
		req = req.WithContext(shared.ContextWithSession(context.Background(), sess))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusNoContent {
		assert.True(t, called)
	} else {
		assert.False(t, called, "denied requests must not reach the handler")
	}
	return rec
}

func TestRequireAllowsGrantedUser(t *testing.T) {
	store := newMockStore()
	store.addUser(7)
	store.addResource(docKey)
	svc := NewService(store, nil)
	require.NoError(t, svc.Grant(context.Background(), principal.UserRef(7), []Kind{Read}, docKey))

	userID := int64(7)
	rec := gateRequest(t, Middleware{Service: svc}, Read, StaticKey(docKey), &userID)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireDeniesUngrantedUser(t *testing.T) {
	store := newMockStore()
	store.addUser(7)
	store.addResource(docKey)
	svc := NewService(store, nil)

	userID := int64(7)
	rec := gateRequest(t, Middleware{Service: svc}, Write, StaticKey(docKey), &userID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRejectsAnonymous(t *testing.T) {
	svc := NewService(newMockStore(), nil)

	rec := gateRequest(t, Middleware{Service: svc}, Read, StaticKey(docKey), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireDeniesEmptyResourceKey(t *testing.T) {
	svc := NewService(newMockStore(), nil)

	userID := int64(7)
	rec := gateRequest(t, Middleware{Service: svc}, Read, StaticKey(""), &userID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireMapsInvalidReferencesToBadRequest(t *testing.T) {
	store := newMockStore()
	store.addResource(docKey)
	svc := NewService(store, nil)

	userID := int64(404) // not a registered user
	rec := gateRequest(t, Middleware{Service: svc}, Read, StaticKey(docKey), &userID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
