package acl

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// KeyFunc derives the resource key guarding a request, typically from a route
// parameter. Returning "" denies the request.
type KeyFunc func(r *http.Request) string

// StaticKey returns a KeyFunc for routes guarded by a fixed resource.
func StaticKey(key string) KeyFunc {
	return func(*http.Request) string { return key }
}

// Middleware wires authorization gates for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current user holds the kind on the resource derived
// from the request. Denial responds 403; a missing user or resource responds
// 400; store faults respond 500.
func (m Middleware) Require(kind Kind, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			key := keyFn(r)
			if key == "" {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			allowed, err := m.Service.Can(r.Context(), userID, kind, key)
			if err != nil {
				if errors.Is(err, shared.ErrInvalidArgument) {
					http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
					return
				}
				if m.Logger != nil {
					m.Logger.Error("authorization check failed", slog.Any("error", err),
						slog.Int64("user_id", userID), slog.String("resource", key))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
