package app

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/gatehouse/internal/acl"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/principal"
	"github.com/gatehouse-io/gatehouse/internal/resource"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	PrincipalHandler *principal.Handler
	ACLHandler       *acl.Handler
	ACLMiddleware    acl.Middleware
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with gatehouse defaults.
//
// Administration is itself authorized through the grant tables: read routes
// require read on the super-users resource, write routes require write on
// it, and per-group membership routes require write on that group's own
// resource key. Bootstrap seeds the super-users grants that make the first
// admin able to reach any of this.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	gates := principal.Gates{
		Read:       params.ACLMiddleware.Require(acl.Read, acl.StaticKey(principal.SuperUsersResourceKey)),
		Write:      params.ACLMiddleware.Require(acl.Write, acl.StaticKey(principal.SuperUsersResourceKey)),
		GroupWrite: params.ACLMiddleware.Require(acl.Write, groupResourceKey),
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		r.Get("/csrf", func(w http.ResponseWriter, req *http.Request) {
			sess := shared.SessionFromContext(req.Context())
			token, err := params.CSRFManager.EnsureToken(req.Context(), sess)
			if err != nil {
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
		})
	})

	r.Route("/users", func(r chi.Router) {
		params.PrincipalHandler.MountUserRoutes(r, gates)
	})
	r.Route("/groups", func(r chi.Router) {
		params.PrincipalHandler.MountGroupRoutes(r, gates)
	})
	r.Route("/grants", func(r chi.Router) {
		r.Use(gates.Write)
		params.ACLHandler.MountGrantRoutes(r)
	})
	r.Route("/authz", func(r chi.Router) {
		r.Use(gates.Read)
		params.ACLHandler.MountAuthzRoutes(r)
	})

	return r
}

func groupResourceKey(r *http.Request) string {
	id, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		return ""
	}
	return resource.Key("groups", id)
}
