package acl

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/principal"
)

// Handler exposes grant management and authorization query endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

type principalRef struct {
	Kind string `json:"kind" validate:"required,oneof=user group"`
	ID   int64  `json:"id" validate:"required"`
}

type grantRequest struct {
	Principal   principalRef `json:"principal" validate:"required"`
	Kinds       []string     `json:"kinds" validate:"required,min=1,dive,oneof=create read write delete"`
	ResourceKey string       `json:"resource_key" validate:"required"`
}

type checkRequest struct {
	UserID      int64  `json:"user_id" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=create read write delete"`
	ResourceKey string `json:"resource_key" validate:"required"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// MountGrantRoutes registers grant mutation routes.
func (h *Handler) MountGrantRoutes(r chi.Router) {
	r.Post("/", h.grant)
	r.Delete("/", h.revoke)
}

// MountAuthzRoutes registers authorization query routes.
func (h *Handler) MountAuthzRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Get("/permissions", h.effectivePermissions)
	r.Get("/resources", h.allGrantedResources)
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	req, p, kinds, ok := h.decodeGrant(w, r)
	if !ok {
		return
	}
	if err := h.service.Grant(r.Context(), p, kinds, req.ResourceKey); err != nil {
		h.fail(w, r, "grant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	req, p, kinds, ok := h.decodeGrant(w, r)
	if !ok {
		return
	}
	if err := h.service.Revoke(r.Context(), p, kinds, req.ResourceKey); err != nil {
		h.fail(w, r, "revoke", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	allowed, err := h.service.Can(r.Context(), req.UserID, Kind(req.Kind), req.ResourceKey)
	if err != nil {
		h.fail(w, r, "check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("resource_key")
	if key == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "resource_key required")
		return
	}
	kinds, err := h.service.EffectivePermissions(r.Context(), userID, key)
	if err != nil {
		h.fail(w, r, "effective permissions", err)
		return
	}
	if kinds == nil {
		kinds = []Kind{}
	}
	httpx.JSON(w, http.StatusOK, kinds)
}

func (h *Handler) allGrantedResources(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}
	grants, err := h.service.AllGrantedResources(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "all granted resources", err)
		return
	}
	if grants == nil {
		grants = []ResourceGrant{}
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) decodeGrant(w http.ResponseWriter, r *http.Request) (grantRequest, principal.Principal, []Kind, bool) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return req, principal.Principal{}, nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return req, principal.Principal{}, nil, false
	}

	var p principal.Principal
	switch req.Principal.Kind {
	case "user":
		p = principal.UserRef(req.Principal.ID)
	case "group":
		p = principal.GroupRef(req.Principal.ID)
	}

	kinds := make([]Kind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kind, err := ParseKind(k)
		if err != nil {
			httpx.RespondError(w, err)
			return req, principal.Principal{}, nil, false
		}
		kinds = append(kinds, kind)
	}
	return req, p, kinds, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err)
}

func queryUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "user_id required")
		return 0, false
	}
	return id, true
}
