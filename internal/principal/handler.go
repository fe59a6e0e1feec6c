package principal

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
)

// Handler exposes user, group, and membership endpoints.
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

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Name     string `json:"name" validate:"max=255"`
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=1024"`
}

// Gates are the authorization middlewares the router injects around
// principal routes. Keeping them as plain middleware funcs avoids a
// dependency from this package on the resolver.
type Gates struct {
	// Read guards administrative read routes.
	Read func(http.Handler) http.Handler
	// Write guards administrative write routes.
	Write func(http.Handler) http.Handler
	// GroupWrite guards mutations scoped to one group's resource.
	GroupWrite func(http.Handler) http.Handler
}

// MountUserRoutes registers /users routes on the router.
func (h *Handler) MountUserRoutes(r chi.Router, gates Gates) {
	r.Group(func(r chi.Router) {
		r.Use(gates.Read)
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
		r.Get("/{userID}/groups", h.listUserGroups)
		r.Get("/{userID}/group-ids", h.listUserGroupIDs)
	})
	r.Group(func(r chi.Router) {
		r.Use(gates.Write)
		r.Post("/", h.createUser)
		r.Delete("/{userID}", h.deleteUser)
	})
}

// MountGroupRoutes registers /groups routes on the router.
func (h *Handler) MountGroupRoutes(r chi.Router, gates Gates) {
	r.Group(func(r chi.Router) {
		r.Use(gates.Read)
		r.Get("/", h.listGroups)
		r.Get("/{groupID}", h.getGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(gates.Write)
		r.Post("/", h.createGroup)
		r.Delete("/{groupID}", h.deleteGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(gates.GroupWrite)
		r.Put("/{groupID}/members/{userID}", h.addMember)
		r.Delete("/{groupID}/members/{userID}", h.removeMember)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), req.Username, req.Name)
	if err != nil {
		h.fail(w, r, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	groups, err := h.service.ListGroupsOf(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list user groups", err)
		return
	}
	if groups == nil {
		groups = []Group{}
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) listUserGroupIDs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	ids, err := h.service.ListGroupIDsOf(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list user group ids", err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httpx.JSON(w, http.StatusOK, ids)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.fail(w, r, "list groups", err)
		return
	}
	if groups == nil {
		groups = []Group{}
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	group, err := h.service.CreateGroup(r.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(w, r, "create group", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, group)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get group", err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		h.fail(w, r, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.AddMembership(r.Context(), userID, groupID); err != nil {
		h.fail(w, r, "add membership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.RemoveMembership(r.Context(), userID, groupID); err != nil {
		h.fail(w, r, "remove membership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "invalid "+param)
		return 0, false
	}
	return id, true
}
