package handlers

import (
	"net/http"

	"github.com/ecocycle/apiserver/internal/services"
	"github.com/ecocycle/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AdminHandler provides the read-only admin endpoints.
type AdminHandler struct {
	analyticsService *services.AnalyticsService
	userService      *services.UserService
}

// NewAdminHandler constructs a handler with the provided services.
func NewAdminHandler(analyticsService *services.AnalyticsService, userService *services.UserService) *AdminHandler {
	return &AdminHandler{
		analyticsService: analyticsService,
		userService:      userService,
	}
}

// AdminRouter registers admin routes on the given router. Everything here
// requires the admin role.
func AdminRouter(r chi.Router, analyticsService *services.AnalyticsService, userService *services.UserService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAdminHandler(analyticsService, userService)

	r.Use(authMiddleware, requireRole(types.RoleAdmin))
	r.Get("/analytics", handler.Analytics)
	r.Get("/users", handler.ListUsers)
}

func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.analyticsService.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: users})
}

// UserListResponse wraps the admin user listing. Password hashes never
// serialize; the User type drops them.
type UserListResponse struct {
	Users []types.User `json:"users"`
}
