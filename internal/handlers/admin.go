package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/voxscribe/apiserver/internal/gate"
	"github.com/voxscribe/apiserver/internal/services"
	"github.com/voxscribe/apiserver/types"
)

// AdminChecker reports whether a user holds the admin role. It must not error.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) bool
}

// AdminService is the admin console surface.
type AdminService interface {
	GetAllUsers(ctx context.Context) ([]types.Profile, error)
	GetAllTranscriptions(ctx context.Context) ([]types.AnnotatedTranscription, error)
	UpdateUserRole(ctx context.Context, userID string, role types.Role) (types.Profile, error)
	ToggleUserRole(ctx context.Context, userID string) (types.Profile, error)
	DeleteUser(ctx context.Context, userID string) error
}

var _ AdminService = (*services.AdminService)(nil)

// RequireAdmin must run after RequireAuth. Non-admins get 403.
func RequireAdmin(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := sessionFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, gate.SignInRequiredMessage)
				return
			}

			decision := gate.Admin(r.Context(), func(ctx context.Context) bool {
				return checker.IsAdmin(ctx, session.UserID)
			})
			if !decision.Allowed {
				writeError(w, http.StatusForbidden, decision.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminHandler serves the admin console.
type AdminHandler struct {
	admin          AdminService
	transcriptions TranscriptionService
}

func NewAdminHandler(admin AdminService, transcriptions TranscriptionService) *AdminHandler {
	return &AdminHandler{admin: admin, transcriptions: transcriptions}
}

// AdminRouter registers admin routes behind authentication and the admin gate.
func AdminRouter(r chi.Router, admin AdminService, transcriptions TranscriptionService, auth Authenticator, checker AdminChecker) {
	handler := NewAdminHandler(admin, transcriptions)

	r.Use(RequireAuth(auth), RequireAdmin(checker))
	r.Get("/users", handler.ListUsers)
	r.Get("/transcriptions", handler.ListTranscriptions)
	r.Route("/users/{id}", func(r chi.Router) {
		r.Delete("/", handler.DeleteUser)
		r.Put("/role", handler.UpdateRole)
		r.Post("/role/toggle", handler.ToggleRole)
	})
	r.Delete("/transcriptions/{id}", handler.DeleteTranscription)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.GetAllUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	items, err := h.admin.GetAllTranscriptions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	profile, err := h.admin.UpdateUserRole(r.Context(), id, types.Role(strings.TrimSpace(req.Role)))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AdminHandler) ToggleRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	profile, err := h.admin.ToggleUserRole(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// DeleteUser removes the user's transcriptions and profile. The account row is kept.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.admin.DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) DeleteTranscription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.transcriptions.DeleteTranscription(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type RoleRequest struct {
	Role string `json:"role"`
}
