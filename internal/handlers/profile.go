package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/voxscribe/apiserver/types"
)

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	auth AuthService
}

func NewProfileHandler(auth AuthService) *ProfileHandler {
	return &ProfileHandler{auth: auth}
}

// ProfileRouter registers profile routes. Every route requires authentication.
func ProfileRouter(r chi.Router, auth AuthService) {
	handler := NewProfileHandler(auth)

	r.Use(RequireAuth(auth))
	r.Get("/", handler.Get)
	r.Put("/", handler.Update)
	r.Delete("/", handler.Delete)
	r.Put("/password", handler.UpdatePassword)
	r.Get("/admin", handler.IsAdmin)
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	profile, err := h.auth.GetProfile(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Update edits names and email. A changed email comes back with a new token.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req types.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	session, _ := sessionFromContext(r.Context())
	profile, refreshed, err := h.auth.UpdateProfile(r.Context(), session, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := ProfileResponse{Profile: profile}
	if refreshed != nil {
		resp.Token = refreshed.Token
		resp.ExpiresAt = &refreshed.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProfileHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	session, _ := sessionFromContext(r.Context())
	if err := h.auth.UpdatePassword(r.Context(), session, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes the caller's account and everything it owns.
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	if err := h.auth.DeleteAccount(r.Context(), session); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) IsAdmin(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, AdminStatusResponse{Admin: h.auth.IsAdmin(r.Context(), session.UserID)})
}

type ProfileResponse struct {
	Profile   types.Profile `json:"profile"`
	Token     string        `json:"token,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

type PasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type AdminStatusResponse struct {
	Admin bool `json:"admin"`
}
