package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/voxscribe/apiserver/internal/gate"
	"github.com/voxscribe/apiserver/internal/services"
	"github.com/voxscribe/apiserver/types"
)

// Authenticator verifies bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Session, error)
}

// AuthService is the identity surface used by the auth and profile handlers.
type AuthService interface {
	Authenticator
	AdminChecker
	CurrentUser(ctx context.Context, userID string) (types.User, error)
	SignIn(ctx context.Context, email, password string) (types.Session, error)
	SignUp(ctx context.Context, email, password string) (types.Session, types.Profile, error)
	SignOut(ctx context.Context, session types.Session) error
	GetProfile(ctx context.Context, id string) (types.Profile, error)
	UpdateProfile(ctx context.Context, session types.Session, update types.ProfileUpdate) (types.Profile, *types.Session, error)
	UpdatePassword(ctx context.Context, session types.Session, current, next string) error
	DeleteAccount(ctx context.Context, session types.Session) error
}

var _ AuthService = (*services.AuthService)(nil)

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, auth AuthService) {
	handler := NewAuthHandler(auth)
	requireAuth := RequireAuth(auth)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(requireAuth).Post("/logout", handler.Logout)
	r.With(requireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces a valid, unrevoked bearer token and stores the
// session in the request context.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				session types.Session
				authErr error
			)
			tokenString, err := bearerToken(r)
			if err == nil {
				session, authErr = auth.Authenticate(r.Context(), tokenString)
			}

			decision := gate.Authenticated(func() (types.Session, bool) {
				return session, err == nil && authErr == nil
			})
			if !decision.Allowed {
				if authErr != nil && !errors.Is(authErr, services.ErrUnauthenticated) {
					writeServiceError(w, r, authErr)
					return
				}
				writeError(w, http.StatusUnauthorized, decision.Message)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
		})
	}
}

// Register creates a new account and profile and returns a session token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	session, profile, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
		Profile:   &profile,
	})
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: user})
}

// Logout revokes the caller's token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	if err := h.auth.SignOut(r.Context(), session); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	user, err := h.auth.CurrentUser(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      types.User     `json:"user"`
	Profile   *types.Profile `json:"profile,omitempty"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
