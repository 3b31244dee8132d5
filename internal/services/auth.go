package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/voxscribe/apiserver/internal/store"
	"github.com/voxscribe/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at sign-up and on change.
const MinPasswordLength = 6

// AccountRepository defines persistence operations for identity accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	ChangeEmail(ctx context.Context, id, email string) error
	DeleteUser(ctx context.Context, id string) error
}

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	Get(ctx context.Context, id string) (types.Profile, error)
	GetRole(ctx context.Context, id string) (types.Role, error)
	List(ctx context.Context) ([]types.Profile, error)
	Create(ctx context.Context, profile types.Profile) (types.Profile, error)
	Update(ctx context.Context, id string, update types.ProfileUpdate) (types.Profile, error)
	UpdateRole(ctx context.Context, id string, role types.Role) (types.Profile, error)
	Delete(ctx context.Context, id string) error
}

// SessionRepository records revoked session tokens.
type SessionRepository interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthService implements the identity operations: accounts, sessions and
// the caller's own profile.
type AuthService struct {
	accounts AccountRepository
	profiles ProfileRepository
	sessions SessionRepository
	tokens   *TokenIssuer
	log      zerolog.Logger
}

func NewAuthService(
	accounts AccountRepository,
	profiles ProfileRepository,
	sessions SessionRepository,
	tokens *TokenIssuer,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		profiles: profiles,
		sessions: sessions,
		tokens:   tokens,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// Authenticate verifies a bearer token and rejects revoked sessions.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return types.Session{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if session.ID != "" {
		revoked, err := s.sessions.IsRevoked(ctx, session.ID)
		if err != nil {
			return types.Session{}, err
		}
		if revoked {
			return types.Session{}, ErrUnauthenticated
		}
	}
	return session, nil
}

// CurrentUser loads the account a session belongs to.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (types.User, error) {
	if userID == "" {
		return types.User{}, ErrUnauthenticated
	}
	user, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, err
	}
	return user, nil
}

// SignIn verifies the password and issues a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (types.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.Session{}, ErrInvalidCredentials
	}

	user, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Session{}, ErrInvalidCredentials
		}
		return types.Session{}, fail("Error logging in", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.Session{}, ErrInvalidCredentials
	}
	return s.tokens.Issue(user.ID, user.Email)
}

// SignUp creates an account and its profile with role user. A failed profile
// insert leaves the account in place and returns the error.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (types.Session, types.Profile, error) {
	email, err := validateEmail(email)
	if err != nil {
		return types.Session{}, types.Profile{}, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return types.Session{}, types.Profile{}, ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.Session{}, types.Profile{}, fail("Error creating account", err)
	}

	user, err := s.accounts.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Session{}, types.Profile{}, ErrEmailTaken
		}
		return types.Session{}, types.Profile{}, fail("Error creating account", err)
	}

	profile, err := s.profiles.Create(ctx, types.Profile{
		ID:    user.ID,
		Email: user.Email,
		Role:  types.RoleUser,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("profile insert failed after account creation")
		return types.Session{}, types.Profile{}, fail("Error creating profile", err)
	}

	session, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return types.Session{}, types.Profile{}, fail("Error creating account", err)
	}
	return session, profile, nil
}

// SignOut revokes the session until it would have expired anyway.
func (s *AuthService) SignOut(ctx context.Context, session types.Session) error {
	if session.ID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, session.ID, session.UserID, session.ExpiresAt); err != nil {
		return fail("Error logging out", err)
	}
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, id string) (types.Profile, error) {
	return s.profiles.Get(ctx, id)
}

// UpdateProfile writes the fields present in update. When the email differs
// from the account email the account is changed too, a refreshed session is
// returned and the caller's old token is revoked.
func (s *AuthService) UpdateProfile(ctx context.Context, session types.Session, update types.ProfileUpdate) (types.Profile, *types.Session, error) {
	user, err := s.CurrentUser(ctx, session.UserID)
	if err != nil {
		return types.Profile{}, nil, err
	}

	update.FirstName = trimmed(update.FirstName)
	update.LastName = trimmed(update.LastName)
	email := user.Email
	if update.Email != nil && strings.TrimSpace(*update.Email) != "" {
		if email, err = validateEmail(*update.Email); err != nil {
			return types.Profile{}, nil, err
		}
	}
	update.Email = &email

	profile, err := s.profiles.Update(ctx, user.ID, update)
	if err != nil {
		return types.Profile{}, nil, fail("Error updating profile", err)
	}

	if strings.EqualFold(email, user.Email) {
		return profile, nil, nil
	}

	if err := s.accounts.ChangeEmail(ctx, user.ID, email); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Profile{}, nil, ErrEmailTaken
		}
		return types.Profile{}, nil, fail("Error updating profile", err)
	}
	refreshed, err := s.tokens.Issue(user.ID, email)
	if err != nil {
		return types.Profile{}, nil, fail("Error updating profile", err)
	}
	if session.ID != "" {
		if err := s.sessions.Revoke(ctx, session.ID, session.UserID, session.ExpiresAt); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("revoke token after email change")
		}
	}
	return profile, &refreshed, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// UpdatePassword re-verifies the current password before storing the new one.
func (s *AuthService) UpdatePassword(ctx context.Context, session types.Session, current, next string) error {
	user, err := s.CurrentUser(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrIncorrectPassword
	}
	if utf8.RuneCountInString(next) < MinPasswordLength {
		return ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fail("Error updating password", err)
	}
	if err := s.accounts.UpdatePassword(ctx, user.ID, string(hashed)); err != nil {
		return fail("Error updating password", err)
	}
	return nil
}

// DeleteAccount removes the caller's account, profile and transcriptions,
// then signs the session out.
func (s *AuthService) DeleteAccount(ctx context.Context, session types.Session) error {
	if session.UserID == "" {
		return ErrUnauthenticated
	}
	if err := s.accounts.DeleteUser(ctx, session.UserID); err != nil {
		return fail("Error deleting account", err)
	}
	return s.SignOut(ctx, session)
}

// IsAdmin reports whether the profile has the admin role. Lookup failures
// are logged and read as false.
func (s *AuthService) IsAdmin(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	role, err := s.profiles.GetRole(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("admin check failed")
		return false
	}
	return role == types.RoleAdmin
}

func validateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
