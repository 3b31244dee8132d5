package types

import "time"

// Role is the authorization level of a profile.
type Role string

// Supported roles. A profile is always exactly one of these.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Toggle returns the other role: user becomes admin and admin becomes user.
func (r Role) Toggle() Role {
	if r == RoleAdmin {
		return RoleUser
	}
	return RoleAdmin
}

// User represents an identity account.
// It is owned by the identity layer; the rest of the application only holds
// its ID and email.
type User struct {
	// ID is the opaque identifier issued at sign-up (a UUID string).
	ID string `json:"id" db:"id"`

	// Email is the address the user signs in with.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the application-level user record, one-to-one with User.
type Profile struct {
	// ID equals the ID of the owning User.
	ID string `json:"id" db:"id"`

	// FirstName is optional.
	FirstName string `json:"first_name,omitempty" db:"first_name"`

	// LastName is optional.
	LastName string `json:"last_name,omitempty" db:"last_name"`

	// Email mirrors the account email.
	Email string `json:"email" db:"email"`

	// Role defaults to RoleUser at sign-up and can be changed by an admin.
	Role Role `json:"role" db:"role"`

	// CreatedAt is the timestamp when the profile was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the profile.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProfileUpdate carries the self-editable profile fields. Nil fields keep
// their stored value. A blank email also keeps the current one.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// Session is an authenticated session issued by the identity layer.
type Session struct {
	// Token is the signed bearer token.
	Token string `json:"token"`

	// UserID is the subject of the token.
	UserID string `json:"user_id"`

	// Email is the account email at the time the token was issued.
	Email string `json:"email"`

	// ID is the unique token identifier used for revocation.
	ID string `json:"-"`

	// ExpiresAt is when the token stops being accepted.
	ExpiresAt time.Time `json:"expires_at"`
}
