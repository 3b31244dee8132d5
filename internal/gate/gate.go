// Package gate holds the route guards shared by the HTTP middleware and the CLI.
package gate

import (
	"context"

	"github.com/voxscribe/apiserver/types"
)

// Redirect targets for denied navigation.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Denial messages.
const (
	SignInRequiredMessage = "Please sign in to continue."
	AdminDeniedMessage    = "Access denied. Admin privileges required."
)

// Decision is the outcome of a guard.
type Decision struct {
	Allowed  bool
	Redirect string
	Message  string
}

// Err returns nil for an allowed decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Redirect: d.Redirect, Message: d.Message}
}

// DeniedError reports a denied guard and where the caller should go instead.
type DeniedError struct {
	Redirect string
	Message  string
}

func (e *DeniedError) Error() string {
	return e.Message
}

// Authenticated allows when latest reports a signed-in session. It never
// blocks and never refreshes.
func Authenticated(latest func() (types.Session, bool)) Decision {
	if latest != nil {
		if _, ok := latest(); ok {
			return Decision{Allowed: true}
		}
	}
	return Decision{Redirect: LoginPath, Message: SignInRequiredMessage}
}

// Admin asks isAdmin once and allows on true. Any false (including a failed
// lookup) redirects to the dashboard.
func Admin(ctx context.Context, isAdmin func(ctx context.Context) bool) Decision {
	if isAdmin != nil && isAdmin(ctx) {
		return Decision{Allowed: true}
	}
	return Decision{Redirect: DashboardPath, Message: AdminDeniedMessage}
}
