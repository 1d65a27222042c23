// Package guard decides whether a request may reach a protected route. The
// decisions are pure functions of the caller's session; the drift adapters
// turn them into redirects for pages and status codes for the API.
package guard

import (
	"context"
	"net/url"
	"strings"

	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/google/uuid"
)

type Decision int

const (
	Allow Decision = iota
	// Pending means the identity or role is not known yet.
	Pending
	RedirectLogin
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Pending:
		return "pending"
	case RedirectLogin:
		return "login"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

const (
	LoginPath          = "/login"
	HomePath           = "/"
	AccessDeniedNotice = "acesso-negado"

	// maxRoleChecks bounds how often a role lookup is redone when the
	// session's user changes underneath it.
	maxRoleChecks = 3
)

// Authenticated decides access to routes that need a signed-in user.
func Authenticated(s *identity.Session) Decision {
	switch s.State() {
	case identity.Authenticated:
		return Allow
	case identity.Anonymous:
		return RedirectLogin
	default:
		return Pending
	}
}

// Admin decides access to admin routes from a role lookup made for the
// session. A lookup error denies. A result for a user other than the
// session's current one is stale and yields Pending so the caller recomputes.
func Admin(s *identity.Session, check identity.AdminCheck, err error) Decision {
	if d := Authenticated(s); d != Allow {
		return d
	}
	if err != nil {
		return Deny
	}
	if check.UserID == uuid.Nil || check.UserID != s.UserID() {
		return Pending
	}
	if !check.IsAdmin {
		return Deny
	}
	return Allow
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, s *identity.Session) (identity.AdminCheck, error)
}

// EvaluateAdmin runs the role lookup for s and decides. Stale results are
// discarded and the lookup redone for the session's new user.
func EvaluateAdmin(ctx context.Context, roles AdminChecker, s *identity.Session) Decision {
	for i := 0; i < maxRoleChecks; i++ {
		if d := Authenticated(s); d != Allow {
			return d
		}
		check, err := roles.IsAdmin(ctx, s)
		if d := Admin(s, check, err); d != Pending {
			return d
		}
	}
	return Pending
}

// SafeNext returns next when it is a same-site absolute path, and the home
// path otherwise. The login page itself is never a target.
func SafeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return HomePath
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return HomePath
	}
	if u.Path == LoginPath || strings.HasPrefix(u.Path, LoginPath+"/") {
		return HomePath
	}
	return next
}

// OptionalNext is SafeNext for a next that may be absent: blank stays blank
// so the caller can apply its own default.
func OptionalNext(next string) string {
	if strings.TrimSpace(next) == "" {
		return ""
	}
	return SafeNext(next)
}

// LoginURL is the login page that returns to next after sign-in.
func LoginURL(next string) string {
	return LoginPath + "?next=" + url.QueryEscape(SafeNext(next))
}

// AccessDeniedURL is the home page carrying the access-denied notice.
func AccessDeniedURL() string {
	return HomePath + "?notice=" + AccessDeniedNotice
}
