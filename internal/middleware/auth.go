package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	SessionKey  = "session"
	ClientIDKey = "client_id"

	ClientIDHeader = "X-Client-ID"
	ClientCookie   = "reclama_client"
	AccessCookie   = "reclama_access"
	RefreshCookie  = "reclama_refresh"

	clientCookieMaxAge = 365 * 24 * time.Hour

	// MaxClientIDLength matches refresh_tokens.client_id.
	MaxClientIDLength = 100
)

// SessionResolver is the part of the identity gate the middleware needs.
type SessionResolver interface {
	Resolve(ctx context.Context, clientID, accessToken string) *identity.Session
	Release(s *identity.Session)
}

// Identity resolves the caller's session for every request. The client id
// comes from the X-Client-ID header or the client cookie, and a new one is
// issued when neither is present. The access token comes from a bearer
// Authorization header or the access cookie. A request without a valid token
// continues anonymous.
func Identity(gate SessionResolver, secureCookies bool) drift.HandlerFunc {
	return func(c *drift.Context) {
		clientID := ClientID(c)
		if clientID == "" {
			clientID = uuid.NewString()
			SetCookie(c, ClientCookie, clientID, clientCookieMaxAge, secureCookies)
		}
		c.Set(ClientIDKey, clientID)

		s := gate.Resolve(c.Request.Context(), clientID, AccessToken(c))
		defer gate.Release(s)
		c.Set(SessionKey, s)

		c.Next()
	}
}

// ClientID returns the client id of the request, or "" when it has none yet.
// Ids that are too long or contain anything but visible ASCII are ignored.
func ClientID(c *drift.Context) string {
	if id, ok := c.Get(ClientIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	if id := strings.TrimSpace(c.GetHeader(ClientIDHeader)); ValidClientID(id) {
		return id
	}
	if cookie, err := c.Request.Cookie(ClientCookie); err == nil && ValidClientID(cookie.Value) {
		return cookie.Value
	}
	return ""
}

// ValidClientID reports whether id can be stored as a client id.
func ValidClientID(id string) bool {
	if id == "" || len(id) > MaxClientIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// AccessToken returns the bearer token or, failing that, the access cookie.
func AccessToken(c *drift.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Request.Cookie(AccessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// RefreshToken returns the refresh cookie, if any.
func RefreshToken(c *drift.Context) string {
	if cookie, err := c.Request.Cookie(RefreshCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// GetSession returns the session resolved for the request. Outside the
// Identity middleware it returns a settled anonymous session.
func GetSession(c *drift.Context) *identity.Session {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok := v.(*identity.Session); ok {
			return s
		}
	}
	return identity.NewAnonymous(ClientID(c))
}

func GetUserID(c *drift.Context) uuid.UUID {
	return GetSession(c).UserID()
}

// SetCookie writes an HttpOnly, SameSite=Lax cookie scoped to the whole site.
// A zero maxAge deletes it.
func SetCookie(c *drift.Context, name, value string, maxAge time.Duration, secure bool) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
		cookie.Expires = time.Now().Add(maxAge)
	} else {
		cookie.MaxAge = -1
		cookie.Value = ""
	}
	c.Response.Header().Add("Set-Cookie", cookie.String())
}
