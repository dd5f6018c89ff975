// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file wires server-side sessions into Gin:
//
//   - Sessions() resolves (or creates) the session for the request cookie,
//     re-sends the cookie when it is new or was refreshed, and stores the
//     state under the "session" key (plus "userID" when signed in).
//   - RequireAuthenticated() and RequireAnonymous() are the route guards.
//     Both answer 401 with a redirect hint the client can follow as-is.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-portfolio-backend/internal/session"
)

const (
	sessionKey = "session"
	userIDKey  = "userID"
)

// Guard messages.
const (
	LoginRequiredMessage = "Please login first."
	AlreadyLoggedMessage = "Already logged in."
)

// Sessions resolves the session of every request through m. A store
// failure ends the request with a generic 500.
func Sessions(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(m.CookieName())
		st, err := m.Resolve(c.Request.Context(), token)
		if err != nil {
			LoggerFrom(c).Error().Err(err).Msg("session resolve failed")
			abortJSON(c, http.StatusInternalServerError, CodeInternal, InternalMessage, "")
			return
		}
		SetSession(c, m, st)
		c.Next()
	}
}

// SetSession stores st in the context and sends its cookie when st is fresh.
// Handlers call it after a login regenerated the session.
func SetSession(c *gin.Context, m *session.Manager, st *session.State) {
	c.Set(sessionKey, st)
	if st.Authenticated() {
		c.Set(userIDKey, st.User.ID)
	} else {
		c.Set(userIDKey, "")
	}
	if st.Fresh {
		http.SetCookie(c.Writer, m.Cookie(st))
	}
}

// ClearSession drops the session from the context and expires the cookie.
func ClearSession(c *gin.Context, m *session.Manager) {
	c.Set(sessionKey, (*session.State)(nil))
	c.Set(userIDKey, "")
	http.SetCookie(c.Writer, m.ClearCookie())
}

// SessionFrom returns the state stored by Sessions, or nil.
func SessionFrom(c *gin.Context) *session.State {
	if v, ok := c.Get(sessionKey); ok {
		if st, ok := v.(*session.State); ok {
			return st
		}
	}
	return nil
}

// RequireAuthenticated passes only requests whose session is bound to an
// existing user. Others get 401 with loginURL(host) as redirect.
func RequireAuthenticated(loginURL func(host string) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if SessionFrom(c).Authenticated() {
			c.Next()
			return
		}
		abortJSON(c, http.StatusUnauthorized, CodeUnauthorized, LoginRequiredMessage, loginURL(c.Request.Host))
	}
}

// RequireAnonymous passes only requests without a signed-in user. Others
// get 401 with a redirect to "/".
func RequireAnonymous() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !SessionFrom(c).Authenticated() {
			c.Next()
			return
		}
		abortJSON(c, http.StatusUnauthorized, CodeAlreadyAuthenticated, AlreadyLoggedMessage, "/")
	}
}
