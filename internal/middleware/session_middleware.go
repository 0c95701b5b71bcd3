package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/identity-api/internal/session"
)

const (
	// SessionCookie carries the opaque session id.
	SessionCookie = "sid"
	// SessionHeader is the cookie-less alternative for API clients.
	SessionHeader = "X-Session-ID"

	// Gin context keys set by the middleware.
	ContextSession = "session"
	ContextUserID  = "user_id"
)

// SessionMiddleware opens the caller's session and exposes it plus the
// authenticated account id (when any) in the gin context.
type SessionMiddleware struct {
	store        session.Store
	cookieSecure bool
}

func NewSessionMiddleware(store session.Store, cookieSecure bool) *SessionMiddleware {
	return &SessionMiddleware{store: store, cookieSecure: cookieSecure}
}

// Attach opens (or lazily creates) the session for every request. A missing
// session id gets a fresh one, returned via Set-Cookie.
func (m *SessionMiddleware) Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(SessionHeader))
		if id == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				id = strings.TrimSpace(cookie)
			}
		}
		if id == "" {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, id, 0, "/", "", m.cookieSecure, true)
		}

		sess, err := m.store.Open(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "session store unavailable",
				"error_type": "internal_server_error",
			})
			return
		}
		c.Set(ContextSession, sess)

		if userID, err := sess.Get(c.Request.Context(), session.KeyUserID); err == nil && userID != "" {
			c.Set(ContextUserID, userID)
		}

		c.Next()
	}
}

// RequireAuth rejects requests whose session carries no authenticated
// account. Must run after Attach.
func (m *SessionMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextUserID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "authentication required",
				"error_type": "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// SessionFromContext returns the session placed by Attach.
func SessionFromContext(c *gin.Context) (session.Session, bool) {
	value, exists := c.Get(ContextSession)
	if !exists {
		return nil, false
	}
	sess, ok := value.(session.Session)
	return sess, ok
}

// UserIDFromContext returns the authenticated account id, or "".
func UserIDFromContext(c *gin.Context) string {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
