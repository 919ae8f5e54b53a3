package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/goldflix/goldflix/internal/server/auth"
	"github.com/goldflix/goldflix/internal/server/models"
)

const sessionCookie = "gf_session"

// issueAdminToken signs a short-lived HS256 token for the admin surface.
func (s *Server) issueAdminToken() (string, error) {
	return auth.GenerateAdminToken([]byte(s.cfg.SecretKey),
		s.cfg.AdminTokenValidityDuration, s.now())
}

func (s *Server) parseAdminToken(raw string) error {
	return auth.ValidateAdminToken(raw, []byte(s.cfg.SecretKey), s.now)
}

// adminGuard protects the /admin group with a bearer token.
func (s *Server) adminGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if err := s.parseAdminToken(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// setSessionCookie binds the browser to a rotated session id.
func (s *Server) setSessionCookie(c *gin.Context, user *models.User) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, user.Username+":"+user.SessionID,
		int(30*24*3600), "/", "", false, true)
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
}

// currentUser resolves the session cookie to a live account. A missing or
// stale cookie yields nil without an error; handlers that require a login
// check for nil themselves.
func (s *Server) currentUser(c *gin.Context) *models.User {
	raw, err := c.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	username, sessionID, ok := strings.Cut(raw, ":")
	if !ok || username == "" || sessionID == "" {
		return nil
	}
	user, err := s.accounts.BySession(c.Request.Context(), username, sessionID)
	if err != nil {
		return nil
	}
	return user
}
