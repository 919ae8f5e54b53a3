package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/goldflix/goldflix/internal/server/ratelimit"
)

const ctxClientIP = "clientIP"

// ipHeaders is the order proxies in front of us populate headers; the first
// hit wins. X-Forwarded-For may carry a chain, only the first hop counts.
var ipHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For", "X-Client-IP"}

func extractClientIP(r *http.Request) string {
	for _, h := range ipHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	if host, _, ok := strings.Cut(r.RemoteAddr, ":"); ok && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "Unknown-IP"
}

func (s *Server) clientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxClientIP, extractClientIP(c.Request))
		c.Next()
	}
}

func (s *Server) requestIP(c *gin.Context) string {
	return c.GetString(ctxClientIP)
}

// banGate rejects requests from banned addresses. A store failure fails
// open; blocking all traffic on a db hiccup is worse than letting a banned
// address slip through for one window.
func (s *Server) banGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		banned, err := s.accounts.IsIPBanned(c.Request.Context(), s.requestIP(c))
		if err == nil && banned {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

// limitCategory maps a request path to its traffic class. Admin routes are
// behind their own auth and stay unthrottled.
func limitCategory(path string) string {
	switch {
	case strings.HasPrefix(path, "/admin"):
		return ""
	case path == "/api/login" || path == "/api/signup":
		return ratelimit.Login
	case path == "/api/search":
		return ratelimit.Search
	case strings.HasPrefix(path, "/api/"):
		return ratelimit.API
	default:
		return ratelimit.Global
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		category := limitCategory(c.Request.URL.Path)
		if category == "" {
			c.Next()
			return
		}
		ok, err := s.limiter.Allow(c.Request.Context(), s.requestIP(c), category)
		if err != nil {
			s.abortError(c, err)
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": "too many requests, slow down"})
			return
		}
		c.Next()
	}
}

// maintenanceGate turns the public surface away while maintenance mode is
// on. Admin routes and the public config endpoint stay reachable so the
// mode can be inspected and switched back off.
func (s *Server) maintenanceGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/admin") || path == "/api/config" {
			c.Next()
			return
		}
		cfg, err := s.appcfg.Get(c.Request.Context())
		if err == nil && cfg.MaintenanceMode {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "down for maintenance", "maintenance": true})
			return
		}
		c.Next()
	}
}
