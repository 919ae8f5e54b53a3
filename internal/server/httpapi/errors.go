package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goldflix/goldflix/internal/common"
)

// abortError translates a service error into the response status.
// Store failures never leak details to the client.
func (s *Server) abortError(c *gin.Context, err error) {
	var status int
	var msg string
	switch {
	case errors.Is(err, common.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrAlreadyOwned):
		status, msg = http.StatusConflict, "already owned"
	case errors.Is(err, common.ErrConflict):
		status, msg = http.StatusConflict, "conflict, try again"
	case errors.Is(err, common.ErrInsufficientFunds):
		status, msg = http.StatusPaymentRequired, "insufficient coins"
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, "unauthorized"
	default:
		s.log.Error(c.Request.Context(), "request failed",
			"path", c.Request.URL.Path, "error", err)
		status, msg = http.StatusServiceUnavailable, "service unavailable"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
