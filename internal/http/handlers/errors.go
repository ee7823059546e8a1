package handlers

import (
	"errors"
	"net/http"

	"dating_platform/internal/domain"
	"dating_platform/internal/logger"

	"github.com/gin-gonic/gin"
)

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindBusinessRule:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error to its status and public message.
// Unclassified errors are logged and hidden behind "internal error".
func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if kind == domain.KindInternal {
		logger.WithContext(c.Request.Context()).Error("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error", "code": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": publicMessage(err), "code": domain.CodeOf(err)})
}

// publicMessage drops the wrapping context services add with %w.
func publicMessage(err error) string {
	var tierErr *domain.InsufficientTierError
	if errors.As(err, &tierErr) {
		return tierErr.Error()
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
