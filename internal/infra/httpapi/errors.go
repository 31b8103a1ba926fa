package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"audio-blinkshot/internal/domain"
)

func validation(message string) error {
	return domain.ValidationError(message)
}

// writeError sends {"error", "code", "details"?} and logs the cause. The
// code is the error kind. Details carry
// the diagnostic cause and are withheld in production.
func (h *handlers) writeError(c *gin.Context, err error) {
	de := domain.AsError(err)
	status := de.StatusCode()

	response := gin.H{"error": de.Message, "code": string(de.Kind)}
	if !h.production && de.Err != nil {
		response["details"] = de.Err.Error()
	}

	attrs := []any{
		"status", status,
		"kind", de.Kind,
		"message", de.Message,
		"path", c.Request.URL.Path,
	}
	if de.Err != nil {
		attrs = append(attrs, "error", de.Err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Info("request rejected", attrs...)
	}

	c.AbortWithStatusJSON(status, response)
}
