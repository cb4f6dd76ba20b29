package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/vs-ai-ds/hms-backend/pkg/errors"
)

// ErrorResponse is the error body every middleware and handler
// returns. Message never carries schema names or driver errors.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler converts errors attached to the gin context into a
// response. Application errors pick their own status; anything else
// is logged in full and returned as an opaque 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		lastErr := c.Errors.Last()

		status := http.StatusInternalServerError
		message := "internal server error"
		if appErr, ok := apperrors.AsAppError(lastErr.Err); ok {
			status = appErr.StatusCode()
			message = appErr.Message
		}

		log.Error().
			Err(lastErr.Err).
			Str("trace_id", traceID).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Int("status", status).
			Msg("request failed")

		if c.Writer.Written() {
			return
		}
		c.JSON(status, ErrorResponse{
			Code:    status,
			Message: message,
			TraceID: traceID,
		})
	}
}
