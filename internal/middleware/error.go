package middleware

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hmis-api/internal/handler"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
)

// ErrorHandler renders errors attached with c.Error when the handler wrote no
// response itself. Only AppError messages reach the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Interface("meta", e.Meta).
				Msg("request error")
		}

		lastErr := c.Errors.Last().Err
		status := http.StatusInternalServerError
		message := "internal server error"
		var appErr *apperrors.AppError
		if stderrors.As(lastErr, &appErr) {
			status = appErr.StatusCode()
			message = appErr.Message
		}

		c.JSON(status, handler.NewErrorResponse(message))
	}
}
