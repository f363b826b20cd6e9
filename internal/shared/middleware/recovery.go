package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	apperrors "github.com/payflow/server/internal/shared/errors"
	"github.com/payflow/server/internal/shared/logger"
)

// Recovery returns a middleware that recovers from panics.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered",
					"panic", err,
					"path", c.Request.URL.Path,
					"request_id", GetRequestID(c),
					"stack", string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					apperrors.Internal("internal server error", nil).ToResponse())
			}
		}()
		c.Next()
	}
}
