package response

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/payflow/server/internal/shared/errors"
)

// Error writes err as a JSON error body with the status its AppError carries.
// Internal errors never leak their cause to the client.
func Error(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	if appErr.Err != nil {
		_ = c.Error(appErr.Err)
	}
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}

// BadRequest writes a validation error with the given message.
func BadRequest(c *gin.Context, message string) {
	Error(c, apperrors.ValidationError(message))
}
