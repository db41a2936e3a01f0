package middleware

import (
	"github.com/gin-gonic/gin"

	"watch_party/pkg/errors"
)

// ErrorHandler renders errors attached by handlers as a uniform JSON
// body. The machine code travels alongside the message so clients can
// branch on it.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			c.JSON(errors.HTTPStatusFromError(err.Err), gin.H{
				"error": err.Error(),
				"code":  errors.CodeFromError(err.Err),
			})
		}
	}
}
