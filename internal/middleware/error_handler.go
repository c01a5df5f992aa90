package middleware

import (
	"net/http"

	"medshop/internal/apperr"
	"medshop/internal/logger"
	"medshop/internal/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler turns the last error attached with c.Error into a JSON
// response. Unclassified errors are logged and answered with a generic message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if fields, ok := validation.Fields(err); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": fields})
			return
		}

		status := apperr.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c).Error("Request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
		}
		c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
	}
}
