package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a panic in a handler into the same 500 envelope the handlers
// use, logged with its stack and whatever request identity is known.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			attrs := []any{
				"error", fmt.Sprint(r),
				"stack", string(debug.Stack()),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"route", c.FullPath(),
			}
			if tenantID := c.Param("tenant_id"); tenantID != "" {
				attrs = append(attrs, "tenant_id", tenantID)
			}
			if principal, ok := c.Get(PrincipalIDKey); ok {
				attrs = append(attrs, "principal_id", principal)
			}

			correlationID := GetCorrelationID(c)
			if correlationID != "" {
				attrs = append(attrs, "correlation_id", correlationID)
			}
			logger.Error("Panic recovered", attrs...)

			body := gin.H{
				"error": gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "An internal server error occurred",
				},
			}
			if correlationID != "" {
				body["correlation_id"] = correlationID
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()

		c.Next()
	}
}
