package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// PrincipalIDHeader carries the acting user, set by the upstream auth proxy
	PrincipalIDHeader = "X-Principal-ID"

	// PrincipalIDKey is the key used to store the principal in the context
	PrincipalIDKey = "principal_id"

	// SystemPrincipal is recorded when a request names no principal
	SystemPrincipal = "system"
)

type principalCtxKey struct{}

// Principal records who is acting so that links and export records can
// carry it. Authentication happens before this service; the header is
// trusted as given.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := strings.TrimSpace(c.GetHeader(PrincipalIDHeader))
		if principal == "" {
			principal = SystemPrincipal
		}

		c.Set(PrincipalIDKey, principal)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), principalCtxKey{}, principal))

		c.Next()
	}
}

// GetPrincipalID returns the acting principal, or SystemPrincipal
func GetPrincipalID(c *gin.Context) string {
	if v, ok := c.Get(PrincipalIDKey); ok {
		if principal, ok := v.(string); ok && principal != "" {
			return principal
		}
	}
	return SystemPrincipal
}

// PrincipalIDFromContext is GetPrincipalID for a plain context
func PrincipalIDFromContext(ctx context.Context) string {
	if principal, ok := ctx.Value(principalCtxKey{}).(string); ok && principal != "" {
		return principal
	}
	return SystemPrincipal
}
