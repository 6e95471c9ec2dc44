package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"calendartask/internal/models"
)

func RequireRoles(allowed ...models.UserRole) gin.HandlerFunc {
	allowedSet := map[models.UserRole]struct{}{}
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v, exists := c.Get(CtxRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no role in context"})
			return
		}
		role, _ := v.(string)
		if _, ok := allowedSet[models.UserRole(role)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
