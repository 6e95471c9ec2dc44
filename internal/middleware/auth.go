package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"calendartask/internal/utils"
)

const (
	CtxUserID    = "user_id"
	CtxRole      = "role"
	CtxRequestID = "request_id"
)

// TokenParser validates an access token and returns its claims.
type TokenParser interface {
	ParseAccessToken(token string) (*utils.Claims, error)
}

// список публичных эндпоинтов, которые не требуют токена
func isPublicPath(path string) bool {
	switch path {
	case "/health", "/api/health",
		"/api/users/register", "/api/users/login", "/api/users/refresh":
		return true
	}
	if strings.HasPrefix(path, "/swagger") ||
		strings.HasPrefix(path, "/api/users/check-username/") ||
		strings.HasPrefix(path, "/api/users/check-email/") {
		return true
	}
	return false
}

func AuthMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1) пропускаем preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		// 2) пропускаем публичные пути
		if isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		// 3) читаем Authorization
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}

		// 4) парсим и валидируем токен (подпись, срок, leeway)
		claims, err := parser.ParseAccessToken(strings.TrimSpace(parts[1]))
		if err != nil || claims.UserID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		// 5) прокидываем user/role в контекст
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)

		c.Next()
	}
}
