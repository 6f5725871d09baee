package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kunaal-theme/notify/internal/pkg/jwt"
	"github.com/kunaal-theme/notify/internal/pkg/response"
)

const (
	ContextKeyRole = "auth_role"

	// RoleAdmin marks operator tokens issued against the admin secret.
	RoleAdmin = "admin"
)

// Auth enforces a valid admin JWT on operator endpoints.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := jwt.Parse(extractToken(c))
		if err != nil || claims.Role != RoleAdmin {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// IsAuthenticated reports whether the request carries a valid admin token.
func IsAuthenticated(c *gin.Context) bool {
	v, _ := c.Get(ContextKeyRole)
	role, _ := v.(string)
	return role == RoleAdmin
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
