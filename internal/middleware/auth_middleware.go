package middleware

import (
	"net/http"
	"strings"

	"gopool/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer token and stores the caller identity
// in the gin context. Websocket handshakes may carry the token in the
// "token" query parameter since browsers cannot set headers there.
func AuthRequired(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secretKey)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_role", claims.Role)

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
			return token
		}
		return ""
	}
	return c.Query("token")
}

// RoleRequired ensures the authenticated user carries one of the given
// roles.
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User role not found"})
			c.Abort()
			return
		}

		roleStr, ok := userRole.(string)
		if ok {
			for _, role := range roles {
				if roleStr == role {
					c.Next()
					return
				}
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		c.Abort()
	}
}

// AdminRequired ensures the user is an admin.
func AdminRequired() gin.HandlerFunc {
	return RoleRequired("admin")
}

// DriverRequired ensures the user is a driver.
func DriverRequired() gin.HandlerFunc {
	return RoleRequired("driver")
}
