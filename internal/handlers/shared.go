package handlers

import (
	"gopool/internal/utils"

	"github.com/gin-gonic/gin"
)

// currentUserID pulls the authenticated user from the gin context. The
// auth middleware guarantees it for protected routes; a miss means the
// route was wired without AuthRequired.
func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.UnauthorizedResponse(c)
		return "", false
	}

	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		utils.UnauthorizedResponse(c)
		return "", false
	}
	return userIDStr, true
}
