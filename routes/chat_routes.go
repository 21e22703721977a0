package routes

import (
	"gopool/internal/handlers"
	"gopool/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupChatRoutes sets up routes for message distribution
func SetupChatRoutes(r *gin.RouterGroup, chatHandler *handlers.ChatHandler, jwtSecret string) {
	chats := r.Group("/chats")
	chats.Use(middleware.AuthRequired(jwtSecret))
	{
		// Sending and message lifecycle
		chats.POST("/messages", chatHandler.SendMessage)
		chats.PUT("/messages/:id", chatHandler.EditMessage)
		chats.DELETE("/messages/:id", chatHandler.DeleteMessage)

		// Chat listings
		chats.GET("/personal", chatHandler.GetPersonalChats)
		chats.GET("/personal/:user_id", chatHandler.GetPersonalChatWith)
		chats.GET("/group", chatHandler.GetGroupChats)
		chats.GET("/group/:trip_id", chatHandler.GetGroupChat)
	}
}
