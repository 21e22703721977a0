package routes

import (
	"gopool/internal/middleware"
	"gopool/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes sets up the realtime gateway endpoint
func SetupWebSocketRoutes(r *gin.Engine, wsHandler *websocket.Handler, jwtSecret string) {
	r.GET("/ws", middleware.AuthRequired(jwtSecret), wsHandler.HandleWebSocket)
}
