package routes

import (
	"gopool/internal/handlers"
	"gopool/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRequestRoutes sets up routes for the request and notification
// engine
func SetupRequestRoutes(r *gin.RouterGroup, requestHandler *handlers.RequestHandler, jwtSecret string) {
	requests := r.Group("/requests")
	requests.Use(middleware.AuthRequired(jwtSecret))
	{
		requests.POST("/", requestHandler.CreateRequest)
		requests.GET("/inbox", requestHandler.GetInbox)
		requests.GET("/:id", requestHandler.GetRequest)
		requests.POST("/:id/respond", requestHandler.Respond)
		requests.POST("/:id/read", requestHandler.MarkRead)
	}
}
