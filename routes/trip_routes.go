package routes

import (
	"gopool/internal/handlers"
	"gopool/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTripRoutes sets up routes for the trip lifecycle
func SetupTripRoutes(r *gin.RouterGroup, tripHandler *handlers.TripHandler, jwtSecret string) {
	trips := r.Group("/trips")
	trips.Use(middleware.AuthRequired(jwtSecret))
	{
		trips.GET("/search", tripHandler.SearchTrips)
		trips.GET("/:id", tripHandler.GetTrip)
		trips.DELETE("/:id/passengers/me", tripHandler.AbandonTrip)

		// Driver-only operations
		driver := trips.Group("")
		driver.Use(middleware.DriverRequired())
		{
			driver.POST("/", tripHandler.CreateTrip)
			driver.GET("/mine", tripHandler.GetMyTrips)
			driver.PUT("/:id/schedule", tripHandler.UpdateSchedule)
			driver.POST("/:id/transition", tripHandler.Transition)
		}
	}
}
