package routes

import (
	"gopool/internal/handlers"
	"gopool/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes sets up routes for ledger queries
func SetupPaymentRoutes(r *gin.RouterGroup, paymentHandler *handlers.PaymentHandler, jwtSecret string) {
	payments := r.Group("/payments")
	payments.Use(middleware.AuthRequired(jwtSecret))
	{
		payments.GET("/ledger", paymentHandler.GetLedger)
		payments.GET("/ledger/trips/:trip_id", paymentHandler.GetTripLedger)
	}
}
