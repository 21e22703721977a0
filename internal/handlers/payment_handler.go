package handlers

import (
	"strconv"

	"gopool/internal/services"
	"gopool/internal/utils"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService services.PaymentService
}

func NewPaymentHandler(paymentService services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// GetLedger lists the caller's recent ledger entries.
func (h *PaymentHandler) GetLedger(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(utils.DefaultPageSize)))
	entries, err := h.paymentService.GetLedger(c.Request.Context(), userID, limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Ledger retrieved", entries)
}

// GetTripLedger lists the entries settled against one trip.
func (h *PaymentHandler) GetTripLedger(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	tripID := c.Param("trip_id")
	if tripID == "" {
		utils.BadRequestResponse(c, "Missing trip ID")
		return
	}

	entries, err := h.paymentService.GetTripLedger(c.Request.Context(), tripID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip ledger retrieved", entries)
}
