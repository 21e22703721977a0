package handlers

import (
	"gopool/internal/models"
	"gopool/internal/services"
	"gopool/internal/utils"
	"gopool/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RequestHandler struct {
	requestService services.RequestService
}

func NewRequestHandler(requestService services.RequestService) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
	}
}

type createRequestBody struct {
	Kind       models.RequestKind     `json:"kind" binding:"required"`
	ReceiverID string                 `json:"receiver_id" binding:"required"`
	TripID     string                 `json:"trip_id"`
	Payload    map[string]interface{} `json:"payload"`
}

// CreateRequest opens a pending request addressed to another user.
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	senderID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateRequestKind(body.Kind); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	input := &services.CreateRequestInput{
		Kind:       body.Kind,
		ReceiverID: body.ReceiverID,
		Payload:    body.Payload,
	}
	if body.TripID != "" {
		tripID, err := primitive.ObjectIDFromHex(body.TripID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid trip ID")
			return
		}
		input.TripID = &tripID
	}

	request, err := h.requestService.CreateRequest(c.Request.Context(), senderID, input)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Request created", request)
}

type respondBody struct {
	Decision models.Decision `json:"decision" binding:"required"`
}

// Respond accepts or rejects a pending request addressed to the caller.
func (h *RequestHandler) Respond(c *gin.Context) {
	receiverID, ok := currentUserID(c)
	if !ok {
		return
	}

	requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request ID")
		return
	}

	var body respondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateDecision(body.Decision); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	result, err := h.requestService.Respond(c.Request.Context(), requestID, receiverID, body.Decision)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Request resolved", result)
}

// MarkRead acknowledges an informational notification.
func (h *RequestHandler) MarkRead(c *gin.Context) {
	receiverID, ok := currentUserID(c)
	if !ok {
		return
	}

	requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request ID")
		return
	}

	if err := h.requestService.MarkRead(c.Request.Context(), requestID, receiverID); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Notification read", nil)
}

// GetInbox lists requests and notifications addressed to the caller.
func (h *RequestHandler) GetInbox(c *gin.Context) {
	receiverID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	requests, total, err := h.requestService.GetInbox(c.Request.Context(), receiverID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Inbox retrieved", requests, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
	})
}

// GetRequest fetches one request the caller sent or received.
func (h *RequestHandler) GetRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request ID")
		return
	}

	request, err := h.requestService.GetRequest(c.Request.Context(), requestID, userID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Request retrieved", request)
}
