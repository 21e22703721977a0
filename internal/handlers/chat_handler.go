package handlers

import (
	"gopool/internal/services"
	"gopool/internal/utils"
	"gopool/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatHandler struct {
	distributor services.DistributorService
}

func NewChatHandler(distributor services.DistributorService) *ChatHandler {
	return &ChatHandler{
		distributor: distributor,
	}
}

type sendMessageRequest struct {
	Content       string `json:"content"`
	RecipientUser string `json:"recipient_user"`
	RecipientTrip string `json:"recipient_trip"`
}

type editMessageRequest struct {
	NewContent string `json:"new_content"`
}

// SendMessage stages and distributes one message to a personal or trip
// chat.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	senderID, ok := currentUserID(c)
	if !ok {
		return
	}

	var request sendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if errs := validators.ValidateMessageContent(request.Content); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}
	if errs := validators.ValidateMessageTarget(request.RecipientUser, request.RecipientTrip); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	var recipientTrip *primitive.ObjectID
	if request.RecipientTrip != "" {
		tripID, err := primitive.ObjectIDFromHex(request.RecipientTrip)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid trip ID")
			return
		}
		recipientTrip = &tripID
	}

	result, err := h.distributor.Send(c.Request.Context(), senderID, request.Content, request.RecipientUser, recipientTrip)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Message sent", result)
}

// EditMessage rewrites the content of one of the caller's entries.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	entryID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid entry ID")
		return
	}

	var request editMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateMessageContent(request.NewContent); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	if err := h.distributor.EditEntry(c.Request.Context(), userID, entryID, request.NewContent); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Message edited", nil)
}

// DeleteMessage tombstones one of the caller's entries.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	entryID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid entry ID")
		return
	}

	if err := h.distributor.DeleteEntry(c.Request.Context(), userID, entryID); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Message deleted", nil)
}

// GetPersonalChats lists the caller's personal chats.
func (h *ChatHandler) GetPersonalChats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	chats, total, err := h.distributor.GetPersonalChats(c.Request.Context(), userID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Personal chats retrieved", chats, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
	})
}

// GetGroupChats lists the trip chats the caller participates in.
func (h *ChatHandler) GetGroupChats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	chats, total, err := h.distributor.GetGroupChats(c.Request.Context(), userID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Group chats retrieved", chats, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
	})
}

// GetPersonalChatWith fetches the caller's chat with one other user.
func (h *ChatHandler) GetPersonalChatWith(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	otherUserID := c.Param("user_id")
	if otherUserID == "" {
		utils.BadRequestResponse(c, "Missing user ID")
		return
	}

	chat, err := h.distributor.GetPersonalChatWith(c.Request.Context(), userID, otherUserID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Chat retrieved", chat)
}

// GetGroupChat fetches the chat bound to a trip.
func (h *ChatHandler) GetGroupChat(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	tripID, err := primitive.ObjectIDFromHex(c.Param("trip_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid trip ID")
		return
	}

	chat, err := h.distributor.GetGroupChat(c.Request.Context(), tripID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Chat retrieved", chat)
}
