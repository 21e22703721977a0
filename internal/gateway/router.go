package gateway

import (
	"context"
	"time"

	"gopool/internal/models"
	"gopool/internal/services"
	"gopool/pkg/logger"
	"gopool/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const inboundTimeout = 10 * time.Second

// Router bridges inbound websocket events to the message distributor.
// It implements websocket.Router; room membership events are handled in
// the connection layer and never reach here.
type Router struct {
	distributor services.DistributorService
	logger      *logger.Logger
}

func NewRouter(distributor services.DistributorService, log *logger.Logger) *Router {
	return &Router{
		distributor: distributor,
		logger:      log,
	}
}

func (r *Router) HandleInbound(userID, event string, data map[string]interface{}) *websocket.Message {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	switch event {
	case "send_message":
		return r.handleSend(ctx, userID, data)
	case "edit_message":
		return r.handleEdit(ctx, userID, data)
	case "delete_message":
		return r.handleDelete(ctx, userID, data)
	default:
		return errorMessage(event, models.NewDomainError(models.CodeValidationFailed, "unknown event type"))
	}
}

func (r *Router) handleSend(ctx context.Context, userID string, data map[string]interface{}) *websocket.Message {
	content, _ := data["content"].(string)
	recipientUser, _ := data["recipient_user"].(string)

	var recipientTrip *primitive.ObjectID
	if raw, ok := data["recipient_trip"].(string); ok && raw != "" {
		tripID, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return errorMessage("send_message", models.NewDomainError(models.CodeValidationFailed, "invalid recipient_trip"))
		}
		recipientTrip = &tripID
	}

	result, err := r.distributor.Send(ctx, userID, content, recipientUser, recipientTrip)
	if err != nil {
		r.logger.WithError(err).WithUserID(userID).Debug("Inbound send rejected")
		return errorMessage("send_message", err)
	}

	// Delivery fan-out already happened inside the distributor; the
	// sender only gets the ack with the assigned entry.
	return &websocket.Message{
		Type: "message_sent",
		Data: map[string]interface{}{
			"chat_id":   result.ChatID.Hex(),
			"chat_type": result.ChatType,
			"entry_id":  result.Entry.SourceID.Hex(),
		},
	}
}

func (r *Router) handleEdit(ctx context.Context, userID string, data map[string]interface{}) *websocket.Message {
	entryID, err := entryIDFrom(data)
	if err != nil {
		return errorMessage("edit_message", err)
	}
	newContent, _ := data["new_content"].(string)

	if err := r.distributor.EditEntry(ctx, userID, entryID, newContent); err != nil {
		return errorMessage("edit_message", err)
	}
	return &websocket.Message{
		Type: "message_edit_ack",
		Data: map[string]interface{}{"entry_id": entryID.Hex()},
	}
}

func (r *Router) handleDelete(ctx context.Context, userID string, data map[string]interface{}) *websocket.Message {
	entryID, err := entryIDFrom(data)
	if err != nil {
		return errorMessage("delete_message", err)
	}

	if err := r.distributor.DeleteEntry(ctx, userID, entryID); err != nil {
		return errorMessage("delete_message", err)
	}
	return &websocket.Message{
		Type: "message_delete_ack",
		Data: map[string]interface{}{"entry_id": entryID.Hex()},
	}
}

func entryIDFrom(data map[string]interface{}) (primitive.ObjectID, error) {
	raw, _ := data["entry_id"].(string)
	entryID, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, models.NewDomainError(models.CodeValidationFailed, "invalid entry_id")
	}
	return entryID, nil
}

// errorMessage shapes a failure reply for the sending client. Only the
// stable code and message cross the wire.
func errorMessage(event string, err error) *websocket.Message {
	code := models.CodeOf(err)
	if code == "" {
		code = "INTERNAL"
	}
	return &websocket.Message{
		Type: "error",
		Data: map[string]interface{}{
			"event": event,
			"code":  code,
			"error": err.Error(),
		},
	}
}
