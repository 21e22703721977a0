package websocket

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router dispatches inbound client events to the application layer. The
// returned message, when non-nil, is delivered only to the sending client.
type Router interface {
	HandleInbound(userID, event string, data map[string]interface{}) *Message
}

type Handler struct {
	hub    *Hub
	router Router
}

func NewHandler() *Handler {
	hub := NewHub()
	go hub.Run()

	return &Handler{
		hub: hub,
	}
}

// SetRouter must be called before the first connection is accepted.
func (h *Handler) SetRouter(router Router) {
	h.router = router
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	role, _ := c.Get("user_role")
	roleStr, _ := role.(string)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(h.hub, conn, userIDStr, roleStr)
	h.hub.register <- client

	go client.writePump()
	go client.readPump(h.router)
}

func (h *Handler) SendToUser(userID string, eventType string, data map[string]interface{}) {
	message := Message{
		Type:      eventType,
		UserID:    userID,
		Timestamp: getCurrentTimestamp(),
		Data:      data,
	}

	h.hub.SendToUser(userID, message)
}

func (h *Handler) SendToTrip(tripID string, eventType string, data map[string]interface{}) {
	message := Message{
		Type:      eventType,
		RoomID:    "trip_" + tripID,
		Timestamp: getCurrentTimestamp(),
		Data:      data,
	}

	h.hub.SendToTrip(tripID, message)
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
