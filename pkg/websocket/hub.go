package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
}

type Message struct {
	Type      string                 `json:"type"`
	RoomID    string                 `json:"room_id,omitempty"`
	UserID    string                 `json:"user_id"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	log.Printf("Client registered: %s", client.UserID)

	// Join user to their personal room
	personalRoom := "user_" + client.UserID
	h.joinRoom(client, personalRoom)

	// Send welcome message
	welcomeMsg := Message{
		Type:      "welcome",
		UserID:    client.UserID,
		Timestamp: getCurrentTimestamp(),
		Data: map[string]interface{}{
			"message": "Connected successfully",
		},
	}

	h.sendToClientLocked(client, welcomeMsg)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		h.evictClient(client)
		log.Printf("Client unregistered: %s", client.UserID)
	}
}

// evictClient drops a client and closes its send channel. Callers must
// hold the write lock; the membership check keeps the close single.
func (h *Hub) evictClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for roomID, room := range h.rooms {
		if _, exists := room[client]; exists {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

func (h *Hub) broadcastMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	if msg.RoomID != "" {
		h.sendToRoom(msg.RoomID, msg)
	} else {
		h.sendToAll(msg)
	}
}

// Fan-out holds the write lock because slow clients are evicted inline.
func (h *Hub) sendToAll(message Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	data, _ := json.Marshal(message)
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.evictClient(client)
		}
	}
}

func (h *Hub) sendToRoom(roomID string, message Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	room, exists := h.rooms[roomID]
	if !exists {
		return
	}

	data, _ := json.Marshal(message)
	for client := range room {
		select {
		case client.send <- data:
		default:
			h.evictClient(client)
		}
	}
}

func (h *Hub) sendToClient(client *Client, message Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.sendToClientLocked(client, message)
}

func (h *Hub) sendToClientLocked(client *Client, message Message) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	data, _ := json.Marshal(message)
	select {
	case client.send <- data:
	default:
		h.evictClient(client)
	}
}

func (h *Hub) SendToUser(userID string, message Message) {
	h.sendToRoom("user_"+userID, message)
}

func (h *Hub) SendToTrip(tripID string, message Message) {
	h.sendToRoom("trip_"+tripID, message)
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.joinRoom(client, roomID)
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		delete(client.rooms, roomID)

		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) JoinTrip(client *Client, tripID string) {
	h.JoinRoom(client, "trip_"+tripID)
}

func getCurrentTimestamp() int64 {
	return time.Now().Unix()
}
