package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatStatus string
type ChatType string

const (
	ChatStatusActive ChatStatus = "active"
	ChatStatusClosed ChatStatus = "closed"

	ChatTypePersonal ChatType = "personal"
	ChatTypeGroup    ChatType = "group"
)

// ChatEntry is a message embedded in a chat aggregate. Immutable once
// appended except for the edit/delete flags, mutated in place.
type ChatEntry struct {
	SourceID  primitive.ObjectID `json:"source_id" bson:"source_id"`
	SenderID  string             `json:"sender_id" bson:"sender_id"`
	Content   string             `json:"content" bson:"content"`
	Edited    bool               `json:"edited" bson:"edited"`
	Deleted   bool               `json:"deleted" bson:"deleted"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// Render returns the client-visible content; deleted entries are redacted.
func (e *ChatEntry) Render() string {
	if e.Deleted {
		return ""
	}
	return e.Content
}

// PersonalChat is the direct-message aggregate for one unordered pair of
// users. CanonicalKey orders the pair so at most one chat exists per pair.
type PersonalChat struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CanonicalKey  string             `json:"canonical_key" bson:"canonical_key"`
	UserLow       string             `json:"user_low" bson:"user_low"`
	UserHigh      string             `json:"user_high" bson:"user_high"`
	Messages      []ChatEntry        `json:"messages" bson:"messages"`
	LastMessage   string             `json:"last_message" bson:"last_message"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	MessageCount  int64              `json:"message_count" bson:"message_count"`
	Deleted       bool               `json:"deleted" bson:"deleted"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

func (c *PersonalChat) HasParticipant(userID string) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// GroupChat is the per-trip aggregate. Provisioned when the trip is
// created, closed when the trip reaches a terminal state.
type GroupChat struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TripID        primitive.ObjectID `json:"trip_id" bson:"trip_id"`
	DriverID      string             `json:"driver_id" bson:"driver_id"`
	Participants  []string           `json:"participants" bson:"participants"`
	Messages      []ChatEntry        `json:"messages" bson:"messages"`
	LastMessage   string             `json:"last_message" bson:"last_message"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	MessageCount  int64              `json:"message_count" bson:"message_count"`
	Status        ChatStatus         `json:"status" bson:"status" default:"active"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
	ClosedAt      *time.Time         `json:"closed_at" bson:"closed_at"`
}

func (c *GroupChat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
