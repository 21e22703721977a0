package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PendingMessage is a staged chat message awaiting distribution. It is a
// queue item, not durable history: it exists from send until the
// distributor moves it into exactly one chat aggregate.
//
// Exactly one of RecipientUser / RecipientTrip must be set.
type PendingMessage struct {
	ID            primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	SenderID      string              `json:"sender_id" bson:"sender_id" validate:"required"`
	Content       string              `json:"content" bson:"content" validate:"required,max=1000"`
	RecipientUser string              `json:"recipient_user,omitempty" bson:"recipient_user,omitempty"`
	RecipientTrip *primitive.ObjectID `json:"recipient_trip,omitempty" bson:"recipient_trip,omitempty"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
}

func (m *PendingMessage) TargetsUser() bool {
	return m.RecipientUser != ""
}

func (m *PendingMessage) TargetsTrip() bool {
	return m.RecipientTrip != nil && !m.RecipientTrip.IsZero()
}
