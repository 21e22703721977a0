package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RequestKind string
type RequestState string

const (
	RequestKindFriend           RequestKind = "friend_request"
	RequestKindTripJoin         RequestKind = "trip_join_request"
	RequestKindAdminSupervision RequestKind = "admin_supervision_request"

	// Informational notification kinds. Stored alongside requests but
	// never respondable: they move from pending straight to read.
	RequestKindTripCancelled RequestKind = "trip_cancelled"

	RequestStatePending RequestState = "pending"
	// Processing marks a request claimed by a responder whose side
	// effects are still running. It returns to pending on failure.
	RequestStateProcessing RequestState = "processing"
	RequestStateAccepted   RequestState = "accepted"
	RequestStateRejected   RequestState = "rejected"
	RequestStateRead       RequestState = "read"
)

// Request is an asynchronous two-party proposal (friend, trip-join,
// supervision) or a stored notification. At most one pending request may
// exist per (sender, receiver, kind, trip) tuple.
type Request struct {
	ID         primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	Kind       RequestKind            `json:"kind" bson:"kind" validate:"required"`
	SenderID   string                 `json:"sender_id" bson:"sender_id" validate:"required"`
	ReceiverID string                 `json:"receiver_id" bson:"receiver_id" validate:"required"`
	TripID     *primitive.ObjectID    `json:"trip_id,omitempty" bson:"trip_id,omitempty"`
	Payload    map[string]interface{} `json:"payload" bson:"payload"`
	State      RequestState           `json:"state" bson:"state" default:"pending"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
	ResolvedAt *time.Time             `json:"resolved_at" bson:"resolved_at"`
}

// Respondable reports whether the kind participates in the accept/reject
// protocol. Informational kinds only support MarkRead.
func (k RequestKind) Respondable() bool {
	switch k {
	case RequestKindFriend, RequestKindTripJoin, RequestKindAdminSupervision:
		return true
	}
	return false
}

func (r *Request) IsResolved() bool {
	switch r.State {
	case RequestStatePending, RequestStateProcessing:
		return false
	}
	return true
}

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// ResolutionResult is the uniform outcome of responding to a request,
// regardless of kind.
type ResolutionResult struct {
	Request       *Request    `json:"request"`
	Decision      Decision    `json:"decision"`
	Friendship    *Friendship `json:"friendship,omitempty"`
	Trip          *Trip       `json:"trip,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
}
