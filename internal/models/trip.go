package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripStatus string
type PassengerState string

const (
	TripStatusDraft     TripStatus = "draft"
	TripStatusActive    TripStatus = "active"
	TripStatusEnRoute   TripStatus = "en_route"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"

	PassengerStatePending   PassengerState = "pending"
	PassengerStateConfirmed PassengerState = "confirmed"
	PassengerStateRejected  PassengerState = "rejected"
)

type GeoPoint struct {
	Type        string    `json:"type" bson:"type" default:"Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"` // [lng, lat]
}

type Place struct {
	Name  string   `json:"name" bson:"name" validate:"required"`
	Point GeoPoint `json:"point" bson:"point"`
}

type Passenger struct {
	UserID   string         `json:"user_id" bson:"user_id"`
	State    PassengerState `json:"state" bson:"state" default:"pending"`
	JoinedAt time.Time      `json:"joined_at" bson:"joined_at"`
}

type Trip struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DriverID           string             `json:"driver_id" bson:"driver_id" validate:"required"`
	Origin             Place              `json:"origin" bson:"origin" validate:"required"`
	Destination        Place              `json:"destination" bson:"destination" validate:"required"`
	DepartureAt        time.Time          `json:"departure_at" bson:"departure_at" validate:"required"`
	ReturnAt           *time.Time         `json:"return_at" bson:"return_at"`
	VehiclePlate       string             `json:"vehicle_plate" bson:"vehicle_plate"`
	MaxPassengers      int                `json:"max_passengers" bson:"max_passengers" validate:"required,min=1"`
	SeatsAvailable     int                `json:"seats_available" bson:"seats_available"`
	PricePerSeat       float64            `json:"price_per_seat" bson:"price_per_seat"`
	Currency           string             `json:"currency" bson:"currency" default:"USD"`
	Passengers         []Passenger        `json:"passengers" bson:"passengers"`
	Status             TripStatus         `json:"status" bson:"status" default:"draft"`
	CancellationReason string             `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	EstimatedDistance  float64            `json:"estimated_distance" bson:"estimated_distance"` // kilometers
	EstimatedDuration  int                `json:"estimated_duration" bson:"estimated_duration"` // minutes
	Version            int64              `json:"-" bson:"version"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" bson:"updated_at"`
	CompletedAt        *time.Time         `json:"completed_at" bson:"completed_at"`
}

// ConfirmedCount counts passengers in the confirmed state.
func (t *Trip) ConfirmedCount() int {
	n := 0
	for i := range t.Passengers {
		if t.Passengers[i].State == PassengerStateConfirmed {
			n++
		}
	}
	return n
}

// PassengerEntry returns the passenger record for userID, or nil.
func (t *Trip) PassengerEntry(userID string) *Passenger {
	for i := range t.Passengers {
		if t.Passengers[i].UserID == userID {
			return &t.Passengers[i]
		}
	}
	return nil
}

// RecomputeSeats keeps seats_available consistent with the confirmed
// passenger count. Call after every passenger mutation.
func (t *Trip) RecomputeSeats() {
	t.SeatsAvailable = t.MaxPassengers - t.ConfirmedCount()
	if t.SeatsAvailable < 0 {
		t.SeatsAvailable = 0
	}
}

func (t *Trip) IsTerminal() bool {
	return t.Status == TripStatusCompleted || t.Status == TripStatusCancelled
}
