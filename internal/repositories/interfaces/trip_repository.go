package interfaces

import (
	"context"
	"time"

	"gopool/internal/models"
	"gopool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripRepository interface {
	Create(ctx context.Context, trip *models.Trip) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error)
	GetByDriver(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Trip, int64, error)

	// Save persists the full document conditional on the version the
	// trip was read at, incrementing it. Returns ErrVersionConflict when
	// the document moved underneath the caller.
	Save(ctx context.Context, trip *models.Trip) error

	// ClaimTransition flips status from -> to only if the trip is still
	// in the from state. Reports whether this caller won the claim.
	ClaimTransition(ctx context.Context, id primitive.ObjectID, from, to models.TripStatus, updates map[string]interface{}) (bool, error)

	// ClaimExpiryCancellation flips an active trip to cancelled only if
	// it still has no confirmed passenger. The condition is part of the
	// claim filter so a passenger confirmed after the due-list snapshot
	// keeps the trip alive.
	ClaimExpiryCancellation(ctx context.Context, id primitive.ObjectID, reason string) (bool, error)

	// GetDueForTransition returns active trips whose departure time has
	// passed.
	GetDueForTransition(ctx context.Context, now time.Time) ([]*models.Trip, error)

	// GetUserTripsBetween returns non-terminal trips in which userID is
	// the driver or a pending/confirmed passenger and whose departure or
	// return timestamp falls inside [from, to].
	GetUserTripsBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.Trip, error)

	// SearchNearOrigin runs a geospatial query around the given point.
	SearchNearOrigin(ctx context.Context, lat, lng, radiusKM float64, params *utils.PaginationParams) ([]*models.Trip, int64, error)
}
