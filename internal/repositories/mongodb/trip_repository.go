package mongodb

import (
	"context"
	"fmt"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"
	"gopool/internal/services"
	"gopool/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type tripRepository struct {
	collection *mongo.Collection
	cache      services.CacheService
}

func NewTripRepository(db *mongo.Database, cache services.CacheService) interfaces.TripRepository {
	return &tripRepository{
		collection: db.Collection("trips"),
		cache:      cache,
	}
}

func (r *tripRepository) Create(ctx context.Context, trip *models.Trip) error {
	trip.ID = primitive.NewObjectID()
	trip.CreatedAt = time.Now()
	trip.UpdatedAt = time.Now()
	trip.Version = 1
	if trip.Passengers == nil {
		trip.Passengers = []models.Passenger{}
	}
	trip.RecomputeSeats()

	if _, err := r.collection.InsertOne(ctx, trip); err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

func (r *tripRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	cacheKey := fmt.Sprintf("trip:%s", id.Hex())
	if r.cache != nil {
		var trip models.Trip
		if err := r.cache.Get(ctx, cacheKey, &trip); err == nil {
			return &trip, nil
		}
	}

	var trip models.Trip
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&trip)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, &trip, 5*time.Minute)
	}
	return &trip, nil
}

func (r *tripRepository) GetByDriver(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	filter := bson.M{"driver_id": driverID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count trips: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find trips: %w", err)
	}
	defer cursor.Close(ctx)

	trips, err := decodeTrips(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return trips, total, nil
}

// Save writes the whole document conditional on the version it was read
// at. Lost updates on the passenger list cause overbooking, so every
// writer goes through this compare-and-swap.
func (r *tripRepository) Save(ctx context.Context, trip *models.Trip) error {
	readVersion := trip.Version
	trip.Version = readVersion + 1
	trip.UpdatedAt = time.Now()

	result, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": trip.ID, "version": readVersion},
		trip,
	)
	if err != nil {
		trip.Version = readVersion
		return fmt.Errorf("failed to save trip: %w", err)
	}
	if result.MatchedCount == 0 {
		trip.Version = readVersion
		// Either the document moved or it no longer exists.
		count, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": trip.ID})
		if countErr == nil && count == 0 {
			return models.ErrTripNotFound
		}
		return models.ErrVersionConflict
	}

	r.invalidate(ctx, trip.ID)
	return nil
}

func (r *tripRepository) ClaimTransition(ctx context.Context, id primitive.ObjectID, from, to models.TripStatus, updates map[string]interface{}) (bool, error) {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		set[k] = v
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{
			"$set": set,
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim transition: %w", err)
	}

	if result.MatchedCount > 0 {
		r.invalidate(ctx, id)
		return true, nil
	}
	return false, nil
}

func (r *tripRepository) ClaimExpiryCancellation(ctx context.Context, id primitive.ObjectID, reason string) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":    id,
			"status": models.TripStatusActive,
			"passengers": bson.M{"$not": bson.M{"$elemMatch": bson.M{
				"state": models.PassengerStateConfirmed,
			}}},
		},
		bson.M{
			"$set": bson.M{
				"status":              models.TripStatusCancelled,
				"cancellation_reason": reason,
				"updated_at":          time.Now(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim expiry cancellation: %w", err)
	}

	if result.MatchedCount > 0 {
		r.invalidate(ctx, id)
		return true, nil
	}
	return false, nil
}

func (r *tripRepository) GetDueForTransition(ctx context.Context, now time.Time) ([]*models.Trip, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"status":       models.TripStatusActive,
		"departure_at": bson.M{"$lte": now},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find due trips: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeTrips(ctx, cursor)
}

func (r *tripRepository) GetUserTripsBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.Trip, error) {
	window := bson.M{"$gte": from, "$lte": to}
	filter := bson.M{
		"status": bson.M{"$in": []models.TripStatus{
			models.TripStatusDraft,
			models.TripStatusActive,
			models.TripStatusEnRoute,
		}},
		"$and": []bson.M{
			{"$or": []bson.M{
				{"driver_id": userID},
				{"passengers": bson.M{"$elemMatch": bson.M{
					"user_id": userID,
					"state": bson.M{"$in": []models.PassengerState{
						models.PassengerStatePending,
						models.PassengerStateConfirmed,
					}},
				}}},
			}},
			{"$or": []bson.M{
				{"departure_at": window},
				{"return_at": window},
			}},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find trips in window: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeTrips(ctx, cursor)
}

func (r *tripRepository) SearchNearOrigin(ctx context.Context, lat, lng, radiusKM float64, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	filter := bson.M{
		"status": models.TripStatusActive,
		"origin.point": bson.M{
			"$nearSphere": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{lng, lat},
				},
				"$maxDistance": radiusKM * 1000,
			},
		},
	}

	// $nearSphere queries cannot be counted directly; count a geoWithin
	// equivalent for the pagination meta.
	total, err := r.collection.CountDocuments(ctx, bson.M{
		"status": models.TripStatusActive,
		"origin.point": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": []interface{}{[]float64{lng, lat}, radiusKM / 6371.0},
			},
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count nearby trips: %w", err)
	}

	opts := params.GetSortOptions()
	opts.SetSort(nil) // $nearSphere already orders by distance

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search nearby trips: %w", err)
	}
	defer cursor.Close(ctx)

	trips, err := decodeTrips(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return trips, total, nil
}

func (r *tripRepository) invalidate(ctx context.Context, id primitive.ObjectID) {
	if r.cache != nil {
		r.cache.Delete(ctx, fmt.Sprintf("trip:%s", id.Hex()))
	}
}

func decodeTrips(ctx context.Context, cursor *mongo.Cursor) ([]*models.Trip, error) {
	var trips []*models.Trip
	for cursor.Next(ctx) {
		var trip models.Trip
		if err := cursor.Decode(&trip); err != nil {
			return nil, fmt.Errorf("failed to decode trip: %w", err)
		}
		trips = append(trips, &trip)
	}
	return trips, nil
}
