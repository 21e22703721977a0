package mongodb

import (
	"context"
	"fmt"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"
	"gopool/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type requestRepository struct {
	collection *mongo.Collection
}

func NewRequestRepository(db *mongo.Database) interfaces.RequestRepository {
	return &requestRepository{
		collection: db.Collection("requests"),
	}
}

func (r *requestRepository) Create(ctx context.Context, req *models.Request) error {
	req.ID = primitive.NewObjectID()
	req.CreatedAt = time.Now()
	if req.State == "" {
		req.State = models.RequestStatePending
	}

	// Pre-check for an unresolved duplicate; the partial unique index on
	// (sender, receiver, kind, trip_id, state=pending) closes the race.
	filter := bson.M{
		"sender_id":   req.SenderID,
		"receiver_id": req.ReceiverID,
		"kind":        req.Kind,
		"state": bson.M{"$in": []models.RequestState{
			models.RequestStatePending,
			models.RequestStateProcessing,
		}},
	}
	if req.TripID != nil {
		filter["trip_id"] = *req.TripID
	} else {
		filter["trip_id"] = bson.M{"$exists": false}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate request: %w", err)
	}
	if count > 0 {
		return models.ErrDuplicatePending
	}

	if _, err := r.collection.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrDuplicatePending
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	var req models.Request
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

func (r *requestRepository) GetByReceiver(ctx context.Context, receiverID string, params *utils.PaginationParams) ([]*models.Request, int64, error) {
	filter := bson.M{"receiver_id": receiverID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.Request
	for cursor.Next(ctx) {
		var req models.Request
		if err := cursor.Decode(&req); err != nil {
			return nil, 0, fmt.Errorf("failed to decode request: %w", err)
		}
		requests = append(requests, &req)
	}
	return requests, total, nil
}

// Claim is the single arbiter between concurrent responders: the
// conditional pending -> processing flip matches for exactly one.
func (r *requestRepository) Claim(ctx context.Context, id primitive.ObjectID, receiverID string) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":         id,
			"receiver_id": receiverID,
			"state":       models.RequestStatePending,
		},
		bson.M{"$set": bson.M{"state": models.RequestStateProcessing}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim request: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *requestRepository) Release(ctx context.Context, id primitive.ObjectID, receiverID string) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":         id,
			"receiver_id": receiverID,
			"state":       models.RequestStateProcessing,
		},
		bson.M{"$set": bson.M{"state": models.RequestStatePending}},
	)
	if err != nil {
		return fmt.Errorf("failed to release request: %w", err)
	}
	return nil
}

// Resolve commits a claimed request to its terminal state.
func (r *requestRepository) Resolve(ctx context.Context, id primitive.ObjectID, receiverID string, state models.RequestState, resolvedAt time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":         id,
			"receiver_id": receiverID,
			"state":       models.RequestStateProcessing,
		},
		bson.M{"$set": bson.M{
			"state":       state,
			"resolved_at": resolvedAt,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve request: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *requestRepository) MarkRead(ctx context.Context, id primitive.ObjectID, receiverID string) (bool, error) {
	now := time.Now()
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":         id,
			"receiver_id": receiverID,
			"state":       models.RequestStatePending,
		},
		bson.M{"$set": bson.M{
			"state":       models.RequestStateRead,
			"resolved_at": now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark request read: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *requestRepository) CountPendingForTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"trip_id": tripID,
		"kind":    models.RequestKindTripJoin,
		"state": bson.M{"$in": []models.RequestState{
			models.RequestStatePending,
			models.RequestStateProcessing,
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending trip requests: %w", err)
	}
	return count, nil
}
