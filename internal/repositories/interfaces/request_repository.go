package interfaces

import (
	"context"
	"time"

	"gopool/internal/models"
	"gopool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RequestRepository interface {
	// Create inserts a new pending request. Returns ErrDuplicatePending
	// when an unresolved request with the same (sender, receiver, kind,
	// trip) tuple exists.
	Create(ctx context.Context, req *models.Request) error

	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Request, error)
	GetByReceiver(ctx context.Context, receiverID string, params *utils.PaginationParams) ([]*models.Request, int64, error)

	// Claim flips state from pending to processing, conditional on the
	// request still being pending and addressed to receiverID. Exactly
	// one concurrent responder wins the claim.
	Claim(ctx context.Context, id primitive.ObjectID, receiverID string) (bool, error)

	// Release returns a claimed request to pending so the receiver can
	// retry after a failed side effect.
	Release(ctx context.Context, id primitive.ObjectID, receiverID string) error

	// Resolve flips state from processing to the given terminal state.
	// Reports whether the conditional update matched.
	Resolve(ctx context.Context, id primitive.ObjectID, receiverID string, state models.RequestState, resolvedAt time.Time) (bool, error)

	MarkRead(ctx context.Context, id primitive.ObjectID, receiverID string) (bool, error)

	CountPendingForTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error)
}
