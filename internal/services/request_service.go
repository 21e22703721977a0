package services

import (
	"context"
	"fmt"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"
	"gopool/internal/utils"
	"gopool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestService is the notification and request engine: it creates
// pending requests, runs the accept/reject protocol, and exposes the
// receiver's inbox.
type RequestService interface {
	CreateRequest(ctx context.Context, senderID string, input *CreateRequestInput) (*models.Request, error)

	// Respond resolves a pending request addressed to receiverID. Accepting
	// runs the kind's side effects before the resolution is committed.
	Respond(ctx context.Context, requestID primitive.ObjectID, receiverID string, decision models.Decision) (*models.ResolutionResult, error)

	// MarkRead acknowledges an informational notification.
	MarkRead(ctx context.Context, requestID primitive.ObjectID, receiverID string) error

	GetInbox(ctx context.Context, receiverID string, params *utils.PaginationParams) ([]*models.Request, int64, error)
	GetRequest(ctx context.Context, requestID primitive.ObjectID, userID string) (*models.Request, error)
}

type CreateRequestInput struct {
	Kind       models.RequestKind     `json:"kind" validate:"required"`
	ReceiverID string                 `json:"receiver_id" validate:"required"`
	TripID     *primitive.ObjectID    `json:"trip_id"`
	Payload    map[string]interface{} `json:"payload"`
}

// acceptFunc runs the side effects of accepting one request kind and
// fills in the kind-specific parts of the result. It runs before the
// request row is resolved; side effects must therefore be idempotent or
// guarded against double application.
type acceptFunc func(ctx context.Context, req *models.Request, result *models.ResolutionResult) error

type requestService struct {
	requestRepo    interfaces.RequestRepository
	friendshipRepo interfaces.FriendshipRepository
	userRepo       interfaces.UserRepository
	tripService    TripService
	paymentService PaymentService
	distributor    DistributorService
	notifier       RealtimeNotifier
	logger         *logger.Logger

	acceptors map[models.RequestKind]acceptFunc
}

func NewRequestService(
	requestRepo interfaces.RequestRepository,
	friendshipRepo interfaces.FriendshipRepository,
	userRepo interfaces.UserRepository,
	tripService TripService,
	paymentService PaymentService,
	distributor DistributorService,
	notifier RealtimeNotifier,
	log *logger.Logger,
) RequestService {
	s := &requestService{
		requestRepo:    requestRepo,
		friendshipRepo: friendshipRepo,
		userRepo:       userRepo,
		tripService:    tripService,
		paymentService: paymentService,
		distributor:    distributor,
		notifier:       notifier,
		logger:         log,
	}
	s.acceptors = map[models.RequestKind]acceptFunc{
		models.RequestKindFriend:           s.acceptFriend,
		models.RequestKindTripJoin:         s.acceptTripJoin,
		models.RequestKindAdminSupervision: s.acceptSupervision,
	}
	return s
}

func (s *requestService) CreateRequest(ctx context.Context, senderID string, input *CreateRequestInput) (*models.Request, error) {
	if senderID == input.ReceiverID {
		return nil, models.ErrSelfReferential
	}
	if !input.Kind.Respondable() {
		return nil, models.NewDomainError(models.CodeValidationFailed,
			fmt.Sprintf("request kind %q cannot be created directly", input.Kind))
	}

	if _, err := s.userRepo.GetByID(ctx, input.ReceiverID); err != nil {
		return nil, err
	}

	switch input.Kind {
	case models.RequestKindFriend:
		exists, err := s.friendshipRepo.Exists(ctx, senderID, input.ReceiverID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, models.ErrFriendshipExists
		}
	case models.RequestKindTripJoin:
		if input.TripID == nil {
			return nil, models.NewDomainError(models.CodeValidationFailed, "trip_id is required for trip join requests")
		}
		trip, err := s.tripService.GetTrip(ctx, *input.TripID)
		if err != nil {
			return nil, err
		}
		if trip.DriverID != input.ReceiverID {
			return nil, models.NewDomainError(models.CodeValidationFailed, "receiver is not the trip driver")
		}
		if trip.Status != models.TripStatusActive {
			return nil, models.ErrTripNotJoinable
		}
		if entry := trip.PassengerEntry(senderID); entry != nil && entry.State == models.PassengerStateConfirmed {
			return nil, models.ErrAlreadyPassenger
		}
		if trip.ConfirmedCount() >= trip.MaxPassengers {
			return nil, models.ErrTripFull
		}
	}

	req := &models.Request{
		Kind:       input.Kind,
		SenderID:   senderID,
		ReceiverID: input.ReceiverID,
		TripID:     input.TripID,
		Payload:    input.Payload,
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, err
	}

	// A trip join request also records a pending passenger entry so the
	// driver cannot depart past an unresolved requester.
	if input.Kind == models.RequestKindTripJoin {
		if err := s.tripService.RecordJoinRequest(ctx, *input.TripID, senderID); err != nil {
			s.logger.WithError(err).
				WithTripID(input.TripID.Hex()).
				WithUserID(senderID).
				Warn("Failed to record pending passenger for join request")
		}
	}

	s.notifyReceiver(req)

	s.logger.WithRequestID(req.ID.Hex()).
		WithField("kind", req.Kind).
		Info("Request created")
	return req, nil
}

func (s *requestService) notifyReceiver(req *models.Request) {
	if s.notifier == nil {
		return
	}
	data := map[string]interface{}{
		"notification_id": req.ID.Hex(),
		"kind":            req.Kind,
		"sender_id":       req.SenderID,
	}
	if req.TripID != nil {
		data["trip_id"] = req.TripID.Hex()
	}
	s.notifier.SendToUser(req.ReceiverID, "new_notification", data)
}

func (s *requestService) Respond(ctx context.Context, requestID primitive.ObjectID, receiverID string, decision models.Decision) (*models.ResolutionResult, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	// Requests are invisible to anyone but the receiver.
	if req.ReceiverID != receiverID {
		return nil, models.ErrRequestNotFound
	}
	if req.IsResolved() {
		return nil, models.ErrAlreadyResolved
	}
	if !req.Kind.Respondable() {
		return nil, models.NewDomainError(models.CodeValidationFailed,
			fmt.Sprintf("request kind %q does not accept responses", req.Kind))
	}

	var accept acceptFunc
	switch decision {
	case models.DecisionReject:
	case models.DecisionAccept:
		var ok bool
		accept, ok = s.acceptors[req.Kind]
		if !ok {
			return nil, models.NewDomainError(models.CodeValidationFailed,
				fmt.Sprintf("no acceptance handler for kind %q", req.Kind))
		}
	default:
		return nil, models.NewDomainError(models.CodeValidationFailed,
			fmt.Sprintf("unknown decision %q", decision))
	}

	result := &models.ResolutionResult{Request: req, Decision: decision}

	// Claim before any side effect: exactly one responder wins, so the
	// seat payment can never settle twice for the same request.
	claimed, err := s.requestRepo.Claim(ctx, req.ID, receiverID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, models.ErrAlreadyResolved
	}

	switch decision {
	case models.DecisionReject:
		if err := s.commitResolution(ctx, req, models.RequestStateRejected); err != nil {
			return nil, err
		}
		// A turned-down join request also releases the pending seat hold.
		if req.Kind == models.RequestKindTripJoin && req.TripID != nil {
			if err := s.tripService.RejectPassenger(ctx, *req.TripID, req.SenderID); err != nil {
				s.logger.WithError(err).
					WithTripID(req.TripID.Hex()).
					WithUserID(req.SenderID).
					Warn("Failed to mark rejected passenger on trip")
			}
		}
	case models.DecisionAccept:
		// A failed side effect returns the request to pending so the
		// receiver can retry.
		if err := accept(ctx, req, result); err != nil {
			s.release(ctx, req)
			return nil, err
		}
		if err := s.commitResolution(ctx, req, models.RequestStateAccepted); err != nil {
			return nil, err
		}
	}

	s.notifySender(req, decision)

	s.logger.WithRequestID(req.ID.Hex()).
		WithField("kind", req.Kind).
		WithField("decision", decision).
		Info("Request resolved")
	return result, nil
}

func (s *requestService) release(ctx context.Context, req *models.Request) {
	if err := s.requestRepo.Release(ctx, req.ID, req.ReceiverID); err != nil {
		s.logger.WithError(err).
			WithRequestID(req.ID.Hex()).
			Error("Failed to release claimed request")
	}
}

// commitResolution performs the conditional processing -> terminal flip.
// A request that slipped away surfaces as ErrAlreadyResolved.
func (s *requestService) commitResolution(ctx context.Context, req *models.Request, state models.RequestState) error {
	now := time.Now()
	resolved, err := s.requestRepo.Resolve(ctx, req.ID, req.ReceiverID, state, now)
	if err != nil {
		return err
	}
	if !resolved {
		return models.ErrAlreadyResolved
	}
	req.State = state
	req.ResolvedAt = &now
	return nil
}

func (s *requestService) notifySender(req *models.Request, decision models.Decision) {
	if s.notifier == nil {
		return
	}
	data := map[string]interface{}{
		"notification_id": req.ID.Hex(),
		"kind":            req.Kind,
		"decision":        decision,
	}
	if req.TripID != nil {
		data["trip_id"] = req.TripID.Hex()
	}
	s.notifier.SendToUser(req.SenderID, "new_notification", data)
}

func (s *requestService) acceptFriend(ctx context.Context, req *models.Request, result *models.ResolutionResult) error {
	friendship := models.NewFriendship(req.SenderID, req.ReceiverID)
	if err := s.friendshipRepo.Create(ctx, friendship); err != nil {
		// A concurrent accept already created the pair; the resolution
		// commit decides who wins the request itself.
		if models.CodeOf(err) != models.CodeAlreadyExists {
			return err
		}
	}
	result.Friendship = friendship
	return nil
}

// acceptTripJoin re-validates the trip, settles the seat payment, then
// confirms the passenger. Payment failure aborts before any passenger
// state changes; the request stays pending.
func (s *requestService) acceptTripJoin(ctx context.Context, req *models.Request, result *models.ResolutionResult) error {
	if req.TripID == nil {
		return models.NewDomainError(models.CodeValidationFailed, "trip join request is missing its trip")
	}

	trip, err := s.tripService.GetTrip(ctx, *req.TripID)
	if err != nil {
		return err
	}
	if trip.Status != models.TripStatusActive {
		return models.ErrTripNotJoinable
	}
	if entry := trip.PassengerEntry(req.SenderID); entry != nil && entry.State == models.PassengerStateConfirmed {
		return models.ErrAlreadyPassenger
	}
	if trip.ConfirmedCount() >= trip.MaxPassengers {
		return models.ErrTripFull
	}

	if trip.PricePerSeat > 0 {
		payment, err := s.settleSeatPayment(ctx, req, trip)
		if err != nil {
			return err
		}
		result.TransactionID = payment.TransactionID
	}

	confirmed, err := s.tripService.ConfirmPassenger(ctx, *req.TripID, req.SenderID)
	if err != nil {
		return err
	}
	result.Trip = confirmed

	s.addToTripChat(ctx, *req.TripID, trip.DriverID, req.SenderID)
	return nil
}

func (s *requestService) settleSeatPayment(ctx context.Context, req *models.Request, trip *models.Trip) (*TripPaymentResult, error) {
	method := models.PaymentMethodWallet
	paymentMethodID := ""
	if req.Payload != nil {
		if m, ok := req.Payload["payment_method"].(string); ok && m != "" {
			method = models.PaymentMethod(m)
		}
		if id, ok := req.Payload["payment_method_id"].(string); ok {
			paymentMethodID = id
		}
	}

	return s.paymentService.ProcessTripPayment(ctx, &TripPaymentRequest{
		PayerID:         req.SenderID,
		PayeeID:         trip.DriverID,
		TripID:          trip.ID.Hex(),
		Amount:          trip.PricePerSeat,
		Currency:        trip.Currency,
		Method:          method,
		PaymentMethodID: paymentMethodID,
	})
}

// addToTripChat enrolls the confirmed passenger in the trip group chat.
// Chat membership is best-effort: the seat is already confirmed and is
// never rolled back for a chat failure.
func (s *requestService) addToTripChat(ctx context.Context, tripID primitive.ObjectID, driverID, userID string) {
	_, err := s.distributor.AddParticipant(ctx, tripID, userID)
	if err == nil {
		return
	}

	if models.CodeOf(err) == models.CodeNotFound {
		// The chat was never provisioned; create it and retry once.
		if _, createErr := s.distributor.CreateGroupChat(ctx, tripID, driverID); createErr == nil ||
			models.CodeOf(createErr) == models.CodeAlreadyExists {
			_, err = s.distributor.AddParticipant(ctx, tripID, userID)
		}
	}
	if err != nil && models.CodeOf(err) != models.CodeAlreadyExists {
		s.logger.WithError(err).
			WithTripID(tripID.Hex()).
			WithUserID(userID).
			Error("Failed to add confirmed passenger to trip chat")
	}
}

func (s *requestService) acceptSupervision(ctx context.Context, req *models.Request, result *models.ResolutionResult) error {
	// Supervision grants carry no state beyond the accepted request row.
	receiver, err := s.userRepo.GetByID(ctx, req.ReceiverID)
	if err != nil {
		return err
	}
	if receiver.Role != models.UserRoleAdmin {
		return models.ErrNotAuthorized
	}
	return nil
}

func (s *requestService) MarkRead(ctx context.Context, requestID primitive.ObjectID, receiverID string) error {
	marked, err := s.requestRepo.MarkRead(ctx, requestID, receiverID)
	if err != nil {
		return err
	}
	if !marked {
		req, err := s.requestRepo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.ReceiverID != receiverID {
			return models.ErrRequestNotFound
		}
		return models.ErrAlreadyResolved
	}
	return nil
}

func (s *requestService) GetInbox(ctx context.Context, receiverID string, params *utils.PaginationParams) ([]*models.Request, int64, error) {
	return s.requestRepo.GetByReceiver(ctx, receiverID, params)
}

func (s *requestService) GetRequest(ctx context.Context, requestID primitive.ObjectID, userID string) (*models.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != userID && req.SenderID != userID {
		return nil, models.ErrRequestNotFound
	}
	return req, nil
}
