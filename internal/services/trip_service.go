package services

import (
	"context"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"
	"gopool/internal/utils"
	"gopool/pkg/logger"
	"gopool/pkg/maps"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TripService owns the trip lifecycle state machine and the passenger
// list. No other code mutates trip status or passengers.
type TripService interface {
	CreateTrip(ctx context.Context, driverID string, input *CreateTripInput) (*models.Trip, error)
	UpdateSchedule(ctx context.Context, tripID primitive.ObjectID, driverID string, departureAt time.Time, returnAt *time.Time) (*models.Trip, error)

	GetTrip(ctx context.Context, tripID primitive.ObjectID) (*models.Trip, error)
	GetDriverTrips(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Trip, int64, error)
	SearchTrips(ctx context.Context, lat, lng, radiusKM float64, params *utils.PaginationParams) ([]*TripSearchResult, int64, error)

	// Transition applies a driver-initiated state change.
	Transition(ctx context.Context, tripID primitive.ObjectID, driverID string, to models.TripStatus, reason string) (*models.Trip, error)

	// ConfirmPassenger flips (or appends) the passenger entry to
	// confirmed, re-validating capacity under optimistic concurrency.
	ConfirmPassenger(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.Trip, error)

	// RecordJoinRequest notes a pending passenger so the cancellation
	// sweep can notify requesters who were never confirmed.
	RecordJoinRequest(ctx context.Context, tripID primitive.ObjectID, userID string) error

	// RejectPassenger flips a pending passenger entry to rejected after
	// the driver turns down the join request.
	RejectPassenger(ctx context.Context, tripID primitive.ObjectID, userID string) error

	// AbandonTrip removes a pending/confirmed passenger from the trip.
	AbandonTrip(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.Trip, error)

	// Sweep applies time-based automatic transitions to due trips.
	Sweep(ctx context.Context, now time.Time) error

	// RunSweeper ticks Sweep until ctx is done.
	RunSweeper(ctx context.Context)
}

type CreateTripInput struct {
	Origin        models.Place `json:"origin" validate:"required"`
	Destination   models.Place `json:"destination" validate:"required"`
	DepartureAt   time.Time    `json:"departure_at" validate:"required"`
	ReturnAt      *time.Time   `json:"return_at"`
	VehiclePlate  string       `json:"vehicle_plate" validate:"required"`
	MaxPassengers int          `json:"max_passengers" validate:"required,min=1,max=8"`
	PricePerSeat  float64      `json:"price_per_seat" validate:"min=0"`
	Currency      string       `json:"currency"`
	Publish       bool         `json:"publish"`
}

// TripSearchResult is the read-side composition of a trip document with
// the driver profile from the identity store.
type TripSearchResult struct {
	Trip   *models.Trip `json:"trip"`
	Driver *models.User `json:"driver,omitempty"`
}

// tripTransitions is the legal state transition table. Anything absent
// is an InvalidTransition.
var tripTransitions = map[models.TripStatus][]models.TripStatus{
	models.TripStatusDraft:   {models.TripStatusActive, models.TripStatusCancelled},
	models.TripStatusActive:  {models.TripStatusEnRoute, models.TripStatusCancelled},
	models.TripStatusEnRoute: {models.TripStatusCompleted, models.TripStatusCancelled},
}

// CanTransition reports whether from -> to is a legal trip transition.
func CanTransition(from, to models.TripStatus) bool {
	for _, allowed := range tripTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type tripService struct {
	tripRepo    interfaces.TripRepository
	requestRepo interfaces.RequestRepository
	userRepo    interfaces.UserRepository
	distributor DistributorService
	mapsClient  maps.MapsProvider
	notifier    RealtimeNotifier
	logger      *logger.Logger
}

func NewTripService(
	tripRepo interfaces.TripRepository,
	requestRepo interfaces.RequestRepository,
	userRepo interfaces.UserRepository,
	distributor DistributorService,
	mapsClient maps.MapsProvider,
	notifier RealtimeNotifier,
	log *logger.Logger,
) TripService {
	return &tripService{
		tripRepo:    tripRepo,
		requestRepo: requestRepo,
		userRepo:    userRepo,
		distributor: distributor,
		mapsClient:  mapsClient,
		notifier:    notifier,
		logger:      log,
	}
}

func (s *tripService) CreateTrip(ctx context.Context, driverID string, input *CreateTripInput) (*models.Trip, error) {
	if !input.DepartureAt.After(time.Now()) {
		return nil, models.NewDomainError(models.CodeValidationFailed, "departure must be in the future")
	}
	if input.ReturnAt != nil && !input.ReturnAt.After(input.DepartureAt) {
		return nil, models.NewDomainError(models.CodeValidationFailed, "return must be after departure")
	}
	if input.MaxPassengers > utils.MaxTripPassengers {
		return nil, models.NewDomainError(models.CodeValidationFailed, "too many passenger seats")
	}

	if err := s.checkScheduleConflict(ctx, driverID, input.DepartureAt, input.ReturnAt, primitive.NilObjectID); err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = utils.DefaultCurrency
	}

	status := models.TripStatusDraft
	if input.Publish {
		status = models.TripStatusActive
	}

	trip := &models.Trip{
		DriverID:      driverID,
		Origin:        input.Origin,
		Destination:   input.Destination,
		DepartureAt:   input.DepartureAt,
		ReturnAt:      input.ReturnAt,
		VehiclePlate:  input.VehiclePlate,
		MaxPassengers: input.MaxPassengers,
		PricePerSeat:  input.PricePerSeat,
		Currency:      currency,
		Passengers:    []models.Passenger{},
		Status:        status,
	}

	s.estimateRoute(ctx, trip)

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, err
	}

	// Group chats are provisioned eagerly so membership can be seeded
	// from the driver.
	if _, err := s.distributor.CreateGroupChat(ctx, trip.ID, driverID); err != nil {
		s.logger.WithError(err).
			WithTripID(trip.ID.Hex()).
			Error("Failed to provision trip group chat")
	}

	s.logger.LogTripEvent(trip.ID.Hex(), "trip_created", map[string]interface{}{
		"driver_id": driverID,
		"status":    trip.Status,
	})
	return trip, nil
}

// estimateRoute fills in distance/duration when a maps client is
// configured. Estimate failures never block trip creation.
func (s *tripService) estimateRoute(ctx context.Context, trip *models.Trip) {
	if s.mapsClient == nil {
		return
	}
	if len(trip.Origin.Point.Coordinates) != 2 || len(trip.Destination.Point.Coordinates) != 2 {
		return
	}

	resp, err := s.mapsClient.GetDirections(ctx, &maps.DirectionsRequest{
		Origin: maps.Location{
			Latitude:  trip.Origin.Point.Coordinates[1],
			Longitude: trip.Origin.Point.Coordinates[0],
		},
		Destination: maps.Location{
			Latitude:  trip.Destination.Point.Coordinates[1],
			Longitude: trip.Destination.Point.Coordinates[0],
		},
		Mode: "driving",
	})
	if err != nil || len(resp.Routes) == 0 {
		if err != nil {
			s.logger.WithError(err).Debug("Route estimate unavailable")
		}
		return
	}

	trip.EstimatedDistance = resp.Routes[0].Distance.Value / 1000.0
	trip.EstimatedDuration = resp.Routes[0].Duration.Value / 60
}

func (s *tripService) UpdateSchedule(ctx context.Context, tripID primitive.ObjectID, driverID string, departureAt time.Time, returnAt *time.Time) (*models.Trip, error) {
	if err := s.checkScheduleConflict(ctx, driverID, departureAt, returnAt, tripID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < utils.MaxSaveRetries; attempt++ {
		trip, err := s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if trip.DriverID != driverID {
			return nil, models.ErrNotAuthorized
		}
		if trip.IsTerminal() || trip.Status == models.TripStatusEnRoute {
			return nil, models.ErrInvalidTransition
		}

		trip.DepartureAt = departureAt
		trip.ReturnAt = returnAt

		err = s.tripRepo.Save(ctx, trip)
		if err == nil {
			return trip, nil
		}
		if models.CodeOf(err) != models.CodeVersionConflict {
			return nil, err
		}
	}
	return nil, models.ErrVersionConflict
}

// checkScheduleConflict enforces the 6-hour window rule: a user may not
// be involved in two trips whose departure or return timestamps fall
// within the window of each other.
func (s *tripService) checkScheduleConflict(ctx context.Context, userID string, departureAt time.Time, returnAt *time.Time, excludeTrip primitive.ObjectID) error {
	window := utils.ScheduleConflictWindow

	stamps := []time.Time{departureAt}
	if returnAt != nil {
		stamps = append(stamps, *returnAt)
	}

	for _, stamp := range stamps {
		trips, err := s.tripRepo.GetUserTripsBetween(ctx, userID, stamp.Add(-window), stamp.Add(window))
		if err != nil {
			return err
		}
		for _, other := range trips {
			if other.ID == excludeTrip {
				continue
			}
			return models.NewScheduleConflictError(other.ID.Hex())
		}
	}
	return nil
}

func (s *tripService) GetTrip(ctx context.Context, tripID primitive.ObjectID) (*models.Trip, error) {
	return s.tripRepo.GetByID(ctx, tripID)
}

func (s *tripService) GetDriverTrips(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	return s.tripRepo.GetByDriver(ctx, driverID, params)
}

func (s *tripService) SearchTrips(ctx context.Context, lat, lng, radiusKM float64, params *utils.PaginationParams) ([]*TripSearchResult, int64, error) {
	if !utils.IsValidCoordinates(lat, lng) {
		return nil, 0, models.NewDomainError(models.CodeValidationFailed, "invalid coordinates")
	}
	if radiusKM <= 0 || radiusKM > utils.MaxSearchRadius {
		radiusKM = utils.DefaultSearchRadius
	}

	trips, total, err := s.tripRepo.SearchNearOrigin(ctx, lat, lng, radiusKM, params)
	if err != nil {
		return nil, 0, err
	}

	// Read-side enrichment with the driver profile. A missing profile
	// degrades the result, it does not fail the search.
	results := make([]*TripSearchResult, 0, len(trips))
	for _, trip := range trips {
		result := &TripSearchResult{Trip: trip}
		if driver, err := s.userRepo.GetByID(ctx, trip.DriverID); err == nil {
			result.Driver = driver
		}
		results = append(results, result)
	}
	return results, total, nil
}

func (s *tripService) Transition(ctx context.Context, tripID primitive.ObjectID, driverID string, to models.TripStatus, reason string) (*models.Trip, error) {
	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != driverID {
		return nil, models.ErrNotAuthorized
	}
	if !CanTransition(trip.Status, to) {
		return nil, models.ErrInvalidTransition
	}

	// Departing manually requires a confirmed passenger and a cleared
	// inbox; the automatic sweep path bypasses both.
	if trip.Status == models.TripStatusActive && to == models.TripStatusEnRoute {
		if trip.ConfirmedCount() == 0 {
			return nil, models.ErrRequiresConfirmedPassenger
		}
		pending, err := s.requestRepo.CountPendingForTrip(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if pending > 0 {
			return nil, models.ErrPendingRequestsExist
		}
	}

	updates := map[string]interface{}{}
	if to == models.TripStatusCancelled {
		updates["cancellation_reason"] = reason
	}
	if to == models.TripStatusCompleted {
		updates["completed_at"] = time.Now()
	}

	claimed, err := s.tripRepo.ClaimTransition(ctx, tripID, trip.Status, to, updates)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// The trip moved under us; the transition we validated no
		// longer applies.
		return nil, models.ErrInvalidTransition
	}

	if to == models.TripStatusCancelled || to == models.TripStatusCompleted {
		s.finalizeTerminal(ctx, trip, to, reason)
	}

	s.logger.LogTripEvent(tripID.Hex(), "trip_transitioned", map[string]interface{}{
		"from": trip.Status,
		"to":   to,
	})

	return s.tripRepo.GetByID(ctx, tripID)
}

// finalizeTerminal closes the trip chat and notifies passengers after a
// terminal transition has been claimed.
func (s *tripService) finalizeTerminal(ctx context.Context, trip *models.Trip, to models.TripStatus, reason string) {
	if err := s.distributor.CloseGroupChat(ctx, trip.ID); err != nil {
		if models.CodeOf(err) != models.CodeNotFound {
			s.logger.WithError(err).
				WithTripID(trip.ID.Hex()).
				Error("Failed to close trip group chat")
		}
	}

	if to == models.TripStatusCancelled {
		s.notifyCancellation(ctx, trip, reason)
	}
}

// notifyCancellation persists a trip_cancelled notification for every
// pending or confirmed passenger and fans it out.
func (s *tripService) notifyCancellation(ctx context.Context, trip *models.Trip, reason string) {
	for _, p := range trip.Passengers {
		if p.State == models.PassengerStateRejected {
			continue
		}

		notice := &models.Request{
			Kind:       models.RequestKindTripCancelled,
			SenderID:   trip.DriverID,
			ReceiverID: p.UserID,
			TripID:     &trip.ID,
			Payload: map[string]interface{}{
				"reason": reason,
			},
		}
		if err := s.requestRepo.Create(ctx, notice); err != nil {
			if models.CodeOf(err) != models.CodeDuplicatePending {
				s.logger.WithError(err).
					WithUserID(p.UserID).
					Error("Failed to store cancellation notification")
			}
			continue
		}

		if s.notifier != nil {
			s.notifier.SendToUser(p.UserID, "new_notification", map[string]interface{}{
				"notification_id": notice.ID.Hex(),
				"kind":            notice.Kind,
				"trip_id":         trip.ID.Hex(),
				"reason":          reason,
			})
		}
	}
}

func (s *tripService) ConfirmPassenger(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.Trip, error) {
	for attempt := 0; attempt < utils.MaxSaveRetries; attempt++ {
		trip, err := s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if trip.Status != models.TripStatusActive {
			return nil, models.ErrTripNotJoinable
		}

		entry := trip.PassengerEntry(userID)
		if entry != nil && entry.State == models.PassengerStateConfirmed {
			return nil, models.ErrAlreadyPassenger
		}
		if trip.ConfirmedCount() >= trip.MaxPassengers {
			return nil, models.ErrTripFull
		}

		if entry != nil {
			entry.State = models.PassengerStateConfirmed
			entry.JoinedAt = time.Now()
		} else {
			trip.Passengers = append(trip.Passengers, models.Passenger{
				UserID:   userID,
				State:    models.PassengerStateConfirmed,
				JoinedAt: time.Now(),
			})
		}
		trip.RecomputeSeats()

		err = s.tripRepo.Save(ctx, trip)
		if err == nil {
			return trip, nil
		}
		if models.CodeOf(err) != models.CodeVersionConflict {
			return nil, err
		}
	}
	return nil, models.ErrVersionConflict
}

func (s *tripService) RecordJoinRequest(ctx context.Context, tripID primitive.ObjectID, userID string) error {
	for attempt := 0; attempt < utils.MaxSaveRetries; attempt++ {
		trip, err := s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		if trip.Status != models.TripStatusActive {
			return models.ErrTripNotJoinable
		}
		if entry := trip.PassengerEntry(userID); entry != nil {
			if entry.State == models.PassengerStateConfirmed {
				return models.ErrAlreadyPassenger
			}
			return nil
		}

		trip.Passengers = append(trip.Passengers, models.Passenger{
			UserID:   userID,
			State:    models.PassengerStatePending,
			JoinedAt: time.Now(),
		})
		trip.RecomputeSeats()

		err = s.tripRepo.Save(ctx, trip)
		if err == nil {
			return nil
		}
		if models.CodeOf(err) != models.CodeVersionConflict {
			return err
		}
	}
	return models.ErrVersionConflict
}

func (s *tripService) RejectPassenger(ctx context.Context, tripID primitive.ObjectID, userID string) error {
	for attempt := 0; attempt < utils.MaxSaveRetries; attempt++ {
		trip, err := s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return err
		}

		entry := trip.PassengerEntry(userID)
		if entry == nil || entry.State != models.PassengerStatePending {
			return nil
		}
		entry.State = models.PassengerStateRejected
		trip.RecomputeSeats()

		err = s.tripRepo.Save(ctx, trip)
		if err == nil {
			return nil
		}
		if models.CodeOf(err) != models.CodeVersionConflict {
			return err
		}
	}
	return models.ErrVersionConflict
}

func (s *tripService) AbandonTrip(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.Trip, error) {
	var trip *models.Trip
	for attempt := 0; attempt < utils.MaxSaveRetries; attempt++ {
		var err error
		trip, err = s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if trip.DriverID == userID {
			return nil, models.ErrCannotRemoveDriver
		}
		if trip.IsTerminal() {
			return nil, models.ErrInvalidTransition
		}
		if trip.PassengerEntry(userID) == nil {
			return nil, models.NewDomainError(models.CodeNotFound, "user is not a passenger on this trip")
		}

		kept := trip.Passengers[:0]
		for _, p := range trip.Passengers {
			if p.UserID != userID {
				kept = append(kept, p)
			}
		}
		trip.Passengers = kept
		trip.RecomputeSeats()

		err = s.tripRepo.Save(ctx, trip)
		if err == nil {
			break
		}
		if models.CodeOf(err) != models.CodeVersionConflict {
			return nil, err
		}
		if attempt == utils.MaxSaveRetries-1 {
			return nil, models.ErrVersionConflict
		}
	}

	if _, err := s.distributor.RemoveParticipant(ctx, tripID, userID); err != nil {
		if models.CodeOf(err) != models.CodeNotFound {
			s.logger.WithError(err).
				WithTripID(tripID.Hex()).
				WithUserID(userID).
				Warn("Failed to remove chat participant after abandon")
		}
	}

	if s.notifier != nil {
		s.notifier.SendToUser(trip.DriverID, "new_notification", map[string]interface{}{
			"kind":    "passenger_left",
			"trip_id": tripID.Hex(),
			"user_id": userID,
		})
	}
	return trip, nil
}

func (s *tripService) Sweep(ctx context.Context, now time.Time) error {
	due, err := s.tripRepo.GetDueForTransition(ctx, now)
	if err != nil {
		return err
	}

	for _, trip := range due {
		s.sweepTrip(ctx, trip)
	}
	return nil
}

// sweepTrip applies the automatic transition for one due trip. The
// conditional claim makes concurrent sweeps safe: only one claims.
func (s *tripService) sweepTrip(ctx context.Context, trip *models.Trip) {
	if trip.ConfirmedCount() == 0 {
		reason := "no confirmed passengers at departure time"
		claimed, err := s.tripRepo.ClaimExpiryCancellation(ctx, trip.ID, reason)
		if err != nil {
			s.logger.WithError(err).WithTripID(trip.ID.Hex()).Error("Sweep claim failed")
			return
		}
		if claimed {
			s.finalizeTerminal(ctx, trip, models.TripStatusCancelled, reason)
			s.logger.LogTripEvent(trip.ID.Hex(), "trip_auto_cancelled", nil)
			return
		}
		// A passenger was confirmed after the due-list snapshot (or the
		// trip moved); fall through to the departure claim.
	}

	claimed, err := s.tripRepo.ClaimTransition(ctx, trip.ID, models.TripStatusActive, models.TripStatusEnRoute, nil)
	if err != nil {
		s.logger.WithError(err).WithTripID(trip.ID.Hex()).Error("Sweep claim failed")
		return
	}
	if claimed {
		s.logger.LogTripEvent(trip.ID.Hex(), "trip_auto_departed", nil)
	}
}

func (s *tripService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(utils.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Sweep(ctx, now); err != nil {
				s.logger.WithError(err).Error("Lifecycle sweep failed")
			}
		}
	}
}
