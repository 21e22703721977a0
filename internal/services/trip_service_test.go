package services

import (
	"context"
	"testing"
	"time"

	"gopool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tripFixture struct {
	tripRepo    *fakeTripRepo
	requestRepo *fakeRequestRepo
	chatRepo    *fakeChatRepo
	notifier    *fakeNotifier
	svc         TripService
}

func newTripFixture(users ...*models.User) *tripFixture {
	f := &tripFixture{
		tripRepo:    newFakeTripRepo(),
		requestRepo: newFakeRequestRepo(),
		chatRepo:    newFakeChatRepo(),
		notifier:    &fakeNotifier{},
	}
	log := newTestLogger()
	distributor := NewDistributorService(f.chatRepo, f.notifier, log)
	f.svc = NewTripService(f.tripRepo, f.requestRepo, newFakeUserRepo(users...), distributor, nil, f.notifier, log)
	return f
}

func validTripInput(departureIn time.Duration) *CreateTripInput {
	return &CreateTripInput{
		Origin:        models.Place{Name: "Campus", Point: models.GeoPoint{Type: "Point", Coordinates: []float64{-3.7, 40.4}}},
		Destination:   models.Place{Name: "Airport", Point: models.GeoPoint{Type: "Point", Coordinates: []float64{-3.5, 40.5}}},
		DepartureAt:   time.Now().Add(departureIn),
		VehiclePlate:  "ABC-1234",
		MaxPassengers: 3,
		PricePerSeat:  12.50,
		Publish:       true,
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.TripStatus
		to      models.TripStatus
		allowed bool
	}{
		{"draft to active", models.TripStatusDraft, models.TripStatusActive, true},
		{"draft to cancelled", models.TripStatusDraft, models.TripStatusCancelled, true},
		{"draft to en_route", models.TripStatusDraft, models.TripStatusEnRoute, false},
		{"active to en_route", models.TripStatusActive, models.TripStatusEnRoute, true},
		{"active to cancelled", models.TripStatusActive, models.TripStatusCancelled, true},
		{"active to completed", models.TripStatusActive, models.TripStatusCompleted, false},
		{"en_route to completed", models.TripStatusEnRoute, models.TripStatusCompleted, true},
		{"en_route to cancelled", models.TripStatusEnRoute, models.TripStatusCancelled, true},
		{"en_route to active", models.TripStatusEnRoute, models.TripStatusActive, false},
		{"completed is terminal", models.TripStatusCompleted, models.TripStatusActive, false},
		{"cancelled is terminal", models.TripStatusCancelled, models.TripStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCreateTripProvisionsGroupChat(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	trip, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusActive, trip.Status)

	chat, err := f.chatRepo.GetGroupChatByTripID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", chat.DriverID)
	assert.Equal(t, []string{"driver-1"}, chat.Participants)
}

func TestCreateTripRejectsScheduleConflict(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	_, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)

	// A second trip four hours later falls inside the six-hour window.
	_, err = f.svc.CreateTrip(ctx, "driver-1", validTripInput(28*time.Hour))
	assert.Equal(t, models.CodeScheduleConflict, models.CodeOf(err))

	// Ten hours later is clear of the window.
	_, err = f.svc.CreateTrip(ctx, "driver-1", validTripInput(34*time.Hour))
	assert.NoError(t, err)
}

func TestCreateTripRejectsPassengerScheduleConflict(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	ride, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPassenger(ctx, ride.ID, "rider-1")
	require.NoError(t, err)

	// A confirmed passenger cannot drive a trip of their own inside the
	// six-hour window, and the error names the trip they are booked on.
	_, err = f.svc.CreateTrip(ctx, "rider-1", validTripInput(26*time.Hour))
	require.Error(t, err)
	assert.Equal(t, models.CodeScheduleConflict, models.CodeOf(err))
	assert.Contains(t, err.Error(), ride.ID.Hex())

	// Clear of the window they may.
	_, err = f.svc.CreateTrip(ctx, "rider-1", validTripInput(34*time.Hour))
	assert.NoError(t, err)
}

func TestCreateTripRejectsPastDeparture(t *testing.T) {
	f := newTripFixture()

	_, err := f.svc.CreateTrip(context.Background(), "driver-1", validTripInput(-time.Hour))
	assert.Equal(t, models.CodeValidationFailed, models.CodeOf(err))
}

func TestTransitionDriverAuthorization(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	trip, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, trip.ID, "stranger", models.TripStatusCancelled, "")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestManualDepartureGuards(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	trip, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)

	// No confirmed passengers yet.
	_, err = f.svc.Transition(ctx, trip.ID, "driver-1", models.TripStatusEnRoute, "")
	assert.ErrorIs(t, err, models.ErrRequiresConfirmedPassenger)

	_, err = f.svc.ConfirmPassenger(ctx, trip.ID, "rider-1")
	require.NoError(t, err)

	// An unresolved join request still blocks departure.
	join := &models.Request{
		Kind:       models.RequestKindTripJoin,
		SenderID:   "rider-2",
		ReceiverID: "driver-1",
		TripID:     &trip.ID,
	}
	require.NoError(t, f.requestRepo.Create(context.Background(), join))

	_, err = f.svc.Transition(ctx, trip.ID, "driver-1", models.TripStatusEnRoute, "")
	assert.ErrorIs(t, err, models.ErrPendingRequestsExist)

	claimed, err := f.requestRepo.Claim(ctx, join.ID, "driver-1")
	require.NoError(t, err)
	require.True(t, claimed)
	resolved, err := f.requestRepo.Resolve(ctx, join.ID, "driver-1", models.RequestStateRejected, time.Now())
	require.NoError(t, err)
	require.True(t, resolved)

	updated, err := f.svc.Transition(ctx, trip.ID, "driver-1", models.TripStatusEnRoute, "")
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusEnRoute, updated.Status)
}

func TestInvalidTransitionRejected(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	trip, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, trip.ID, "driver-1", models.TripStatusCompleted, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCompleteTripClosesChat(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	trip, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPassenger(ctx, trip.ID, "rider-1")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, trip.ID, "driver-1", models.TripStatusEnRoute, "")
	require.NoError(t, err)

	done, err := f.svc.Transition(ctx, trip.ID, "driver-1", models.TripStatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	chat, err := f.chatRepo.GetGroupChatByTripID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChatStatusClosed, chat.Status)
}

func TestConfirmPassengerCapacity(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	input := validTripInput(24 * time.Hour)
	input.MaxPassengers = 1
	trip, err := f.svc.CreateTrip(ctx, "driver-1", input)
	require.NoError(t, err)

	confirmed, err := f.svc.ConfirmPassenger(ctx, trip.ID, "rider-1")
	require.NoError(t, err)
	assert.Equal(t, 0, confirmed.SeatsAvailable)

	_, err = f.svc.ConfirmPassenger(ctx, trip.ID, "rider-2")
	assert.ErrorIs(t, err, models.ErrTripFull)

	_, err = f.svc.ConfirmPassenger(ctx, trip.ID, "rider-1")
	assert.ErrorIs(t, err, models.ErrAlreadyPassenger)
}

func TestSweepCancelsTripWithoutConfirmedPassengers(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	// Seed an active trip already past its departure, with one passenger
	// whose join request was never accepted.
	trip := &models.Trip{
		DriverID:      "driver-1",
		DepartureAt:   time.Now().Add(-time.Minute),
		MaxPassengers: 3,
		Status:        models.TripStatusActive,
		Passengers: []models.Passenger{
			{UserID: "rider-1", State: models.PassengerStatePending, JoinedAt: time.Now()},
		},
	}
	require.NoError(t, f.tripRepo.Create(ctx, trip))

	require.NoError(t, f.svc.Sweep(ctx, time.Now()))

	swept, err := f.tripRepo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusCancelled, swept.Status)
	assert.NotEmpty(t, swept.CancellationReason)

	// The pending requester is told, durably and in realtime.
	inbox, _, err := f.requestRepo.GetByReceiver(ctx, "rider-1", nil)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.RequestKindTripCancelled, inbox[0].Kind)
	assert.Len(t, f.notifier.eventsFor("rider-1", "new_notification"), 1)
}

// lateConfirmTripRepo confirms a passenger after the due-list snapshot
// is taken, mimicking an accept racing the sweep.
type lateConfirmTripRepo struct {
	*fakeTripRepo
	userID string
}

func (r *lateConfirmTripRepo) GetDueForTransition(ctx context.Context, now time.Time) ([]*models.Trip, error) {
	due, err := r.fakeTripRepo.GetDueForTransition(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, trip := range due {
		stored := r.trips[trip.ID]
		stored.Passengers = append(stored.Passengers, models.Passenger{
			UserID:   r.userID,
			State:    models.PassengerStateConfirmed,
			JoinedAt: time.Now(),
		})
		stored.Version++
	}
	return due, nil
}

func TestSweepSparesTripConfirmedDuringSweep(t *testing.T) {
	tripRepo := &lateConfirmTripRepo{fakeTripRepo: newFakeTripRepo(), userID: "rider-9"}
	requestRepo := newFakeRequestRepo()
	chatRepo := newFakeChatRepo()
	notifier := &fakeNotifier{}
	log := newTestLogger()
	svc := NewTripService(tripRepo, requestRepo, newFakeUserRepo(), NewDistributorService(chatRepo, notifier, log), nil, notifier, log)
	ctx := context.Background()

	trip := &models.Trip{
		DriverID:      "driver-1",
		DepartureAt:   time.Now().Add(-time.Minute),
		MaxPassengers: 3,
		Status:        models.TripStatusActive,
	}
	require.NoError(t, tripRepo.Create(ctx, trip))

	require.NoError(t, svc.Sweep(ctx, time.Now()))

	// The passenger confirmed between snapshot and claim keeps the trip
	// alive; it departs instead of cancelling.
	swept, err := tripRepo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusEnRoute, swept.Status)
	assert.Empty(t, swept.CancellationReason)
}

func TestSweepDepartsTripWithConfirmedPassengers(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	trip := &models.Trip{
		DriverID:      "driver-1",
		DepartureAt:   time.Now().Add(-time.Minute),
		MaxPassengers: 3,
		Status:        models.TripStatusActive,
		Passengers: []models.Passenger{
			{UserID: "rider-1", State: models.PassengerStateConfirmed, JoinedAt: time.Now()},
		},
	}
	require.NoError(t, f.tripRepo.Create(ctx, trip))

	require.NoError(t, f.svc.Sweep(ctx, time.Now()))

	swept, err := f.tripRepo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusEnRoute, swept.Status)
}

func TestAbandonTrip(t *testing.T) {
	f := newTripFixture()
	ctx := context.Background()

	trip, err := f.svc.CreateTrip(ctx, "driver-1", validTripInput(24*time.Hour))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPassenger(ctx, trip.ID, "rider-1")
	require.NoError(t, err)

	after, err := f.svc.AbandonTrip(ctx, trip.ID, "rider-1")
	require.NoError(t, err)
	assert.Nil(t, after.PassengerEntry("rider-1"))
	assert.Equal(t, trip.MaxPassengers, after.SeatsAvailable)

	// The driver hears about it.
	assert.Len(t, f.notifier.eventsFor("driver-1", "new_notification"), 1)

	_, err = f.svc.AbandonTrip(ctx, trip.ID, "driver-1")
	assert.ErrorIs(t, err, models.ErrCannotRemoveDriver)
}
