package services

import (
	"context"
	"testing"
	"time"

	"gopool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type requestFixture struct {
	requestRepo    *fakeRequestRepo
	friendshipRepo *fakeFriendshipRepo
	userRepo       *fakeUserRepo
	tripRepo       *fakeTripRepo
	chatRepo       *fakeChatRepo
	ledgerRepo     *fakeLedgerRepo
	notifier       *fakeNotifier
	tripSvc        TripService
	svc            RequestService
}

func newRequestFixture(users ...*models.User) *requestFixture {
	f := &requestFixture{
		requestRepo:    newFakeRequestRepo(),
		friendshipRepo: newFakeFriendshipRepo(),
		userRepo:       newFakeUserRepo(users...),
		tripRepo:       newFakeTripRepo(),
		chatRepo:       newFakeChatRepo(),
		ledgerRepo:     &fakeLedgerRepo{},
		notifier:       &fakeNotifier{},
	}
	log := newTestLogger()
	distributor := NewDistributorService(f.chatRepo, f.notifier, log)
	paymentSvc := NewPaymentService(f.userRepo, f.ledgerRepo, &fakePaymentProvider{}, log)
	f.tripSvc = NewTripService(f.tripRepo, f.requestRepo, f.userRepo, distributor, nil, f.notifier, log)
	f.svc = NewRequestService(f.requestRepo, f.friendshipRepo, f.userRepo, f.tripSvc, paymentSvc, distributor, f.notifier, log)
	return f
}

func testUser(id string, balance float64) *models.User {
	return &models.User{ID: id, Email: id + "@example.com", Role: models.UserRoleRider, WalletBalance: balance, Currency: "USD"}
}

func TestFriendRequestLifecycle(t *testing.T) {
	f := newRequestFixture(testUser("alice", 0), testUser("bob", 0))
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, "alice", &CreateRequestInput{
		Kind:       models.RequestKindFriend,
		ReceiverID: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatePending, req.State)
	assert.Len(t, f.notifier.eventsFor("bob", "new_notification"), 1)

	// A second identical pending request is rejected.
	_, err = f.svc.CreateRequest(ctx, "alice", &CreateRequestInput{
		Kind:       models.RequestKindFriend,
		ReceiverID: "bob",
	})
	assert.ErrorIs(t, err, models.ErrDuplicatePending)

	result, err := f.svc.Respond(ctx, req.ID, "bob", models.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateAccepted, result.Request.State)
	require.NotNil(t, result.Friendship)

	exists, err := f.friendshipRepo.Exists(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	// The sender hears about the resolution.
	assert.Len(t, f.notifier.eventsFor("alice", "new_notification"), 1)

	// Once friends, a fresh request is pointless.
	_, err = f.svc.CreateRequest(ctx, "alice", &CreateRequestInput{
		Kind:       models.RequestKindFriend,
		ReceiverID: "bob",
	})
	assert.ErrorIs(t, err, models.ErrFriendshipExists)
}

func TestSelfReferentialRequestRejected(t *testing.T) {
	f := newRequestFixture(testUser("alice", 0))

	_, err := f.svc.CreateRequest(context.Background(), "alice", &CreateRequestInput{
		Kind:       models.RequestKindFriend,
		ReceiverID: "alice",
	})
	assert.ErrorIs(t, err, models.ErrSelfReferential)
}

func TestRejectLeavesNoSideEffects(t *testing.T) {
	f := newRequestFixture(testUser("alice", 0), testUser("bob", 0))
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, "alice", &CreateRequestInput{
		Kind:       models.RequestKindFriend,
		ReceiverID: "bob",
	})
	require.NoError(t, err)

	result, err := f.svc.Respond(ctx, req.ID, "bob", models.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateRejected, result.Request.State)

	exists, err := f.friendshipRepo.Exists(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, exists)

	// Rejection is final; a second response fails.
	_, err = f.svc.Respond(ctx, req.ID, "bob", models.DecisionAccept)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestRespondRequiresReceiver(t *testing.T) {
	f := newRequestFixture(testUser("alice", 0), testUser("bob", 0))
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, "alice", &CreateRequestInput{
		Kind:       models.RequestKindFriend,
		ReceiverID: "bob",
	})
	require.NoError(t, err)

	// Neither the sender nor a bystander can respond; the request is
	// invisible to them.
	_, err = f.svc.Respond(ctx, req.ID, "alice", models.DecisionAccept)
	assert.ErrorIs(t, err, models.ErrRequestNotFound)
}

func (f *requestFixture) createActiveTrip(t *testing.T, driverID string, price float64, seats int) *models.Trip {
	t.Helper()
	input := validTripInput(24 * time.Hour)
	input.PricePerSeat = price
	input.MaxPassengers = seats
	trip, err := f.tripSvc.CreateTrip(context.Background(), driverID, input)
	require.NoError(t, err)
	return trip
}

func TestTripJoinAcceptSettlesAndConfirms(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 50))
	ctx := context.Background()

	trip := f.createActiveTrip(t, "driver", 12.50, 3)

	req, err := f.svc.CreateRequest(ctx, "rider", &CreateRequestInput{
		Kind:       models.RequestKindTripJoin,
		ReceiverID: "driver",
		TripID:     &trip.ID,
	})
	require.NoError(t, err)

	// Creating the request already parks a pending passenger entry.
	pendingTrip, err := f.tripRepo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	require.NotNil(t, pendingTrip.PassengerEntry("rider"))
	assert.Equal(t, models.PassengerStatePending, pendingTrip.PassengerEntry("rider").State)

	result, err := f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TransactionID)
	require.NotNil(t, result.Trip)
	assert.Equal(t, models.PassengerStateConfirmed, result.Trip.PassengerEntry("rider").State)
	assert.Equal(t, 2, result.Trip.SeatsAvailable)

	// Wallet moved from rider to driver, both sides in the ledger.
	rider, _ := f.userRepo.GetByID(ctx, "rider")
	driver, _ := f.userRepo.GetByID(ctx, "driver")
	assert.InDelta(t, 37.50, rider.WalletBalance, 0.001)
	assert.InDelta(t, 12.50, driver.WalletBalance, 0.001)
	assert.Len(t, f.ledgerRepo.entries, 2)

	// The confirmed rider is in the trip chat.
	chat, err := f.chatRepo.GetGroupChatByTripID(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, chat.HasParticipant("rider"))
}

func TestTripJoinPaymentFailureKeepsRequestPending(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 5))
	ctx := context.Background()

	trip := f.createActiveTrip(t, "driver", 12.50, 3)

	req, err := f.svc.CreateRequest(ctx, "rider", &CreateRequestInput{
		Kind:       models.RequestKindTripJoin,
		ReceiverID: "driver",
		TripID:     &trip.ID,
	})
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// Nothing moved: the request stays pending, no seat was granted and
	// no money changed hands.
	reloaded, err := f.requestRepo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatePending, reloaded.State)

	after, err := f.tripRepo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.ConfirmedCount())
	assert.Empty(t, f.ledgerRepo.entries)

	// A top-up makes the same request acceptable.
	require.NoError(t, f.userRepo.CreditWallet(ctx, "rider", 20))
	result, err := f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateAccepted, result.Request.State)
}

func TestConcurrentAcceptSettlesOnce(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 50))
	ctx := context.Background()

	trip := f.createActiveTrip(t, "driver", 12.50, 3)

	req, err := f.svc.CreateRequest(ctx, "rider", &CreateRequestInput{
		Kind:       models.RequestKindTripJoin,
		ReceiverID: "driver",
		TripID:     &trip.ID,
	})
	require.NoError(t, err)

	// Another responder already holds the claim; this accept must not
	// touch the wallet.
	claimed, err := f.requestRepo.Claim(ctx, req.ID, "driver")
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	assert.Empty(t, f.ledgerRepo.entries)

	// Once the claim is released, a single accept settles exactly once.
	require.NoError(t, f.requestRepo.Release(ctx, req.ID, "driver"))
	result, err := f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateAccepted, result.Request.State)
	assert.Len(t, f.ledgerRepo.entries, 2)

	_, err = f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	assert.Len(t, f.ledgerRepo.entries, 2)

	rider, _ := f.userRepo.GetByID(ctx, "rider")
	assert.InDelta(t, 37.50, rider.WalletBalance, 0.001)
}

func TestTripJoinRejectReleasesPendingSeat(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 50))
	ctx := context.Background()

	trip := f.createActiveTrip(t, "driver", 0, 3)

	req, err := f.svc.CreateRequest(ctx, "rider", &CreateRequestInput{
		Kind:       models.RequestKindTripJoin,
		ReceiverID: "driver",
		TripID:     &trip.ID,
	})
	require.NoError(t, err)

	result, err := f.svc.Respond(ctx, req.ID, "driver", models.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateRejected, result.Request.State)

	after, err := f.tripRepo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	entry := after.PassengerEntry("rider")
	require.NotNil(t, entry)
	assert.Equal(t, models.PassengerStateRejected, entry.State)
	assert.Equal(t, 0, after.ConfirmedCount())
}

func TestTripJoinFullTripRejectedAtCreate(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 50))
	ctx := context.Background()

	trip := f.createActiveTrip(t, "driver", 0, 1)
	_, err := f.tripSvc.ConfirmPassenger(ctx, trip.ID, "someone-else")
	require.NoError(t, err)

	_, err = f.svc.CreateRequest(ctx, "rider", &CreateRequestInput{
		Kind:       models.RequestKindTripJoin,
		ReceiverID: "driver",
		TripID:     &trip.ID,
	})
	assert.ErrorIs(t, err, models.ErrTripFull)
}

func TestTripJoinAcceptRevalidatesCapacity(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 50))
	ctx := context.Background()

	trip := f.createActiveTrip(t, "driver", 0, 1)

	req, err := f.svc.CreateRequest(ctx, "rider", &CreateRequestInput{
		Kind:       models.RequestKindTripJoin,
		ReceiverID: "driver",
		TripID:     &trip.ID,
	})
	require.NoError(t, err)

	// The last seat goes to someone else between create and accept.
	_, err = f.tripSvc.ConfirmPassenger(ctx, trip.ID, "someone-else")
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	assert.ErrorIs(t, err, models.ErrTripFull)
}

func TestTripJoinChatSelfHeal(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 50))
	ctx := context.Background()

	trip := f.createActiveTrip(t, "driver", 0, 3)

	// Simulate a lost chat provisioning.
	delete(f.chatRepo.groupByTrip, trip.ID)

	req, err := f.svc.CreateRequest(ctx, "rider", &CreateRequestInput{
		Kind:       models.RequestKindTripJoin,
		ReceiverID: "driver",
		TripID:     &trip.ID,
	})
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, req.ID, "driver", models.DecisionAccept)
	require.NoError(t, err)

	chat, err := f.chatRepo.GetGroupChatByTripID(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, chat.HasParticipant("rider"))
	assert.True(t, chat.HasParticipant("driver"))
}

func TestInformationalNotificationsOnlySupportRead(t *testing.T) {
	f := newRequestFixture(testUser("driver", 0), testUser("rider", 0))
	ctx := context.Background()

	notice := &models.Request{
		Kind:       models.RequestKindTripCancelled,
		SenderID:   "driver",
		ReceiverID: "rider",
	}
	require.NoError(t, f.requestRepo.Create(ctx, notice))

	_, err := f.svc.Respond(ctx, notice.ID, "rider", models.DecisionAccept)
	assert.Equal(t, models.CodeValidationFailed, models.CodeOf(err))

	require.NoError(t, f.svc.MarkRead(ctx, notice.ID, "rider"))

	// Reading twice surfaces the resolved state.
	err = f.svc.MarkRead(ctx, notice.ID, "rider")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}
