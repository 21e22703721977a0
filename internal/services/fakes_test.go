package services

import (
	"context"
	"fmt"
	"time"

	"gopool/internal/models"
	"gopool/internal/utils"
	"gopool/pkg/logger"
	"gopool/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
	return log
}

// fanout records one realtime delivery for assertions.
type fanout struct {
	Target string // user or trip identifier
	ToTrip bool
	Event  string
	Data   map[string]interface{}
}

type fakeNotifier struct {
	events []fanout
}

func (n *fakeNotifier) SendToUser(userID, eventType string, data map[string]interface{}) {
	n.events = append(n.events, fanout{Target: userID, Event: eventType, Data: data})
}

func (n *fakeNotifier) SendToTrip(tripID, eventType string, data map[string]interface{}) {
	n.events = append(n.events, fanout{Target: tripID, ToTrip: true, Event: eventType, Data: data})
}

func (n *fakeNotifier) eventsFor(target, event string) []fanout {
	var matched []fanout
	for _, e := range n.events {
		if e.Target == target && e.Event == event {
			matched = append(matched, e)
		}
	}
	return matched
}

// fakeChatRepo is an in-memory stand-in for the Mongo chat store. It
// mirrors the conditional-update semantics the service relies on.
type fakeChatRepo struct {
	pending       map[primitive.ObjectID]*models.PendingMessage
	personalByKey map[string]*models.PersonalChat
	groupByTrip   map[primitive.ObjectID]*models.GroupChat
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		pending:       make(map[primitive.ObjectID]*models.PendingMessage),
		personalByKey: make(map[string]*models.PersonalChat),
		groupByTrip:   make(map[primitive.ObjectID]*models.GroupChat),
	}
}

func (r *fakeChatRepo) CreatePendingMessage(ctx context.Context, msg *models.PendingMessage) error {
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = time.Now()
	clone := *msg
	r.pending[msg.ID] = &clone
	return nil
}

func (r *fakeChatRepo) GetPendingMessage(ctx context.Context, id primitive.ObjectID) (*models.PendingMessage, error) {
	msg, ok := r.pending[id]
	if !ok {
		return nil, models.ErrMessageNotFound
	}
	return msg, nil
}

func (r *fakeChatRepo) DeletePendingMessage(ctx context.Context, id primitive.ObjectID) error {
	if _, ok := r.pending[id]; !ok {
		return models.ErrMessageNotFound
	}
	delete(r.pending, id)
	return nil
}

func (r *fakeChatRepo) ListPendingMessages(ctx context.Context) ([]*models.PendingMessage, error) {
	var staged []*models.PendingMessage
	for _, msg := range r.pending {
		staged = append(staged, msg)
	}
	return staged, nil
}

func (r *fakeChatRepo) CreatePersonalChat(ctx context.Context, chat *models.PersonalChat) error {
	if _, ok := r.personalByKey[chat.CanonicalKey]; ok {
		return models.ErrChatExists
	}
	chat.ID = primitive.NewObjectID()
	chat.CreatedAt = time.Now()
	r.personalByKey[chat.CanonicalKey] = chat
	return nil
}

func (r *fakeChatRepo) GetPersonalChatByKey(ctx context.Context, canonicalKey string) (*models.PersonalChat, error) {
	chat, ok := r.personalByKey[canonicalKey]
	if !ok {
		return nil, models.ErrChatNotFound
	}
	return chat, nil
}

func (r *fakeChatRepo) GetPersonalChatByID(ctx context.Context, id primitive.ObjectID) (*models.PersonalChat, error) {
	for _, chat := range r.personalByKey {
		if chat.ID == id {
			return chat, nil
		}
	}
	return nil, models.ErrChatNotFound
}

func (r *fakeChatRepo) GetPersonalChatsByParticipant(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.PersonalChat, int64, error) {
	var chats []*models.PersonalChat
	for _, chat := range r.personalByKey {
		if chat.HasParticipant(userID) {
			chats = append(chats, chat)
		}
	}
	return chats, int64(len(chats)), nil
}

func (r *fakeChatRepo) AppendPersonalEntry(ctx context.Context, chatID primitive.ObjectID, entry *models.ChatEntry) error {
	chat, err := r.GetPersonalChatByID(ctx, chatID)
	if err != nil {
		return err
	}
	chat.Messages = append(chat.Messages, *entry)
	chat.LastMessage = entry.Content
	now := entry.CreatedAt
	chat.LastMessageAt = &now
	chat.MessageCount++
	return nil
}

func (r *fakeChatRepo) FindPersonalChatByEntry(ctx context.Context, sourceID primitive.ObjectID) (*models.PersonalChat, error) {
	for _, chat := range r.personalByKey {
		for i := range chat.Messages {
			if chat.Messages[i].SourceID == sourceID {
				return chat, nil
			}
		}
	}
	return nil, models.ErrChatNotFound
}

func (r *fakeChatRepo) SetPersonalEntryContent(ctx context.Context, chatID, sourceID primitive.ObjectID, senderID, content string) error {
	chat, err := r.GetPersonalChatByID(ctx, chatID)
	if err != nil {
		return err
	}
	for i := range chat.Messages {
		if chat.Messages[i].SourceID == sourceID && chat.Messages[i].SenderID == senderID {
			chat.Messages[i].Content = content
			chat.Messages[i].Edited = true
			return nil
		}
	}
	return models.ErrEntryNotFound
}

func (r *fakeChatRepo) MarkPersonalEntryDeleted(ctx context.Context, chatID, sourceID primitive.ObjectID, senderID string) error {
	chat, err := r.GetPersonalChatByID(ctx, chatID)
	if err != nil {
		return err
	}
	for i := range chat.Messages {
		if chat.Messages[i].SourceID == sourceID && chat.Messages[i].SenderID == senderID {
			chat.Messages[i].Deleted = true
			return nil
		}
	}
	return models.ErrEntryNotFound
}

func (r *fakeChatRepo) CreateGroupChat(ctx context.Context, chat *models.GroupChat) error {
	if _, ok := r.groupByTrip[chat.TripID]; ok {
		return models.ErrChatExists
	}
	chat.ID = primitive.NewObjectID()
	chat.CreatedAt = time.Now()
	r.groupByTrip[chat.TripID] = chat
	return nil
}

func (r *fakeChatRepo) GetGroupChatByTripID(ctx context.Context, tripID primitive.ObjectID) (*models.GroupChat, error) {
	chat, ok := r.groupByTrip[tripID]
	if !ok {
		return nil, models.ErrGroupChatNotFound
	}
	return chat, nil
}

func (r *fakeChatRepo) GetGroupChatsByParticipant(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.GroupChat, int64, error) {
	var chats []*models.GroupChat
	for _, chat := range r.groupByTrip {
		if chat.HasParticipant(userID) {
			chats = append(chats, chat)
		}
	}
	return chats, int64(len(chats)), nil
}

func (r *fakeChatRepo) AppendGroupEntry(ctx context.Context, tripID primitive.ObjectID, entry *models.ChatEntry) error {
	chat, ok := r.groupByTrip[tripID]
	if !ok {
		return models.ErrGroupChatNotFound
	}
	if chat.Status == models.ChatStatusClosed {
		return models.ErrChatClosed
	}
	chat.Messages = append(chat.Messages, *entry)
	chat.LastMessage = entry.Content
	now := entry.CreatedAt
	chat.LastMessageAt = &now
	chat.MessageCount++
	return nil
}

func (r *fakeChatRepo) FindGroupChatByEntry(ctx context.Context, sourceID primitive.ObjectID) (*models.GroupChat, error) {
	for _, chat := range r.groupByTrip {
		for i := range chat.Messages {
			if chat.Messages[i].SourceID == sourceID {
				return chat, nil
			}
		}
	}
	return nil, models.ErrGroupChatNotFound
}

func (r *fakeChatRepo) SetGroupEntryContent(ctx context.Context, tripID, sourceID primitive.ObjectID, senderID, content string) error {
	chat, ok := r.groupByTrip[tripID]
	if !ok {
		return models.ErrGroupChatNotFound
	}
	for i := range chat.Messages {
		if chat.Messages[i].SourceID == sourceID && chat.Messages[i].SenderID == senderID {
			chat.Messages[i].Content = content
			chat.Messages[i].Edited = true
			return nil
		}
	}
	return models.ErrEntryNotFound
}

func (r *fakeChatRepo) MarkGroupEntryDeleted(ctx context.Context, tripID, sourceID primitive.ObjectID, senderID string) error {
	chat, ok := r.groupByTrip[tripID]
	if !ok {
		return models.ErrGroupChatNotFound
	}
	for i := range chat.Messages {
		if chat.Messages[i].SourceID == sourceID && chat.Messages[i].SenderID == senderID {
			chat.Messages[i].Deleted = true
			return nil
		}
	}
	return models.ErrEntryNotFound
}

func (r *fakeChatRepo) AddParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error) {
	chat, ok := r.groupByTrip[tripID]
	if !ok {
		return nil, models.ErrGroupChatNotFound
	}
	if !chat.HasParticipant(userID) {
		chat.Participants = append(chat.Participants, userID)
	}
	return chat, nil
}

func (r *fakeChatRepo) RemoveParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error) {
	chat, ok := r.groupByTrip[tripID]
	if !ok {
		return nil, models.ErrGroupChatNotFound
	}
	kept := chat.Participants[:0]
	for _, p := range chat.Participants {
		if p != userID {
			kept = append(kept, p)
		}
	}
	chat.Participants = kept
	return chat, nil
}

func (r *fakeChatRepo) CloseGroupChat(ctx context.Context, tripID primitive.ObjectID) error {
	chat, ok := r.groupByTrip[tripID]
	if !ok {
		return models.ErrGroupChatNotFound
	}
	now := time.Now()
	chat.Status = models.ChatStatusClosed
	chat.ClosedAt = &now
	return nil
}

// fakeTripRepo mirrors the optimistic-concurrency contract of the Mongo
// trip store.
type fakeTripRepo struct {
	trips map[primitive.ObjectID]*models.Trip
}

func newFakeTripRepo() *fakeTripRepo {
	return &fakeTripRepo{trips: make(map[primitive.ObjectID]*models.Trip)}
}

func cloneTrip(trip *models.Trip) *models.Trip {
	clone := *trip
	clone.Passengers = append([]models.Passenger(nil), trip.Passengers...)
	return &clone
}

func (r *fakeTripRepo) Create(ctx context.Context, trip *models.Trip) error {
	trip.ID = primitive.NewObjectID()
	trip.CreatedAt = time.Now()
	trip.Version = 1
	r.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (r *fakeTripRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	trip, ok := r.trips[id]
	if !ok {
		return nil, models.ErrTripNotFound
	}
	return cloneTrip(trip), nil
}

func (r *fakeTripRepo) GetByDriver(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	var trips []*models.Trip
	for _, trip := range r.trips {
		if trip.DriverID == driverID {
			trips = append(trips, cloneTrip(trip))
		}
	}
	return trips, int64(len(trips)), nil
}

func (r *fakeTripRepo) Save(ctx context.Context, trip *models.Trip) error {
	stored, ok := r.trips[trip.ID]
	if !ok {
		return models.ErrTripNotFound
	}
	if stored.Version != trip.Version {
		return models.ErrVersionConflict
	}
	trip.Version++
	trip.UpdatedAt = time.Now()
	r.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (r *fakeTripRepo) ClaimTransition(ctx context.Context, id primitive.ObjectID, from, to models.TripStatus, updates map[string]interface{}) (bool, error) {
	trip, ok := r.trips[id]
	if !ok {
		return false, models.ErrTripNotFound
	}
	if trip.Status != from {
		return false, nil
	}
	trip.Status = to
	trip.Version++
	if reason, ok := updates["cancellation_reason"].(string); ok {
		trip.CancellationReason = reason
	}
	if completedAt, ok := updates["completed_at"].(time.Time); ok {
		trip.CompletedAt = &completedAt
	}
	return true, nil
}

func (r *fakeTripRepo) ClaimExpiryCancellation(ctx context.Context, id primitive.ObjectID, reason string) (bool, error) {
	trip, ok := r.trips[id]
	if !ok {
		return false, models.ErrTripNotFound
	}
	if trip.Status != models.TripStatusActive || trip.ConfirmedCount() > 0 {
		return false, nil
	}
	trip.Status = models.TripStatusCancelled
	trip.CancellationReason = reason
	trip.Version++
	return true, nil
}

func (r *fakeTripRepo) GetDueForTransition(ctx context.Context, now time.Time) ([]*models.Trip, error) {
	var due []*models.Trip
	for _, trip := range r.trips {
		if trip.Status == models.TripStatusActive && !trip.DepartureAt.After(now) {
			due = append(due, cloneTrip(trip))
		}
	}
	return due, nil
}

func (r *fakeTripRepo) GetUserTripsBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.Trip, error) {
	var matched []*models.Trip
	for _, trip := range r.trips {
		if trip.IsTerminal() {
			continue
		}
		involved := trip.DriverID == userID
		if entry := trip.PassengerEntry(userID); entry != nil && entry.State != models.PassengerStateRejected {
			involved = true
		}
		if !involved {
			continue
		}
		inWindow := func(stamp time.Time) bool {
			return !stamp.Before(from) && !stamp.After(to)
		}
		if inWindow(trip.DepartureAt) || (trip.ReturnAt != nil && inWindow(*trip.ReturnAt)) {
			matched = append(matched, cloneTrip(trip))
		}
	}
	return matched, nil
}

func (r *fakeTripRepo) SearchNearOrigin(ctx context.Context, lat, lng, radiusKM float64, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	var trips []*models.Trip
	for _, trip := range r.trips {
		if trip.Status == models.TripStatusActive {
			trips = append(trips, cloneTrip(trip))
		}
	}
	return trips, int64(len(trips)), nil
}

type fakeRequestRepo struct {
	requests map[primitive.ObjectID]*models.Request
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[primitive.ObjectID]*models.Request)}
}

func (r *fakeRequestRepo) Create(ctx context.Context, req *models.Request) error {
	for _, existing := range r.requests {
		if existing.State != models.RequestStatePending && existing.State != models.RequestStateProcessing {
			continue
		}
		sameTrip := (existing.TripID == nil) == (req.TripID == nil)
		if existing.TripID != nil && req.TripID != nil {
			sameTrip = *existing.TripID == *req.TripID
		}
		if existing.SenderID == req.SenderID && existing.ReceiverID == req.ReceiverID &&
			existing.Kind == req.Kind && sameTrip {
			return models.ErrDuplicatePending
		}
	}
	req.ID = primitive.NewObjectID()
	req.State = models.RequestStatePending
	req.CreatedAt = time.Now()
	r.requests[req.ID] = req
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, models.ErrRequestNotFound
	}
	clone := *req
	return &clone, nil
}

func (r *fakeRequestRepo) GetByReceiver(ctx context.Context, receiverID string, params *utils.PaginationParams) ([]*models.Request, int64, error) {
	var matched []*models.Request
	for _, req := range r.requests {
		if req.ReceiverID == receiverID {
			matched = append(matched, req)
		}
	}
	return matched, int64(len(matched)), nil
}

func (r *fakeRequestRepo) Claim(ctx context.Context, id primitive.ObjectID, receiverID string) (bool, error) {
	req, ok := r.requests[id]
	if !ok || req.ReceiverID != receiverID || req.State != models.RequestStatePending {
		return false, nil
	}
	req.State = models.RequestStateProcessing
	return true, nil
}

func (r *fakeRequestRepo) Release(ctx context.Context, id primitive.ObjectID, receiverID string) error {
	req, ok := r.requests[id]
	if ok && req.ReceiverID == receiverID && req.State == models.RequestStateProcessing {
		req.State = models.RequestStatePending
	}
	return nil
}

func (r *fakeRequestRepo) Resolve(ctx context.Context, id primitive.ObjectID, receiverID string, state models.RequestState, resolvedAt time.Time) (bool, error) {
	req, ok := r.requests[id]
	if !ok || req.ReceiverID != receiverID || req.State != models.RequestStateProcessing {
		return false, nil
	}
	req.State = state
	req.ResolvedAt = &resolvedAt
	return true, nil
}

func (r *fakeRequestRepo) MarkRead(ctx context.Context, id primitive.ObjectID, receiverID string) (bool, error) {
	req, ok := r.requests[id]
	if !ok || req.ReceiverID != receiverID || req.State != models.RequestStatePending {
		return false, nil
	}
	now := time.Now()
	req.State = models.RequestStateRead
	req.ResolvedAt = &now
	return true, nil
}

func (r *fakeRequestRepo) CountPendingForTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	var count int64
	for _, req := range r.requests {
		if req.TripID != nil && *req.TripID == tripID &&
			req.Kind == models.RequestKindTripJoin &&
			(req.State == models.RequestStatePending || req.State == models.RequestStateProcessing) {
			count++
		}
	}
	return count, nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if user, ok := r.users[identifier]; ok {
		return user, nil
	}
	for _, user := range r.users {
		if user.Email == identifier || user.Phone == identifier {
			return user, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (r *fakeUserRepo) GetByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	var matched []*models.User
	for _, user := range r.users {
		if user.Role == role {
			matched = append(matched, user)
		}
	}
	return matched, nil
}

func (r *fakeUserRepo) UpdateWalletBalance(ctx context.Context, userID string, newBalance float64) error {
	user, ok := r.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	user.WalletBalance = newBalance
	return nil
}

func (r *fakeUserRepo) DebitWallet(ctx context.Context, userID string, amount float64) error {
	user, ok := r.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if user.WalletBalance < amount {
		return models.ErrInsufficientFunds
	}
	user.WalletBalance -= amount
	return nil
}

func (r *fakeUserRepo) CreditWallet(ctx context.Context, userID string, amount float64) error {
	user, ok := r.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	user.WalletBalance += amount
	return nil
}

func (r *fakeUserRepo) GetCards(ctx context.Context, userID string) ([]*models.Card, error) {
	return nil, nil
}

func (r *fakeUserRepo) UpdateCardLimit(ctx context.Context, userID, cardNumber string, newLimit float64) error {
	return models.ErrCardNotFound
}

type fakeFriendshipRepo struct {
	pairs map[string]*models.Friendship
}

func newFakeFriendshipRepo() *fakeFriendshipRepo {
	return &fakeFriendshipRepo{pairs: make(map[string]*models.Friendship)}
}

func (r *fakeFriendshipRepo) Create(ctx context.Context, friendship *models.Friendship) error {
	key := utils.CanonicalPairKey(friendship.UserLow, friendship.UserHigh)
	if _, ok := r.pairs[key]; ok {
		return models.ErrFriendshipExists
	}
	friendship.CreatedAt = time.Now()
	r.pairs[key] = friendship
	return nil
}

func (r *fakeFriendshipRepo) Exists(ctx context.Context, userA, userB string) (bool, error) {
	_, ok := r.pairs[utils.CanonicalPairKey(userA, userB)]
	return ok, nil
}

func (r *fakeFriendshipRepo) GetByUser(ctx context.Context, userID string) ([]*models.Friendship, error) {
	var matched []*models.Friendship
	for _, f := range r.pairs {
		if f.Includes(userID) {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func (r *fakeFriendshipRepo) SetBlocked(ctx context.Context, userA, userB string, blocked bool) error {
	f, ok := r.pairs[utils.CanonicalPairKey(userA, userB)]
	if !ok {
		return models.NewDomainError(models.CodeNotFound, "friendship not found")
	}
	f.Blocked = blocked
	return nil
}

type fakeLedgerRepo struct {
	entries []*models.LedgerEntry
}

func (r *fakeLedgerRepo) Record(ctx context.Context, entry *models.LedgerEntry) error {
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeLedgerRepo) GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	var matched []*models.LedgerEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func (r *fakeLedgerRepo) GetByTrip(ctx context.Context, tripID string) ([]*models.LedgerEntry, error) {
	var matched []*models.LedgerEntry
	for _, e := range r.entries {
		if e.TripID == tripID {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// fakePaymentProvider stands in for the card gateway.
type fakePaymentProvider struct {
	fail     bool
	payments int
}

func (p *fakePaymentProvider) ProcessPayment(ctx context.Context, request *payment.PaymentRequest) (*payment.PaymentResponse, error) {
	if p.fail {
		return nil, fmt.Errorf("card declined")
	}
	p.payments++
	return &payment.PaymentResponse{
		TransactionID: fmt.Sprintf("txn_%d", p.payments),
		Status:        "succeeded",
		Amount:        request.Amount,
		Currency:      request.Currency,
	}, nil
}

func (p *fakePaymentProvider) RefundPayment(ctx context.Context, request *payment.RefundRequest) (*payment.RefundResponse, error) {
	return &payment.RefundResponse{RefundID: "re_1", Status: "succeeded"}, nil
}
