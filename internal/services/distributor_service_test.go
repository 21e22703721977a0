package services

import (
	"context"
	"strings"
	"testing"

	"gopool/internal/models"
	"gopool/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newDistributorFixture() (*fakeChatRepo, *fakeNotifier, DistributorService) {
	chatRepo := newFakeChatRepo()
	notifier := &fakeNotifier{}
	svc := NewDistributorService(chatRepo, notifier, newTestLogger())
	return chatRepo, notifier, svc
}

func TestSendPersonalMessageCreatesChat(t *testing.T) {
	chatRepo, notifier, svc := newDistributorFixture()
	ctx := context.Background()

	result, err := svc.Send(ctx, "user-x", "hola", "user-y", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ChatTypePersonal, result.ChatType)

	chat, err := chatRepo.GetPersonalChatByKey(ctx, utils.CanonicalPairKey("user-x", "user-y"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), chat.MessageCount)
	assert.Equal(t, "hola", chat.LastMessage)
	assert.Equal(t, "user-x", chat.Messages[0].SenderID)

	// The staging area is cleared once the entry is durable.
	staged, err := chatRepo.ListPendingMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, staged)

	// Both parties hear about the new message.
	assert.Len(t, notifier.eventsFor("user-y", "message_received"), 1)
	assert.Len(t, notifier.eventsFor("user-x", "message_received"), 1)
}

func TestSendReusesChatRegardlessOfDirection(t *testing.T) {
	chatRepo, _, svc := newDistributorFixture()
	ctx := context.Background()

	first, err := svc.Send(ctx, "user-x", "hi", "user-y", nil)
	require.NoError(t, err)
	second, err := svc.Send(ctx, "user-y", "hi back", "user-x", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ChatID, second.ChatID)
	assert.Len(t, chatRepo.personalByKey, 1)

	chat, err := chatRepo.GetPersonalChatByKey(ctx, utils.CanonicalPairKey("user-y", "user-x"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), chat.MessageCount)
}

func TestSendRejectsInvalidTargets(t *testing.T) {
	_, _, svc := newDistributorFixture()
	ctx := context.Background()
	tripID := primitive.NewObjectID()

	_, err := svc.Send(ctx, "user-x", "hi", "", nil)
	assert.ErrorIs(t, err, models.ErrInvalidMessageTarget)

	_, err = svc.Send(ctx, "user-x", "hi", "user-y", &tripID)
	assert.ErrorIs(t, err, models.ErrInvalidMessageTarget)

	_, err = svc.Send(ctx, "user-x", "hi", "user-x", nil)
	assert.ErrorIs(t, err, models.ErrSelfReferential)
}

func TestSendRejectsOversizedContent(t *testing.T) {
	_, _, svc := newDistributorFixture()

	_, err := svc.Send(context.Background(), "user-x", strings.Repeat("a", utils.MaxMessageLength+1), "user-y", nil)
	assert.Equal(t, models.CodeValidationFailed, models.CodeOf(err))

	_, err = svc.Send(context.Background(), "user-x", "   ", "user-y", nil)
	assert.Equal(t, models.CodeValidationFailed, models.CodeOf(err))
}

func TestGroupMessageRequiresMembership(t *testing.T) {
	_, notifier, svc := newDistributorFixture()
	ctx := context.Background()
	tripID := primitive.NewObjectID()

	_, err := svc.CreateGroupChat(ctx, tripID, "driver-1")
	require.NoError(t, err)

	_, err = svc.Send(ctx, "outsider", "let me in", "", &tripID)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	_, err = svc.AddParticipant(ctx, tripID, "rider-1")
	require.NoError(t, err)

	result, err := svc.Send(ctx, "rider-1", "on my way", "", &tripID)
	require.NoError(t, err)
	assert.Equal(t, models.ChatTypeGroup, result.ChatType)
	assert.Len(t, notifier.eventsFor(tripID.Hex(), "message_received"), 1)
}

func TestClosedGroupChatRejectsMessages(t *testing.T) {
	_, notifier, svc := newDistributorFixture()
	ctx := context.Background()
	tripID := primitive.NewObjectID()

	_, err := svc.CreateGroupChat(ctx, tripID, "driver-1")
	require.NoError(t, err)
	require.NoError(t, svc.CloseGroupChat(ctx, tripID))

	_, err = svc.Send(ctx, "driver-1", "too late", "", &tripID)
	assert.ErrorIs(t, err, models.ErrChatClosed)
	assert.Len(t, notifier.eventsFor(tripID.Hex(), "trip_chat_closed"), 1)
}

func TestCreateGroupChatIsIdempotent(t *testing.T) {
	chatRepo, _, svc := newDistributorFixture()
	ctx := context.Background()
	tripID := primitive.NewObjectID()

	first, err := svc.CreateGroupChat(ctx, tripID, "driver-1")
	require.NoError(t, err)
	second, err := svc.CreateGroupChat(ctx, tripID, "driver-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, chatRepo.groupByTrip, 1)
}

func TestRemoveParticipantProtectsDriver(t *testing.T) {
	_, _, svc := newDistributorFixture()
	ctx := context.Background()
	tripID := primitive.NewObjectID()

	_, err := svc.CreateGroupChat(ctx, tripID, "driver-1")
	require.NoError(t, err)

	_, err = svc.RemoveParticipant(ctx, tripID, "driver-1")
	assert.ErrorIs(t, err, models.ErrCannotRemoveDriver)
}

func TestEditEntryAuthorization(t *testing.T) {
	_, notifier, svc := newDistributorFixture()
	ctx := context.Background()

	result, err := svc.Send(ctx, "user-x", "first draft", "user-y", nil)
	require.NoError(t, err)
	sourceID := result.Entry.SourceID

	err = svc.EditEntry(ctx, "user-y", sourceID, "hijacked")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	err = svc.EditEntry(ctx, "user-x", sourceID, "final draft")
	require.NoError(t, err)
	assert.NotEmpty(t, notifier.eventsFor("user-y", "message_edited"))

	chat, err := svc.GetPersonalChatWith(ctx, "user-x", "user-y")
	require.NoError(t, err)
	assert.Equal(t, "final draft", chat.Messages[0].Content)
	assert.True(t, chat.Messages[0].Edited)
}

func TestDeleteEntryThenEditFails(t *testing.T) {
	_, _, svc := newDistributorFixture()
	ctx := context.Background()

	result, err := svc.Send(ctx, "user-x", "oops", "user-y", nil)
	require.NoError(t, err)
	sourceID := result.Entry.SourceID

	require.NoError(t, svc.DeleteEntry(ctx, "user-x", sourceID))

	err = svc.EditEntry(ctx, "user-x", sourceID, "undelete attempt")
	assert.ErrorIs(t, err, models.ErrEntryNotFound)

	err = svc.DeleteEntry(ctx, "user-x", sourceID)
	assert.ErrorIs(t, err, models.ErrEntryNotFound)
}

func TestEditUnknownEntry(t *testing.T) {
	_, _, svc := newDistributorFixture()

	err := svc.EditEntry(context.Background(), "user-x", primitive.NewObjectID(), "ghost")
	assert.ErrorIs(t, err, models.ErrEntryNotFound)
}

func TestRecoverPendingRedistributes(t *testing.T) {
	chatRepo, _, svc := newDistributorFixture()
	ctx := context.Background()

	// Simulate a crash after staging but before distribution.
	staged := &models.PendingMessage{
		SenderID:      "user-x",
		Content:       "lost in the crash",
		RecipientUser: "user-y",
	}
	require.NoError(t, chatRepo.CreatePendingMessage(ctx, staged))

	require.NoError(t, svc.RecoverPending(ctx))

	chat, err := chatRepo.GetPersonalChatByKey(ctx, utils.CanonicalPairKey("user-x", "user-y"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), chat.MessageCount)

	remaining, err := chatRepo.ListPendingMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRecoverPendingSkipsAlreadyDistributed(t *testing.T) {
	chatRepo, _, svc := newDistributorFixture()
	ctx := context.Background()

	result, err := svc.Send(ctx, "user-x", "made it through", "user-y", nil)
	require.NoError(t, err)

	// Simulate a crash after the aggregate append but before the staging
	// delete: the staged copy survives with the same ID.
	sourceID := result.Entry.SourceID
	chatRepo.pending[sourceID] = &models.PendingMessage{
		ID:            sourceID,
		SenderID:      "user-x",
		Content:       "made it through",
		RecipientUser: "user-y",
	}

	require.NoError(t, svc.RecoverPending(ctx))

	// The entry appears exactly once and staging is clean.
	chat, err := chatRepo.GetPersonalChatByKey(ctx, utils.CanonicalPairKey("user-x", "user-y"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), chat.MessageCount)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, sourceID, chat.Messages[0].SourceID)

	remaining, err := chatRepo.ListPendingMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
