package interfaces

import (
	"context"

	"gopool/internal/models"
	"gopool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatRepository interface {
	// Staging area
	CreatePendingMessage(ctx context.Context, msg *models.PendingMessage) error
	GetPendingMessage(ctx context.Context, id primitive.ObjectID) (*models.PendingMessage, error)
	DeletePendingMessage(ctx context.Context, id primitive.ObjectID) error
	ListPendingMessages(ctx context.Context) ([]*models.PendingMessage, error)

	// Personal chats
	CreatePersonalChat(ctx context.Context, chat *models.PersonalChat) error
	GetPersonalChatByKey(ctx context.Context, canonicalKey string) (*models.PersonalChat, error)
	GetPersonalChatByID(ctx context.Context, id primitive.ObjectID) (*models.PersonalChat, error)
	GetPersonalChatsByParticipant(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.PersonalChat, int64, error)
	AppendPersonalEntry(ctx context.Context, chatID primitive.ObjectID, entry *models.ChatEntry) error
	FindPersonalChatByEntry(ctx context.Context, sourceID primitive.ObjectID) (*models.PersonalChat, error)
	SetPersonalEntryContent(ctx context.Context, chatID, sourceID primitive.ObjectID, senderID, content string) error
	MarkPersonalEntryDeleted(ctx context.Context, chatID, sourceID primitive.ObjectID, senderID string) error

	// Group chats
	CreateGroupChat(ctx context.Context, chat *models.GroupChat) error
	GetGroupChatByTripID(ctx context.Context, tripID primitive.ObjectID) (*models.GroupChat, error)
	GetGroupChatsByParticipant(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.GroupChat, int64, error)
	AppendGroupEntry(ctx context.Context, tripID primitive.ObjectID, entry *models.ChatEntry) error
	FindGroupChatByEntry(ctx context.Context, sourceID primitive.ObjectID) (*models.GroupChat, error)
	SetGroupEntryContent(ctx context.Context, tripID, sourceID primitive.ObjectID, senderID, content string) error
	MarkGroupEntryDeleted(ctx context.Context, tripID, sourceID primitive.ObjectID, senderID string) error
	AddParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error)
	RemoveParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error)
	CloseGroupChat(ctx context.Context, tripID primitive.ObjectID) error
}
