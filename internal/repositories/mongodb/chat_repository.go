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
	"go.mongodb.org/mongo-driver/mongo/options"
)

type chatRepository struct {
	personalCollection *mongo.Collection
	groupCollection    *mongo.Collection
	pendingCollection  *mongo.Collection
	cache              services.CacheService
}

func NewChatRepository(db *mongo.Database, cache services.CacheService) interfaces.ChatRepository {
	return &chatRepository{
		personalCollection: db.Collection("personal_chats"),
		groupCollection:    db.Collection("group_chats"),
		pendingCollection:  db.Collection("pending_messages"),
		cache:              cache,
	}
}

// Staging area

func (r *chatRepository) CreatePendingMessage(ctx context.Context, msg *models.PendingMessage) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	msg.CreatedAt = time.Now()

	if _, err := r.pendingCollection.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to stage message: %w", err)
	}
	return nil
}

func (r *chatRepository) GetPendingMessage(ctx context.Context, id primitive.ObjectID) (*models.PendingMessage, error) {
	var msg models.PendingMessage
	err := r.pendingCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get pending message: %w", err)
	}
	return &msg, nil
}

func (r *chatRepository) DeletePendingMessage(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.pendingCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete pending message: %w", err)
	}
	return nil
}

func (r *chatRepository) ListPendingMessages(ctx context.Context) ([]*models.PendingMessage, error) {
	cursor, err := r.pendingCollection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.PendingMessage
	for cursor.Next(ctx) {
		var msg models.PendingMessage
		if err := cursor.Decode(&msg); err != nil {
			return nil, fmt.Errorf("failed to decode pending message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// Personal chats

func (r *chatRepository) CreatePersonalChat(ctx context.Context, chat *models.PersonalChat) error {
	chat.ID = primitive.NewObjectID()
	chat.CreatedAt = time.Now()
	chat.UpdatedAt = time.Now()
	if chat.Messages == nil {
		chat.Messages = []models.ChatEntry{}
	}

	_, err := r.personalCollection.InsertOne(ctx, chat)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Canonical-key race: another sender created the pair's chat
			// first. Caller re-fetches by key.
			return models.ErrChatExists
		}
		return fmt.Errorf("failed to create personal chat: %w", err)
	}

	r.cachePersonal(ctx, chat)
	return nil
}

func (r *chatRepository) GetPersonalChatByKey(ctx context.Context, canonicalKey string) (*models.PersonalChat, error) {
	cacheKey := fmt.Sprintf("personal_chat_key:%s", canonicalKey)
	if r.cache != nil {
		var chat models.PersonalChat
		if err := r.cache.Get(ctx, cacheKey, &chat); err == nil {
			return &chat, nil
		}
	}

	var chat models.PersonalChat
	err := r.personalCollection.FindOne(ctx, bson.M{"canonical_key": canonicalKey}).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get personal chat by key: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, &chat, 15*time.Minute)
	}
	return &chat, nil
}

func (r *chatRepository) GetPersonalChatByID(ctx context.Context, id primitive.ObjectID) (*models.PersonalChat, error) {
	var chat models.PersonalChat
	err := r.personalCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get personal chat: %w", err)
	}
	return &chat, nil
}

func (r *chatRepository) GetPersonalChatsByParticipant(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.PersonalChat, int64, error) {
	filter := bson.M{
		"deleted": false,
		"$or": []bson.M{
			{"user_low": userID},
			{"user_high": userID},
		},
	}

	total, err := r.personalCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count personal chats: %w", err)
	}

	opts := params.GetSortOptions()
	if params.Sort == "" || params.Sort == "created_at" {
		opts.SetSort(bson.D{{Key: "updated_at", Value: -1}})
	}

	cursor, err := r.personalCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find personal chats: %w", err)
	}
	defer cursor.Close(ctx)

	var chats []*models.PersonalChat
	for cursor.Next(ctx) {
		var chat models.PersonalChat
		if err := cursor.Decode(&chat); err != nil {
			return nil, 0, fmt.Errorf("failed to decode personal chat: %w", err)
		}
		chats = append(chats, &chat)
	}
	return chats, total, nil
}

// AppendPersonalEntry pushes the entry and refreshes the summary fields
// in one atomic update, so message_count can never disagree with the log.
func (r *chatRepository) AppendPersonalEntry(ctx context.Context, chatID primitive.ObjectID, entry *models.ChatEntry) error {
	now := time.Now()
	result, err := r.personalCollection.UpdateOne(
		ctx,
		bson.M{"_id": chatID},
		bson.M{
			"$push": bson.M{"messages": entry},
			"$inc":  bson.M{"message_count": 1},
			"$set": bson.M{
				"last_message":    entry.Content,
				"last_message_at": entry.CreatedAt,
				"updated_at":      now,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to append personal entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrChatNotFound
	}

	r.invalidatePersonal(ctx, chatID)
	return nil
}

func (r *chatRepository) FindPersonalChatByEntry(ctx context.Context, sourceID primitive.ObjectID) (*models.PersonalChat, error) {
	var chat models.PersonalChat
	err := r.personalCollection.FindOne(ctx, bson.M{"messages.source_id": sourceID}).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find chat by entry: %w", err)
	}
	return &chat, nil
}

func (r *chatRepository) SetPersonalEntryContent(ctx context.Context, chatID, sourceID primitive.ObjectID, senderID, content string) error {
	result, err := r.personalCollection.UpdateOne(
		ctx,
		bson.M{
			"_id": chatID,
			"messages": bson.M{"$elemMatch": bson.M{
				"source_id": sourceID,
				"sender_id": senderID,
				"deleted":   false,
			}},
		},
		bson.M{"$set": bson.M{
			"messages.$.content": content,
			"messages.$.edited":  true,
			"updated_at":         time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to edit personal entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrEntryNotFound
	}

	r.invalidatePersonal(ctx, chatID)
	return nil
}

func (r *chatRepository) MarkPersonalEntryDeleted(ctx context.Context, chatID, sourceID primitive.ObjectID, senderID string) error {
	result, err := r.personalCollection.UpdateOne(
		ctx,
		bson.M{
			"_id": chatID,
			"messages": bson.M{"$elemMatch": bson.M{
				"source_id": sourceID,
				"sender_id": senderID,
				"deleted":   false,
			}},
		},
		bson.M{"$set": bson.M{
			"messages.$.deleted": true,
			"updated_at":         time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to delete personal entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrEntryNotFound
	}

	r.invalidatePersonal(ctx, chatID)
	return nil
}

// Group chats

func (r *chatRepository) CreateGroupChat(ctx context.Context, chat *models.GroupChat) error {
	chat.ID = primitive.NewObjectID()
	chat.CreatedAt = time.Now()
	chat.UpdatedAt = time.Now()
	if chat.Messages == nil {
		chat.Messages = []models.ChatEntry{}
	}
	if chat.Status == "" {
		chat.Status = models.ChatStatusActive
	}

	_, err := r.groupCollection.InsertOne(ctx, chat)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrChatExists
		}
		return fmt.Errorf("failed to create group chat: %w", err)
	}
	return nil
}

func (r *chatRepository) GetGroupChatByTripID(ctx context.Context, tripID primitive.ObjectID) (*models.GroupChat, error) {
	cacheKey := fmt.Sprintf("group_chat_trip:%s", tripID.Hex())
	if r.cache != nil {
		var chat models.GroupChat
		if err := r.cache.Get(ctx, cacheKey, &chat); err == nil {
			return &chat, nil
		}
	}

	var chat models.GroupChat
	err := r.groupCollection.FindOne(ctx, bson.M{"trip_id": tripID}).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrGroupChatNotFound
		}
		return nil, fmt.Errorf("failed to get group chat: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, &chat, 15*time.Minute)
	}
	return &chat, nil
}

func (r *chatRepository) GetGroupChatsByParticipant(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.GroupChat, int64, error) {
	filter := bson.M{"participants": userID}

	total, err := r.groupCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count group chats: %w", err)
	}

	opts := params.GetSortOptions()
	if params.Sort == "" || params.Sort == "created_at" {
		opts.SetSort(bson.D{{Key: "updated_at", Value: -1}})
	}

	cursor, err := r.groupCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find group chats: %w", err)
	}
	defer cursor.Close(ctx)

	var chats []*models.GroupChat
	for cursor.Next(ctx) {
		var chat models.GroupChat
		if err := cursor.Decode(&chat); err != nil {
			return nil, 0, fmt.Errorf("failed to decode group chat: %w", err)
		}
		chats = append(chats, &chat)
	}
	return chats, total, nil
}

// AppendGroupEntry appends only while the chat is active; a closed chat
// rejects the message.
func (r *chatRepository) AppendGroupEntry(ctx context.Context, tripID primitive.ObjectID, entry *models.ChatEntry) error {
	now := time.Now()
	result, err := r.groupCollection.UpdateOne(
		ctx,
		bson.M{"trip_id": tripID, "status": models.ChatStatusActive},
		bson.M{
			"$push": bson.M{"messages": entry},
			"$inc":  bson.M{"message_count": 1},
			"$set": bson.M{
				"last_message":    entry.Content,
				"last_message_at": entry.CreatedAt,
				"updated_at":      now,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to append group entry: %w", err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a closed chat from a missing one.
		count, err := r.groupCollection.CountDocuments(ctx, bson.M{"trip_id": tripID})
		if err == nil && count > 0 {
			return models.ErrChatClosed
		}
		return models.ErrGroupChatNotFound
	}

	r.invalidateGroup(ctx, tripID)
	return nil
}

func (r *chatRepository) FindGroupChatByEntry(ctx context.Context, sourceID primitive.ObjectID) (*models.GroupChat, error) {
	var chat models.GroupChat
	err := r.groupCollection.FindOne(ctx, bson.M{"messages.source_id": sourceID}).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find group chat by entry: %w", err)
	}
	return &chat, nil
}

func (r *chatRepository) SetGroupEntryContent(ctx context.Context, tripID, sourceID primitive.ObjectID, senderID, content string) error {
	result, err := r.groupCollection.UpdateOne(
		ctx,
		bson.M{
			"trip_id": tripID,
			"messages": bson.M{"$elemMatch": bson.M{
				"source_id": sourceID,
				"sender_id": senderID,
				"deleted":   false,
			}},
		},
		bson.M{"$set": bson.M{
			"messages.$.content": content,
			"messages.$.edited":  true,
			"updated_at":         time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to edit group entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrEntryNotFound
	}

	r.invalidateGroup(ctx, tripID)
	return nil
}

func (r *chatRepository) MarkGroupEntryDeleted(ctx context.Context, tripID, sourceID primitive.ObjectID, senderID string) error {
	result, err := r.groupCollection.UpdateOne(
		ctx,
		bson.M{
			"trip_id": tripID,
			"messages": bson.M{"$elemMatch": bson.M{
				"source_id": sourceID,
				"sender_id": senderID,
				"deleted":   false,
			}},
		},
		bson.M{"$set": bson.M{
			"messages.$.deleted": true,
			"updated_at":         time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to delete group entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrEntryNotFound
	}

	r.invalidateGroup(ctx, tripID)
	return nil
}

func (r *chatRepository) AddParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error) {
	var chat models.GroupChat
	err := r.groupCollection.FindOneAndUpdate(
		ctx,
		bson.M{"trip_id": tripID},
		bson.M{
			"$addToSet": bson.M{"participants": userID},
			"$set":      bson.M{"updated_at": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrGroupChatNotFound
		}
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	r.invalidateGroup(ctx, tripID)
	return &chat, nil
}

func (r *chatRepository) RemoveParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error) {
	var chat models.GroupChat
	err := r.groupCollection.FindOneAndUpdate(
		ctx,
		bson.M{"trip_id": tripID},
		bson.M{
			"$pull": bson.M{"participants": userID},
			"$set":  bson.M{"updated_at": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrGroupChatNotFound
		}
		return nil, fmt.Errorf("failed to remove participant: %w", err)
	}

	r.invalidateGroup(ctx, tripID)
	return &chat, nil
}

func (r *chatRepository) CloseGroupChat(ctx context.Context, tripID primitive.ObjectID) error {
	now := time.Now()
	result, err := r.groupCollection.UpdateOne(
		ctx,
		bson.M{"trip_id": tripID},
		bson.M{"$set": bson.M{
			"status":     models.ChatStatusClosed,
			"closed_at":  now,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to close group chat: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrGroupChatNotFound
	}

	r.invalidateGroup(ctx, tripID)
	return nil
}

// Cache helpers

func (r *chatRepository) cachePersonal(ctx context.Context, chat *models.PersonalChat) {
	if r.cache != nil {
		r.cache.Set(ctx, fmt.Sprintf("personal_chat_key:%s", chat.CanonicalKey), chat, 15*time.Minute)
	}
}

func (r *chatRepository) invalidatePersonal(ctx context.Context, chatID primitive.ObjectID) {
	if r.cache == nil {
		return
	}
	// The key-indexed cache entry holds the full document; re-read the
	// canonical key to drop it.
	var chat models.PersonalChat
	if err := r.personalCollection.FindOne(ctx, bson.M{"_id": chatID},
		options.FindOne().SetProjection(bson.M{"canonical_key": 1})).Decode(&chat); err == nil {
		r.cache.Delete(ctx, fmt.Sprintf("personal_chat_key:%s", chat.CanonicalKey))
	}
}

func (r *chatRepository) invalidateGroup(ctx context.Context, tripID primitive.ObjectID) {
	if r.cache != nil {
		r.cache.Delete(ctx, fmt.Sprintf("group_chat_trip:%s", tripID.Hex()))
	}
}
