package services

import (
	"context"
	"strings"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"
	"gopool/internal/utils"
	"gopool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DistributorService owns the chat aggregates. Every message enters
// through the staging area and leaves it into exactly one aggregate.
type DistributorService interface {
	// Send stages a message and distributes it immediately.
	Send(ctx context.Context, senderID, content, recipientUser string, recipientTrip *primitive.ObjectID) (*DistributionResult, error)

	// Distribute routes one staged message into its aggregate and clears
	// it from staging.
	Distribute(ctx context.Context, msg *models.PendingMessage) (*DistributionResult, error)

	// RecoverPending re-drives messages staged before a crash.
	RecoverPending(ctx context.Context) error

	EditEntry(ctx context.Context, requesterID string, sourceID primitive.ObjectID, newContent string) error
	DeleteEntry(ctx context.Context, requesterID string, sourceID primitive.ObjectID) error

	CreateGroupChat(ctx context.Context, tripID primitive.ObjectID, driverID string) (*models.GroupChat, error)
	AddParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error)
	RemoveParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error)
	CloseGroupChat(ctx context.Context, tripID primitive.ObjectID) error

	GetPersonalChats(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.PersonalChat, int64, error)
	GetGroupChats(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.GroupChat, int64, error)
	GetPersonalChatWith(ctx context.Context, userID, otherUserID string) (*models.PersonalChat, error)
	GetGroupChat(ctx context.Context, tripID primitive.ObjectID) (*models.GroupChat, error)
}

type DistributionResult struct {
	ChatID   primitive.ObjectID `json:"chat_id"`
	ChatType models.ChatType    `json:"chat_type"`
	Entry    *models.ChatEntry  `json:"entry"`
}

type distributorService struct {
	chatRepo interfaces.ChatRepository
	notifier RealtimeNotifier
	logger   *logger.Logger
}

func NewDistributorService(
	chatRepo interfaces.ChatRepository,
	notifier RealtimeNotifier,
	log *logger.Logger,
) DistributorService {
	return &distributorService{
		chatRepo: chatRepo,
		notifier: notifier,
		logger:   log,
	}
}

func (s *distributorService) Send(ctx context.Context, senderID, content, recipientUser string, recipientTrip *primitive.ObjectID) (*DistributionResult, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > utils.MaxMessageLength {
		return nil, models.NewDomainError(models.CodeValidationFailed, "message content must be 1-1000 characters")
	}

	msg := &models.PendingMessage{
		SenderID:      senderID,
		Content:       content,
		RecipientUser: recipientUser,
		RecipientTrip: recipientTrip,
	}

	if err := s.validateTarget(msg); err != nil {
		return nil, err
	}

	if err := s.chatRepo.CreatePendingMessage(ctx, msg); err != nil {
		return nil, err
	}

	return s.Distribute(ctx, msg)
}

func (s *distributorService) Distribute(ctx context.Context, msg *models.PendingMessage) (*DistributionResult, error) {
	if err := s.validateTarget(msg); err != nil {
		return nil, err
	}

	entry := &models.ChatEntry{
		SourceID:  msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: time.Now(),
	}

	var result *DistributionResult
	var err error
	if msg.TargetsUser() {
		result, err = s.distributePersonal(ctx, msg, entry)
	} else {
		result, err = s.distributeGroup(ctx, msg, entry)
	}
	if err != nil {
		return nil, err
	}

	// At-most-once: the entry is durably in its aggregate, so the staged
	// copy goes away. A crash before this line re-drives the message via
	// RecoverPending, which is why SourceID ties entry to staging row.
	if err := s.chatRepo.DeletePendingMessage(ctx, msg.ID); err != nil {
		s.logger.WithError(err).
			WithField("message_id", msg.ID.Hex()).
			Error("Failed to clear staged message after distribution")
	}

	s.fanOutEntry(msg, result)
	return result, nil
}

func (s *distributorService) validateTarget(msg *models.PendingMessage) error {
	if msg.TargetsUser() == msg.TargetsTrip() {
		return models.ErrInvalidMessageTarget
	}
	if msg.TargetsUser() && msg.RecipientUser == msg.SenderID {
		return models.ErrSelfReferential
	}
	return nil
}

func (s *distributorService) distributePersonal(ctx context.Context, msg *models.PendingMessage, entry *models.ChatEntry) (*DistributionResult, error) {
	chat, err := s.getOrCreatePersonalChat(ctx, msg.SenderID, msg.RecipientUser)
	if err != nil {
		return nil, err
	}

	if err := s.chatRepo.AppendPersonalEntry(ctx, chat.ID, entry); err != nil {
		return nil, err
	}

	return &DistributionResult{
		ChatID:   chat.ID,
		ChatType: models.ChatTypePersonal,
		Entry:    entry,
	}, nil
}

// getOrCreatePersonalChat is the lazy-create path. The unique index on the
// canonical key collapses a concurrent duplicate create into a refetch.
func (s *distributorService) getOrCreatePersonalChat(ctx context.Context, userA, userB string) (*models.PersonalChat, error) {
	key := utils.CanonicalPairKey(userA, userB)

	chat, err := s.chatRepo.GetPersonalChatByKey(ctx, key)
	if err == nil {
		return chat, nil
	}
	if models.CodeOf(err) != models.CodeNotFound {
		return nil, err
	}

	low, high := utils.OrderPair(userA, userB)
	fresh := &models.PersonalChat{
		CanonicalKey: key,
		UserLow:      low,
		UserHigh:     high,
		Messages:     []models.ChatEntry{},
	}

	createErr := s.chatRepo.CreatePersonalChat(ctx, fresh)
	if createErr == nil {
		return fresh, nil
	}
	if models.CodeOf(createErr) == models.CodeAlreadyExists {
		return s.chatRepo.GetPersonalChatByKey(ctx, key)
	}
	return nil, createErr
}

func (s *distributorService) distributeGroup(ctx context.Context, msg *models.PendingMessage, entry *models.ChatEntry) (*DistributionResult, error) {
	chat, err := s.chatRepo.GetGroupChatByTripID(ctx, *msg.RecipientTrip)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(msg.SenderID) {
		return nil, models.ErrNotAuthorized
	}

	if err := s.chatRepo.AppendGroupEntry(ctx, *msg.RecipientTrip, entry); err != nil {
		return nil, err
	}

	return &DistributionResult{
		ChatID:   chat.ID,
		ChatType: models.ChatTypeGroup,
		Entry:    entry,
	}, nil
}

func (s *distributorService) fanOutEntry(msg *models.PendingMessage, result *DistributionResult) {
	if s.notifier == nil {
		return
	}

	data := map[string]interface{}{
		"chat_id":   result.ChatID.Hex(),
		"chat_type": result.ChatType,
		"source_id": result.Entry.SourceID.Hex(),
		"sender_id": result.Entry.SenderID,
		"content":   result.Entry.Render(),
		"sent_at":   result.Entry.CreatedAt,
	}

	if msg.TargetsUser() {
		s.notifier.SendToUser(msg.RecipientUser, "message_received", data)
		s.notifier.SendToUser(msg.SenderID, "message_received", data)
	} else {
		s.notifier.SendToTrip(msg.RecipientTrip.Hex(), "message_received", data)
	}
}

func (s *distributorService) RecoverPending(ctx context.Context) error {
	staged, err := s.chatRepo.ListPendingMessages(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	for _, msg := range staged {
		// A crash between the aggregate append and the staging delete
		// leaves the message in both places. The SourceID lookup tells a
		// stale staging row from one that still needs distribution.
		distributed, err := s.alreadyDistributed(ctx, msg)
		if err != nil {
			s.logger.WithError(err).
				WithField("message_id", msg.ID.Hex()).
				Warn("Could not verify staged message, leaving it for the next pass")
			continue
		}
		if distributed {
			if err := s.chatRepo.DeletePendingMessage(ctx, msg.ID); err != nil {
				s.logger.WithError(err).
					WithField("message_id", msg.ID.Hex()).
					Error("Failed to clear stale staged message")
			}
			continue
		}

		if _, err := s.Distribute(ctx, msg); err != nil {
			s.logger.WithError(err).
				WithField("message_id", msg.ID.Hex()).
				Warn("Failed to recover staged message")
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.WithField("count", recovered).Info("Recovered staged messages")
	}
	return nil
}

// alreadyDistributed reports whether the staged message's entry is
// already present in an aggregate.
func (s *distributorService) alreadyDistributed(ctx context.Context, msg *models.PendingMessage) (bool, error) {
	var err error
	if msg.TargetsUser() {
		_, err = s.chatRepo.FindPersonalChatByEntry(ctx, msg.ID)
	} else {
		_, err = s.chatRepo.FindGroupChatByEntry(ctx, msg.ID)
	}
	if err == nil {
		return true, nil
	}
	if models.CodeOf(err) == models.CodeNotFound {
		return false, nil
	}
	return false, err
}

func (s *distributorService) EditEntry(ctx context.Context, requesterID string, sourceID primitive.ObjectID, newContent string) error {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" || len(newContent) > utils.MaxMessageLength {
		return models.NewDomainError(models.CodeValidationFailed, "message content must be 1-1000 characters")
	}

	if personal, err := s.chatRepo.FindPersonalChatByEntry(ctx, sourceID); err == nil {
		entry := findEntry(personal.Messages, sourceID)
		if entry == nil || entry.Deleted {
			return models.ErrEntryNotFound
		}
		if entry.SenderID != requesterID {
			return models.ErrNotAuthorized
		}
		if err := s.chatRepo.SetPersonalEntryContent(ctx, personal.ID, sourceID, requesterID, newContent); err != nil {
			return err
		}
		s.fanOutMutation("message_edited", sourceID, newContent, personal.UserLow, personal.UserHigh, "")
		return nil
	}

	group, err := s.chatRepo.FindGroupChatByEntry(ctx, sourceID)
	if err != nil {
		return models.ErrEntryNotFound
	}
	entry := findEntry(group.Messages, sourceID)
	if entry == nil || entry.Deleted {
		return models.ErrEntryNotFound
	}
	if entry.SenderID != requesterID {
		return models.ErrNotAuthorized
	}
	if err := s.chatRepo.SetGroupEntryContent(ctx, group.TripID, sourceID, requesterID, newContent); err != nil {
		return err
	}
	s.fanOutMutation("message_edited", sourceID, newContent, "", "", group.TripID.Hex())
	return nil
}

func (s *distributorService) DeleteEntry(ctx context.Context, requesterID string, sourceID primitive.ObjectID) error {
	if personal, err := s.chatRepo.FindPersonalChatByEntry(ctx, sourceID); err == nil {
		entry := findEntry(personal.Messages, sourceID)
		if entry == nil || entry.Deleted {
			return models.ErrEntryNotFound
		}
		if entry.SenderID != requesterID {
			return models.ErrNotAuthorized
		}
		if err := s.chatRepo.MarkPersonalEntryDeleted(ctx, personal.ID, sourceID, requesterID); err != nil {
			return err
		}
		s.fanOutMutation("message_deleted", sourceID, "", personal.UserLow, personal.UserHigh, "")
		return nil
	}

	group, err := s.chatRepo.FindGroupChatByEntry(ctx, sourceID)
	if err != nil {
		return models.ErrEntryNotFound
	}
	entry := findEntry(group.Messages, sourceID)
	if entry == nil || entry.Deleted {
		return models.ErrEntryNotFound
	}
	if entry.SenderID != requesterID {
		return models.ErrNotAuthorized
	}
	if err := s.chatRepo.MarkGroupEntryDeleted(ctx, group.TripID, sourceID, requesterID); err != nil {
		return err
	}
	s.fanOutMutation("message_deleted", sourceID, "", "", "", group.TripID.Hex())
	return nil
}

func (s *distributorService) fanOutMutation(event string, sourceID primitive.ObjectID, content, userLow, userHigh, tripID string) {
	if s.notifier == nil {
		return
	}

	data := map[string]interface{}{
		"source_id": sourceID.Hex(),
	}
	if event == "message_edited" {
		data["content"] = content
	}

	if tripID != "" {
		s.notifier.SendToTrip(tripID, event, data)
		return
	}
	s.notifier.SendToUser(userLow, event, data)
	s.notifier.SendToUser(userHigh, event, data)
}

func (s *distributorService) CreateGroupChat(ctx context.Context, tripID primitive.ObjectID, driverID string) (*models.GroupChat, error) {
	chat := &models.GroupChat{
		TripID:       tripID,
		DriverID:     driverID,
		Participants: []string{driverID},
		Messages:     []models.ChatEntry{},
		Status:       models.ChatStatusActive,
	}

	err := s.chatRepo.CreateGroupChat(ctx, chat)
	if err == nil {
		return chat, nil
	}
	if models.CodeOf(err) == models.CodeAlreadyExists {
		// Idempotent provisioning.
		return s.chatRepo.GetGroupChatByTripID(ctx, tripID)
	}
	return nil, err
}

func (s *distributorService) AddParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error) {
	chat, err := s.chatRepo.AddParticipant(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.SendToTrip(tripID.Hex(), "participant_added", map[string]interface{}{
			"trip_id":      tripID.Hex(),
			"user_id":      userID,
			"participants": chat.Participants,
		})
	}
	return chat, nil
}

func (s *distributorService) RemoveParticipant(ctx context.Context, tripID primitive.ObjectID, userID string) (*models.GroupChat, error) {
	chat, err := s.chatRepo.GetGroupChatByTripID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if chat.DriverID == userID {
		return nil, models.ErrCannotRemoveDriver
	}

	chat, err = s.chatRepo.RemoveParticipant(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.SendToTrip(tripID.Hex(), "participant_removed", map[string]interface{}{
			"trip_id":      tripID.Hex(),
			"user_id":      userID,
			"participants": chat.Participants,
		})
	}
	return chat, nil
}

func (s *distributorService) CloseGroupChat(ctx context.Context, tripID primitive.ObjectID) error {
	if err := s.chatRepo.CloseGroupChat(ctx, tripID); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.SendToTrip(tripID.Hex(), "trip_chat_closed", map[string]interface{}{
			"trip_id": tripID.Hex(),
		})
	}
	return nil
}

func (s *distributorService) GetPersonalChats(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.PersonalChat, int64, error) {
	return s.chatRepo.GetPersonalChatsByParticipant(ctx, userID, params)
}

func (s *distributorService) GetGroupChats(ctx context.Context, userID string, params *utils.PaginationParams) ([]*models.GroupChat, int64, error) {
	return s.chatRepo.GetGroupChatsByParticipant(ctx, userID, params)
}

func (s *distributorService) GetPersonalChatWith(ctx context.Context, userID, otherUserID string) (*models.PersonalChat, error) {
	chat, err := s.chatRepo.GetPersonalChatByKey(ctx, utils.CanonicalPairKey(userID, otherUserID))
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, models.ErrNotAuthorized
	}
	return chat, nil
}

func (s *distributorService) GetGroupChat(ctx context.Context, tripID primitive.ObjectID) (*models.GroupChat, error) {
	return s.chatRepo.GetGroupChatByTripID(ctx, tripID)
}

func findEntry(entries []models.ChatEntry, sourceID primitive.ObjectID) *models.ChatEntry {
	for i := range entries {
		if entries[i].SourceID == sourceID {
			return &entries[i]
		}
	}
	return nil
}
