package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"harbor-chat/internal/domain/conversation"
	"harbor-chat/internal/domain/message"
	"harbor-chat/internal/domain/user"
	"harbor-chat/internal/events"
	"harbor-chat/internal/registry"
	"harbor-chat/internal/repository"
	harbor_errors "harbor-chat/pkg/errors"
	"harbor-chat/pkg/logger"

	"github.com/google/uuid"
)

// MessagingPolicy carries deployment-tunable messaging behavior.
type MessagingPolicy struct {
	// BroadcastEligibleRoles are the user roles auto-enrolled into a new
	// broadcast channel.
	BroadcastEligibleRoles []string
}

// MessagingService owns conversation lifecycle, permission enforcement,
// message fan-out, reactions and read tracking.
type MessagingService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	userRepo repository.UserRepository
	registry registry.Registry
	policy   MessagingPolicy
	log      *logger.Logger
}

func NewMessagingService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	reg registry.Registry,
	policy MessagingPolicy,
	log *logger.Logger,
) *MessagingService {
	if len(policy.BroadcastEligibleRoles) == 0 {
		policy.BroadcastEligibleRoles = []string{"ADMIN", "PASTOR", "STAFF", "MEMBER"}
	}
	return &MessagingService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		registry: reg,
		policy:   policy,
		log:      log,
	}
}

// ConversationView is a conversation annotated for a user's inbox list.
type ConversationView struct {
	Conversation conversation.Conversation
	LastMessage  *message.Message
	UnreadCount  int64
}

// CreateDirectConversation finds or creates the one DIRECT conversation
// for the pair. An existing conversation is reactivated for both sides
// unconditionally; only a brand-new one is announced to the other user.
func (s *MessagingService) CreateDirectConversation(ctx context.Context, userA, userB uuid.UUID) (conversation.Conversation, error) {
	if userA == userB {
		return conversation.Conversation{}, harbor_errors.ErrInvalidInput
	}

	existing, err := s.convRepo.GetDirectPair(ctx, userA, userB)
	if err == nil {
		if err := s.convRepo.SetParticipantsActive(ctx, existing.ID, []uuid.UUID{userA, userB}, true); err != nil {
			return conversation.Conversation{}, err
		}
		return s.convRepo.GetByID(ctx, existing.ID)
	}
	if !errors.Is(err, harbor_errors.ErrNotFound) {
		return conversation.Conversation{}, err
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:        uuid.New(),
		Type:      conversation.TypeDirect,
		Settings:  conversation.DefaultSettings(conversation.TypeDirect),
		CreatedBy: uuid.NullUUID{UUID: userA, Valid: true},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	participants := []conversation.Participant{
		{ConversationID: conv.ID, UserID: userA, Role: conversation.RoleMember, IsActive: true, JoinedAt: now},
		{ConversationID: conv.ID, UserID: userB, Role: conversation.RoleMember, IsActive: true, JoinedAt: now},
	}
	if err := s.convRepo.Create(ctx, &conv, participants); err != nil {
		if errors.Is(err, harbor_errors.ErrAlreadyExists) {
			// Lost a race against the swapped-argument call; converge on
			// the winner's conversation.
			return s.CreateDirectConversation(ctx, userA, userB)
		}
		return conversation.Conversation{}, err
	}

	// The initiator already has the result in hand.
	ev, err := events.New(events.TypeNewConversation, conversationPayload(conv))
	if err == nil {
		s.registry.Send(ctx, userB.String(), ev)
	}
	return conv, nil
}

// CreateGroupConversation creates a group with the creator as ADMIN and
// every listed member as MEMBER. Announcement is deferred to first
// message send.
func (s *MessagingService) CreateGroupConversation(ctx context.Context, creator uuid.UUID, name, description string, memberIDs []uuid.UUID, settings *conversation.GroupSettings) (conversation.Conversation, error) {
	if name == "" {
		return conversation.Conversation{}, harbor_errors.ErrInvalidInput
	}

	merged := conversation.DefaultSettings(conversation.TypeGroup)
	if settings != nil {
		merged.Group = settings
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:          uuid.New(),
		Type:        conversation.TypeGroup,
		Name:        sql.NullString{String: name, Valid: true},
		Description: nullString(description),
		Settings:    merged,
		CreatedBy:   uuid.NullUUID{UUID: creator, Valid: true},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	participants := []conversation.Participant{
		{ConversationID: conv.ID, UserID: creator, Role: conversation.RoleAdmin, IsActive: true, JoinedAt: now},
	}
	for _, id := range memberIDs {
		if id == creator {
			continue
		}
		participants = append(participants, conversation.Participant{
			ConversationID: conv.ID, UserID: id, Role: conversation.RoleMember, IsActive: true, JoinedAt: now,
		})
	}

	if err := s.convRepo.Create(ctx, &conv, participants); err != nil {
		return conversation.Conversation{}, err
	}
	return conv, nil
}

// CreateBroadcastChannel creates a one-to-many channel seeded with
// every active user of an eligible role. Returns the delivered push
// count for diagnostics; misses are not errors.
func (s *MessagingService) CreateBroadcastChannel(ctx context.Context, creator uuid.UUID, name, description string, settings *conversation.BroadcastSettings) (conversation.Conversation, int, error) {
	if name == "" {
		return conversation.Conversation{}, 0, harbor_errors.ErrInvalidInput
	}

	merged := conversation.DefaultSettings(conversation.TypeBroadcast)
	if settings != nil {
		merged.Broadcast = settings
	}

	eligible, err := s.userRepo.GetActiveByRoles(ctx, s.policy.BroadcastEligibleRoles)
	if err != nil {
		return conversation.Conversation{}, 0, err
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:          uuid.New(),
		Type:        conversation.TypeBroadcast,
		Name:        sql.NullString{String: name, Valid: true},
		Description: nullString(description),
		Settings:    merged,
		CreatedBy:   uuid.NullUUID{UUID: creator, Valid: true},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	participants := []conversation.Participant{
		{ConversationID: conv.ID, UserID: creator, Role: conversation.RoleAdmin, IsActive: true, JoinedAt: now},
	}
	for _, u := range eligible {
		if u.ID == creator {
			continue
		}
		participants = append(participants, conversation.Participant{
			ConversationID: conv.ID, UserID: u.ID, Role: conversation.RoleReadOnly, IsActive: true, JoinedAt: now,
		})
	}

	if err := s.convRepo.Create(ctx, &conv, participants); err != nil {
		return conversation.Conversation{}, 0, err
	}

	ev, err := events.New(events.TypeNewBroadcastChannel, conversationPayload(conv))
	if err != nil {
		return conv, 0, nil
	}
	delivered := 0
	for _, p := range participants {
		if p.UserID == creator {
			continue
		}
		if s.registry.Send(ctx, p.UserID.String(), ev) {
			delivered++
		}
	}
	s.log.Infof("broadcast channel %s created, announced to %d/%d participants",
		conv.ID, delivered, len(participants)-1)
	return conv, delivered, nil
}

// AddParticipants inserts users into a conversation. The acting user
// needs a role the permission table allows to add members. Existing
// participants are skipped silently; one SYSTEM join message covers the
// users actually added.
func (s *MessagingService) AddParticipants(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID, actingUser uuid.UUID, role string) error {
	if role == "" {
		role = conversation.RoleMember
	}

	actor, err := s.convRepo.GetParticipant(ctx, conversationID, actingUser)
	if err != nil {
		if errors.Is(err, harbor_errors.ErrNotFound) {
			return harbor_errors.ErrPermissionDenied
		}
		return err
	}
	if !actor.IsActive || !conversation.RoleAllows(actor.Role, conversation.ActionAddParticipants) {
		return harbor_errors.ErrPermissionDenied
	}

	now := time.Now()
	var added []uuid.UUID
	for _, id := range userIDs {
		inserted, err := s.convRepo.AddParticipant(ctx, &conversation.Participant{
			ConversationID: conversationID,
			UserID:         id,
			Role:           role,
			IsActive:       true,
			JoinedAt:       now,
		})
		if err != nil {
			return err
		}
		if inserted {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil
	}

	names, err := s.displayNames(ctx, added)
	if err != nil {
		return err
	}
	_, err = s.SendSystemMessage(ctx, conversationID, fmt.Sprintf("%s joined the conversation", strings.Join(names, ", ")), &message.Metadata{
		SystemAction: message.SystemActionJoin,
		UserNames:    names,
	})
	return err
}

// SendMessage authorizes, persists and fans out a message. No row is
// written when the sender is not allowed to post.
func (s *MessagingService) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, content, msgType string, metadata *message.Metadata, replyToID uuid.NullUUID) (message.Message, error) {
	if content == "" {
		return message.Message{}, harbor_errors.ErrInvalidInput
	}
	if msgType == "" {
		msgType = message.TypeText
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return message.Message{}, err
	}
	if err := s.canUserSendMessage(conv, senderID); err != nil {
		return message.Message{}, err
	}

	now := time.Now()
	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       uuid.NullUUID{UUID: senderID, Valid: true},
		Content:        content,
		Type:           msgType,
		Metadata:       metadata,
		ReplyToID:      replyToID,
		CreatedAt:      now,
	}
	if err := s.msgRepo.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}
	if err := s.convRepo.Touch(ctx, conversationID, now); err != nil {
		return message.Message{}, err
	}

	s.fanOutMessage(ctx, conv, msg)
	return msg, nil
}

// SendSystemMessage persists a senderless SYSTEM message and fans it
// out to every active participant.
func (s *MessagingService) SendSystemMessage(ctx context.Context, conversationID uuid.UUID, content string, metadata *message.Metadata) (message.Message, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return message.Message{}, err
	}

	now := time.Now()
	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Content:        content,
		Type:           message.TypeSystem,
		Metadata:       metadata,
		CreatedAt:      now,
	}
	if err := s.msgRepo.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}
	if err := s.convRepo.Touch(ctx, conversationID, now); err != nil {
		return message.Message{}, err
	}

	s.fanOutMessage(ctx, conv, msg)
	return msg, nil
}

// ToggleReaction applies the tri-state toggle: no reaction yet adds
// one, the same emoji removes it, a different emoji replaces it.
func (s *MessagingService) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (message.ReactionOutcome, error) {
	if emoji == "" {
		return "", harbor_errors.ErrInvalidInput
	}
	if _, err := s.msgRepo.GetByID(ctx, messageID); err != nil {
		return "", err
	}

	existing, err := s.msgRepo.GetUserReaction(ctx, messageID, userID)
	switch {
	case errors.Is(err, harbor_errors.ErrNotFound):
		reaction := message.MessageReaction{
			ID:        uuid.New(),
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: time.Now(),
		}
		if err := s.msgRepo.AddReaction(ctx, &reaction); err != nil {
			return "", err
		}
		return message.ReactionAdded, nil
	case err != nil:
		return "", err
	case existing.Emoji == emoji:
		if err := s.msgRepo.RemoveReaction(ctx, existing.ID); err != nil {
			return "", err
		}
		return message.ReactionRemoved, nil
	default:
		if err := s.msgRepo.UpdateReaction(ctx, existing.ID, emoji); err != nil {
			return "", err
		}
		return message.ReactionChanged, nil
	}
}

// GetUserConversations lists the user's active conversations, newest
// activity first, each annotated with last message and unread count.
func (s *MessagingService) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]ConversationView, error) {
	conversations, err := s.convRepo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		view := ConversationView{Conversation: conv}

		last, err := s.msgRepo.GetLatestMessage(ctx, conv.ID)
		if err == nil {
			view.LastMessage = &last
		} else if !errors.Is(err, harbor_errors.ErrNotFound) {
			return nil, err
		}

		var since sql.NullTime
		if p, ok := conv.ParticipantFor(userID); ok {
			since = p.LastReadAt
		}
		unread, err := s.msgRepo.CountUnread(ctx, conv.ID, userID, since)
		if err != nil {
			return nil, err
		}
		view.UnreadCount = unread
		views = append(views, view)
	}
	return views, nil
}

// GetConversationMessages pages message history for an active
// participant, newest first.
func (s *MessagingService) GetConversationMessages(ctx context.Context, conversationID, userID uuid.UUID, before time.Time, limit int) ([]message.Message, error) {
	p, err := s.convRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, harbor_errors.ErrNotFound) {
			return nil, harbor_errors.ErrPermissionDenied
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, harbor_errors.ErrPermissionDenied
	}
	if limit <= 0 {
		limit = 50
	}
	return s.msgRepo.GetConversationMessages(ctx, conversationID, before, limit)
}

// MarkAsRead moves the user's read watermark to now, appends them to
// the read set of every message they had not read, and notifies the
// other participants. Safe to call repeatedly.
func (s *MessagingService) MarkAsRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if _, ok := conv.ParticipantFor(userID); !ok {
		return harbor_errors.ErrNotFound
	}

	now := time.Now()
	if err := s.convRepo.SetParticipantLastRead(ctx, conversationID, userID, now); err != nil {
		return err
	}
	if _, err := s.msgRepo.MarkAllRead(ctx, conversationID, userID, now); err != nil {
		return err
	}

	ev, err := events.New(events.TypeMessagesRead, events.MessagesReadPayload{
		ConversationID: conversationID.String(),
		ReadByUserID:   userID.String(),
		Timestamp:      now,
	})
	if err != nil {
		return nil
	}
	for _, id := range conv.ActiveParticipantIDs(userID) {
		s.registry.Send(ctx, id.String(), ev)
	}
	return nil
}

// canUserSendMessage enforces the write rules: active participant, the
// permission table allows the role to post, and broadcast channels with
// only_admins_can_post restrict posting to privileged roles.
func (s *MessagingService) canUserSendMessage(conv conversation.Conversation, senderID uuid.UUID) error {
	p, ok := conv.ParticipantFor(senderID)
	if !ok || !p.IsActive {
		return harbor_errors.ErrNotAuthorized
	}
	if !conversation.RoleAllows(p.Role, conversation.ActionSendMessage) {
		return harbor_errors.ErrNotAuthorized
	}
	if conv.Type == conversation.TypeBroadcast {
		if bs := conv.Settings.Broadcast; bs != nil && bs.OnlyAdminsCanPost && !conversation.IsPrivileged(p.Role) {
			return harbor_errors.ErrNotAuthorized
		}
	}
	return nil
}

// fanOutMessage pushes new_message to every other active participant,
// and for broadcast channels additionally new_broadcast_message tagged
// with the channel name. Delivery misses are counted, never fatal.
func (s *MessagingService) fanOutMessage(ctx context.Context, conv conversation.Conversation, msg message.Message) {
	payload := messagePayload(msg)
	ev, err := events.New(events.TypeNewMessage, payload)
	if err != nil {
		s.log.Errorf("fan-out %s: %v", msg.ID, err)
		return
	}

	var broadcastEv *events.Event
	if conv.Type == conversation.TypeBroadcast {
		raw, err := events.New(events.TypeNewBroadcastMessage, events.BroadcastMessagePayload{
			ChannelName: conv.Name.String,
			Message:     ev.Data,
		})
		if err == nil {
			broadcastEv = &raw
		}
	}

	var exclude uuid.UUID
	if msg.SenderID.Valid {
		exclude = msg.SenderID.UUID
	}
	delivered, total := 0, 0
	for _, id := range conv.ActiveParticipantIDs(exclude) {
		total++
		if s.registry.Send(ctx, id.String(), ev) {
			delivered++
		}
		if broadcastEv != nil {
			s.registry.Send(ctx, id.String(), *broadcastEv)
		}
	}
	if delivered < total {
		s.log.Infof("message %s delivered to %d/%d online participants", msg.ID, delivered, total)
	}
}

func (s *MessagingService) displayNames(ctx context.Context, ids []uuid.UUID) ([]string, error) {
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok && u.DisplayName != "" {
			names = append(names, u.DisplayName)
		} else {
			names = append(names, id.String())
		}
	}
	return names, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
