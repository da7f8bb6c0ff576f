package memory

import (
	"context"
	"database/sql"
	"time"

	"harbor-chat/internal/domain/message"
	"harbor-chat/internal/domain/user"
	"harbor-chat/internal/repository"

	"github.com/google/uuid"
)

// The store exposes one method set; these thin adapters slice it into
// the repository interfaces so one Store can serve all three.

type ConversationRepo struct{ *Store }

func NewConversationRepository(s *Store) repository.ConversationRepository {
	return ConversationRepo{s}
}

type MessageRepo struct{ s *Store }

func NewMessageRepository(s *Store) repository.MessageRepository {
	return MessageRepo{s}
}

func (r MessageRepo) Create(ctx context.Context, m *message.Message) error {
	return r.s.CreateMessage(ctx, m)
}

func (r MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	return r.s.GetMessageByID(ctx, id)
}

func (r MessageRepo) GetConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]message.Message, error) {
	return r.s.GetConversationMessages(ctx, conversationID, before, limit)
}

func (r MessageRepo) GetLatestMessage(ctx context.Context, conversationID uuid.UUID) (message.Message, error) {
	return r.s.GetLatestMessage(ctx, conversationID)
}

func (r MessageRepo) CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since sql.NullTime) (int64, error) {
	return r.s.CountUnread(ctx, conversationID, userID, since)
}

func (r MessageRepo) MarkAllRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (int64, error) {
	return r.s.MarkAllRead(ctx, conversationID, userID, at)
}

func (r MessageRepo) GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (message.MessageReaction, error) {
	return r.s.GetUserReaction(ctx, messageID, userID)
}

func (r MessageRepo) AddReaction(ctx context.Context, reaction *message.MessageReaction) error {
	return r.s.AddReaction(ctx, reaction)
}

func (r MessageRepo) UpdateReaction(ctx context.Context, reactionID uuid.UUID, emoji string) error {
	return r.s.UpdateReaction(ctx, reactionID, emoji)
}

func (r MessageRepo) RemoveReaction(ctx context.Context, reactionID uuid.UUID) error {
	return r.s.RemoveReaction(ctx, reactionID)
}

func (r MessageRepo) GetMessageReactions(ctx context.Context, messageID uuid.UUID) ([]message.MessageReaction, error) {
	return r.s.GetMessageReactions(ctx, messageID)
}

type UserRepo struct{ s *Store }

func NewUserRepository(s *Store) repository.UserRepository {
	return UserRepo{s}
}

func (r UserRepo) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	return r.s.GetUserByID(ctx, id)
}

func (r UserRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]user.User, error) {
	return r.s.GetUsersByIDs(ctx, ids)
}

func (r UserRepo) GetActiveByRoles(ctx context.Context, roles []string) ([]user.User, error) {
	return r.s.GetActiveByRoles(ctx, roles)
}
