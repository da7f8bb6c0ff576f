package repository

import (
	"context"
	"database/sql"
	"time"

	"harbor-chat/internal/domain/conversation"
	"harbor-chat/internal/domain/message"
	"harbor-chat/internal/domain/user"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConversationRepository is the durable store for conversations and
// their participant rows.
type ConversationRepository interface {
	// Create persists a conversation together with its initial
	// participant set as one atomic operation.
	Create(ctx context.Context, c *conversation.Conversation, participants []conversation.Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	// GetDirectPair finds the DIRECT conversation whose participant set
	// is exactly {a, b}, in either order.
	GetDirectPair(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, error)
	// GetUserConversations lists conversations where the user is an
	// active participant, newest activity first, participants preloaded.
	GetUserConversations(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error)
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error)
	// AddParticipant inserts a participant row; inserting an existing
	// (conversation, user) pair is a no-op. Reports whether a row was
	// actually inserted.
	AddParticipant(ctx context.Context, p *conversation.Participant) (bool, error)
	SetParticipantsActive(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID, active bool) error
	SetParticipantLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
	Touch(ctx context.Context, conversationID uuid.UUID, at time.Time) error
}

// MessageRepository is the durable store for messages, read marks and
// reactions.
type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	// GetConversationMessages returns messages created before the cursor
	// (zero cursor means "latest"), newest first.
	GetConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]message.Message, error)
	GetLatestMessage(ctx context.Context, conversationID uuid.UUID) (message.Message, error)
	// CountUnread counts messages created after the watermark that were
	// not sent by the user.
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since sql.NullTime) (int64, error)
	// MarkAllRead appends the user to the read set of every message in
	// the conversation not sent by them and not already read. Idempotent.
	MarkAllRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (int64, error)
	GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (message.MessageReaction, error)
	AddReaction(ctx context.Context, r *message.MessageReaction) error
	UpdateReaction(ctx context.Context, reactionID uuid.UUID, emoji string) error
	RemoveReaction(ctx context.Context, reactionID uuid.UUID) error
	GetMessageReactions(ctx context.Context, messageID uuid.UUID) ([]message.MessageReaction, error)
}

// UserRepository is the read side of the user directory this service
// consumes. Account management lives elsewhere.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]user.User, error)
	// GetActiveByRoles lists active users whose role is in the given
	// set. Used to seed broadcast channel membership.
	GetActiveByRoles(ctx context.Context, roles []string) ([]user.User, error)
}
