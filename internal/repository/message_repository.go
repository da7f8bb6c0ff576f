package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"harbor-chat/internal/domain/message"
	harbor_errors "harbor-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PostgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	metadata, err := message.EncodeMetadata(m.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, metadata, reply_to_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, m.Type, metadata, m.ReplyToID, m.CreatedAt)
	return err
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, conversation_id, sender_id, content, type, metadata, reply_to_id, created_at
		FROM messages WHERE id = $1
	`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return message.Message{}, harbor_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	m.ReadBy, err = r.loadReadBy(ctx, id)
	if err != nil {
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) GetConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]message.Message, error) {
	if before.IsZero() {
		before = time.Now().Add(time.Second)
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, type, metadata, reply_to_id, created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		messages[i].ReadBy, err = r.loadReadBy(ctx, messages[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return messages, nil
}

func (r *PostgresMessageRepository) GetLatestMessage(ctx context.Context, conversationID uuid.UUID) (message.Message, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, conversation_id, sender_id, content, type, metadata, reply_to_id, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return message.Message{}, harbor_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since sql.NullTime) (int64, error) {
	watermark := time.Time{}
	if since.Valid {
		watermark = since.Time
	}
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
		  AND created_at > $2
		  AND (sender_id IS NULL OR sender_id <> $3)
	`, conversationID, watermark, userID).Scan(&count)
	return count, err
}

func (r *PostgresMessageRepository) MarkAllRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (int64, error) {
	// Insert-select keeps this idempotent: already-read rows conflict
	// and are skipped.
	tag, err := r.db.Exec(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $2, $3
		FROM messages m
		WHERE m.conversation_id = $1
		  AND (m.sender_id IS NULL OR m.sender_id <> $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, conversationID, userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresMessageRepository) GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (message.MessageReaction, error) {
	var reaction message.MessageReaction
	err := r.db.QueryRow(ctx, `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1 AND user_id = $2
	`, messageID, userID).Scan(&reaction.ID, &reaction.MessageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return message.MessageReaction{}, harbor_errors.ErrNotFound
		}
		return message.MessageReaction{}, err
	}
	return reaction, nil
}

func (r *PostgresMessageRepository) AddReaction(ctx context.Context, reaction *message.MessageReaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_reactions (id, message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, reaction.ID, reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt)
	return err
}

func (r *PostgresMessageRepository) UpdateReaction(ctx context.Context, reactionID uuid.UUID, emoji string) error {
	tag, err := r.db.Exec(ctx, `UPDATE message_reactions SET emoji = $2 WHERE id = $1`, reactionID, emoji)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return harbor_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) RemoveReaction(ctx context.Context, reactionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM message_reactions WHERE id = $1`, reactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return harbor_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) GetMessageReactions(ctx context.Context, messageID uuid.UUID) ([]message.MessageReaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []message.MessageReaction
	for rows.Next() {
		var reaction message.MessageReaction
		if err := rows.Scan(&reaction.ID, &reaction.MessageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction)
	}
	return reactions, rows.Err()
}

func (r *PostgresMessageRepository) loadReadBy(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id FROM message_reads WHERE message_id = $1 ORDER BY read_at
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readBy []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		readBy = append(readBy, id)
	}
	return readBy, rows.Err()
}

func scanMessage(row pgx.Row) (message.Message, error) {
	var m message.Message
	var rawMetadata sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &rawMetadata, &m.ReplyToID, &m.CreatedAt); err != nil {
		return message.Message{}, err
	}
	metadata, err := message.DecodeMetadata(rawMetadata)
	if err != nil {
		return message.Message{}, err
	}
	m.Metadata = metadata
	return m, nil
}
