package repository

import (
	"context"
	"errors"
	"time"

	"harbor-chat/internal/domain/conversation"
	harbor_errors "harbor-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresConversationRepository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewConversationRepository builds a repository over a pool. The pool is
// kept separately so Create can open a transaction for the
// conversation-plus-participants insert.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &PostgresConversationRepository{db: pool, pool: pool}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *conversation.Conversation, participants []conversation.Participant) error {
	settings, err := conversation.EncodeSettings(c.Settings)
	if err != nil {
		return err
	}

	// A unique direct_key makes concurrent creates for the same pair
	// collide, so callers converge on the winner's row.
	var directKey *string
	if c.Type == conversation.TypeDirect && len(participants) == 2 {
		a, b := participants[0].UserID.String(), participants[1].UserID.String()
		if a > b {
			a, b = b, a
		}
		key := a + ":" + b
		directKey = &key
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, type, name, description, settings, direct_key, created_by, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.Type, c.Name, c.Description, settings, directKey, c.CreatedBy, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return harbor_errors.ErrAlreadyExists
		}
		return err
	}

	for i := range participants {
		p := participants[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, role, is_active, last_read_at, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (conversation_id, user_id) DO NOTHING
		`, p.ConversationID, p.UserID, p.Role, p.IsActive, p.LastReadAt, p.JoinedAt)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	c.Participants = participants
	return nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, type, name, description, settings, created_by, is_active, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id)

	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.Conversation{}, harbor_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}

	participants, err := r.loadParticipants(ctx, id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	c.Participants = participants
	return c, nil
}

func (r *PostgresConversationRepository) GetDirectPair(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, error) {
	// The pair lookup is order-independent: the participant set must be
	// exactly {a, b}, active or not.
	row := r.db.QueryRow(ctx, `
		SELECT c.id, c.type, c.name, c.description, c.settings, c.created_by, c.is_active, c.created_at, c.updated_at
		FROM conversations c
		WHERE c.type = 'DIRECT'
		  AND (SELECT COUNT(*) FROM conversation_participants p WHERE p.conversation_id = c.id) = 2
		  AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $1)
		  AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $2)
		LIMIT 1
	`, a, b)

	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.Conversation{}, harbor_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}

	participants, err := r.loadParticipants(ctx, c.ID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	c.Participants = participants
	return c, nil
}

func (r *PostgresConversationRepository) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.type, c.name, c.description, c.settings, c.created_by, c.is_active, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1 AND p.is_active = TRUE
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []conversation.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range conversations {
		participants, err := r.loadParticipants(ctx, conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].Participants = participants
	}
	return conversations, nil
}

func (r *PostgresConversationRepository) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error) {
	var p conversation.Participant
	err := r.db.QueryRow(ctx, `
		SELECT conversation_id, user_id, role, is_active, last_read_at, joined_at
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID).Scan(&p.ConversationID, &p.UserID, &p.Role, &p.IsActive, &p.LastReadAt, &p.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.Participant{}, harbor_errors.ErrNotFound
		}
		return conversation.Participant{}, err
	}
	return p, nil
}

func (r *PostgresConversationRepository) AddParticipant(ctx context.Context, p *conversation.Participant) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, role, is_active, last_read_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`, p.ConversationID, p.UserID, p.Role, p.IsActive, p.LastReadAt, p.JoinedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresConversationRepository) SetParticipantsActive(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID, active bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversation_participants
		SET is_active = $3
		WHERE conversation_id = $1 AND user_id = ANY($2)
	`, conversationID, userIDs, active)
	return err
}

func (r *PostgresConversationRepository) SetParticipantLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversation_participants
		SET last_read_at = $3
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return harbor_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) Touch(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, conversationID, at)
	return err
}

func (r *PostgresConversationRepository) loadParticipants(ctx context.Context, conversationID uuid.UUID) ([]conversation.Participant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT conversation_id, user_id, role, is_active, last_read_at, joined_at
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []conversation.Participant
	for rows.Next() {
		var p conversation.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.IsActive, &p.LastReadAt, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func scanConversation(row pgx.Row) (conversation.Conversation, error) {
	var c conversation.Conversation
	var rawSettings string
	if err := row.Scan(&c.ID, &c.Type, &c.Name, &c.Description, &rawSettings, &c.CreatedBy, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return conversation.Conversation{}, err
	}
	settings, err := conversation.DecodeSettings(c.Type, rawSettings)
	if err != nil {
		return conversation.Conversation{}, err
	}
	c.Settings = settings
	return c, nil
}
