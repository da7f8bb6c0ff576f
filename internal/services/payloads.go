package services

import (
	"time"

	"harbor-chat/internal/domain/conversation"
	"harbor-chat/internal/domain/message"
)

// Wire shapes for push events. The sql.Null* fields of the domain types
// do not marshal cleanly, so events carry these views instead.

type ConversationPayload struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MessagePayload struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	SenderID       string            `json:"sender_id,omitempty"`
	Content        string            `json:"content"`
	Type           string            `json:"type"`
	Metadata       *message.Metadata `json:"metadata,omitempty"`
	ReplyToID      string            `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func conversationPayload(c conversation.Conversation) ConversationPayload {
	p := ConversationPayload{
		ID:        c.ID.String(),
		Type:      c.Type,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Name.Valid {
		p.Name = c.Name.String
	}
	if c.Description.Valid {
		p.Description = c.Description.String
	}
	if c.CreatedBy.Valid {
		p.CreatedBy = c.CreatedBy.UUID.String()
	}
	return p
}

func messagePayload(m message.Message) MessagePayload {
	p := MessagePayload{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Content:        m.Content,
		Type:           m.Type,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
	if m.SenderID.Valid {
		p.SenderID = m.SenderID.UUID.String()
	}
	if m.ReplyToID.Valid {
		p.ReplyToID = m.ReplyToID.UUID.String()
	}
	return p
}
