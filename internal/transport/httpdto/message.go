package httpdto

import (
	"time"

	"harbor-chat/internal/domain/message"
)

type SendMessageRequest struct {
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

type ToggleReactionRequest struct {
	Emoji string `json:"emoji"`
}

type ToggleReactionResponse struct {
	Outcome string `json:"outcome"`
}

type MessageResponse struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	SenderID       string            `json:"sender_id,omitempty"`
	Content        string            `json:"content"`
	Type           string            `json:"type"`
	Metadata       *message.Metadata `json:"metadata,omitempty"`
	ReplyToID      string            `json:"reply_to_id,omitempty"`
	ReadBy         []string          `json:"read_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func FromMessage(m message.Message) MessageResponse {
	resp := MessageResponse{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Content:        m.Content,
		Type:           m.Type,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
	if m.SenderID.Valid {
		resp.SenderID = m.SenderID.UUID.String()
	}
	if m.ReplyToID.Valid {
		resp.ReplyToID = m.ReplyToID.UUID.String()
	}
	for _, id := range m.ReadBy {
		resp.ReadBy = append(resp.ReadBy, id.String())
	}
	return resp
}

func FromMessageSlice(items []message.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(items))
	for _, m := range items {
		out = append(out, FromMessage(m))
	}
	return out
}
