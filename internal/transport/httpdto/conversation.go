package httpdto

import (
	"time"

	"harbor-chat/internal/domain/conversation"
)

type CreateDirectConversationRequest struct {
	UserID string `json:"user_id"`
}

type CreateGroupConversationRequest struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	MemberIDs   []string                    `json:"member_ids"`
	Settings    *conversation.GroupSettings `json:"settings,omitempty"`
}

type CreateBroadcastChannelRequest struct {
	Name        string                          `json:"name"`
	Description string                          `json:"description"`
	Settings    *conversation.BroadcastSettings `json:"settings,omitempty"`
}

type AddParticipantsRequest struct {
	UserIDs []string `json:"user_ids"`
	Role    string   `json:"role,omitempty"`
}

type ParticipantResponse struct {
	UserID     string     `json:"user_id"`
	Role       string     `json:"role"`
	IsActive   bool       `json:"is_active"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	JoinedAt   time.Time  `json:"joined_at"`
}

type ConversationResponse struct {
	ID           string                `json:"id"`
	Type         string                `json:"type"`
	Name         string                `json:"name,omitempty"`
	Description  string                `json:"description,omitempty"`
	CreatedBy    string                `json:"created_by,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Participants []ParticipantResponse `json:"participants,omitempty"`
}

// ConversationViewResponse is one inbox entry.
type ConversationViewResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	LastMessage  *MessageResponse     `json:"last_message,omitempty"`
	UnreadCount  int64                `json:"unread_count"`
}

type ListConversationsResponse struct {
	Conversations []ConversationViewResponse `json:"conversations"`
}

type CreateBroadcastChannelResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Announced    int                  `json:"announced"`
}

func FromConversation(c conversation.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:        c.ID.String(),
		Type:      c.Type,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Name.Valid {
		resp.Name = c.Name.String
	}
	if c.Description.Valid {
		resp.Description = c.Description.String
	}
	if c.CreatedBy.Valid {
		resp.CreatedBy = c.CreatedBy.UUID.String()
	}
	for _, p := range c.Participants {
		resp.Participants = append(resp.Participants, FromParticipant(p))
	}
	return resp
}

func FromParticipant(p conversation.Participant) ParticipantResponse {
	resp := ParticipantResponse{
		UserID:   p.UserID.String(),
		Role:     p.Role,
		IsActive: p.IsActive,
		JoinedAt: p.JoinedAt,
	}
	if p.LastReadAt.Valid {
		t := p.LastReadAt.Time
		resp.LastReadAt = &t
	}
	return resp
}
