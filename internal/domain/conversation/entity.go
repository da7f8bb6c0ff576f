package conversation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Conversation types
const (
	TypeDirect    = "DIRECT"
	TypeGroup     = "GROUP"
	TypeBroadcast = "BROADCAST"
)

// Participant roles
const (
	RoleAdmin     = "ADMIN"
	RoleModerator = "MODERATOR"
	RoleMember    = "MEMBER"
	RoleReadOnly  = "READONLY"
	RoleMuted     = "MUTED"
)

// Conversation represents the conversations table
type Conversation struct {
	ID          uuid.UUID
	Type        string
	Name        sql.NullString
	Description sql.NullString
	Settings    Settings
	CreatedBy   uuid.NullUUID
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Relationships
	Participants []Participant
}

// Participant represents the conversation_participants table.
// IsActive=false hides the conversation from that user's list without
// touching the other participants.
type Participant struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Role           string
	IsActive       bool
	LastReadAt     sql.NullTime
	JoinedAt       time.Time
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "conversation_participants"
}

// ActiveParticipantIDs returns the user ids of active participants,
// excluding the given user.
func (c Conversation) ActiveParticipantIDs(except uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.IsActive && p.UserID != except {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// ParticipantFor returns the participant row for a user, if any.
func (c Conversation) ParticipantFor(userID uuid.UUID) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}
