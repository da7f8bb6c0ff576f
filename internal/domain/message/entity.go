package message

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message types
const (
	TypeText   = "TEXT"
	TypeSystem = "SYSTEM"
)

// System actions recorded in metadata
const (
	SystemActionJoin = "join"
)

// Message represents the messages table. SenderID is null for SYSTEM
// messages. ReadBy only grows and never contains the sender.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.NullUUID
	Content        string
	Type           string
	Metadata       *Metadata
	ReplyToID      uuid.NullUUID
	ReadBy         []uuid.UUID
	CreatedAt      time.Time
}

// Metadata carries structured descriptors for system messages and
// reply context.
type Metadata struct {
	SystemAction string   `json:"system_action,omitempty"`
	UserNames    []string `json:"user_names,omitempty"`
	ChannelName  string   `json:"channel_name,omitempty"`
}

// MessageReaction represents message_reactions. At most one live row
// per (message, user).
type MessageReaction struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	UserID    uuid.UUID
	Emoji     string
	CreatedAt time.Time
}

// ReactionOutcome is the tri-state result of toggling a reaction.
type ReactionOutcome string

const (
	ReactionAdded   ReactionOutcome = "added"
	ReactionChanged ReactionOutcome = "changed"
	ReactionRemoved ReactionOutcome = "removed"
)

func (Message) TableName() string {
	return "messages"
}

func (MessageReaction) TableName() string {
	return "message_reactions"
}

// IsReadBy reports whether the user already appears in ReadBy.
func (m Message) IsReadBy(userID uuid.UUID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// EncodeMetadata serializes metadata for storage. Nil metadata encodes
// to the empty string.
func EncodeMetadata(md *Metadata) (string, error) {
	if md == nil {
		return "", nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode message metadata: %w", err)
	}
	return string(data), nil
}

// DecodeMetadata deserializes stored metadata.
func DecodeMetadata(raw sql.NullString) (*Metadata, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var md Metadata
	if err := json.Unmarshal([]byte(raw.String), &md); err != nil {
		return nil, fmt.Errorf("decode message metadata: %w", err)
	}
	return &md, nil
}
