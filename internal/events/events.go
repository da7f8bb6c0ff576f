package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names the push events clients can receive on their delivery
// channel.
type Type string

const (
	TypeNewConversation     Type = "new_conversation"
	TypeNewBroadcastChannel Type = "new_broadcast_channel"
	TypeNewMessage          Type = "new_message"
	TypeNewBroadcastMessage Type = "new_broadcast_message"
	TypeMessagesRead        Type = "messages_read"

	TypeCallIncoming Type = "call_incoming"
	TypeCallAccepted Type = "call_accepted"
	TypeCallRejected Type = "call_rejected"
	TypeCallEnded    Type = "call_ended"
)

// Event is the envelope written to a user's delivery channel.
type Event struct {
	Type       Type            `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an event envelope from a typed payload.
func New(t Type, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{Type: t, Data: data, OccurredAt: time.Now()}, nil
}

// MustNew is New for payloads that cannot fail to marshal; it panics
// otherwise. Used with literal structs at call sites.
func MustNew(t Type, payload any) Event {
	ev, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

// MessagesReadPayload is the body of a messages_read event.
type MessagesReadPayload struct {
	ConversationID string    `json:"conversation_id"`
	ReadByUserID   string    `json:"read_by_user_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// BroadcastMessagePayload wraps a message with the channel name so
// clients can render channel-specific notifications.
type BroadcastMessagePayload struct {
	ChannelName string          `json:"channel_name"`
	Message     json.RawMessage `json:"message"`
}
