package conversation

import (
	"encoding/json"
	"fmt"
)

// Settings is a tagged variant: exactly the pointer matching the
// conversation type is set. Storage holds the JSON of the active
// variant; the type column disambiguates on the way back out.
type Settings struct {
	Direct    *DirectSettings
	Group     *GroupSettings
	Broadcast *BroadcastSettings
}

// DirectSettings has no tunables yet; the variant exists so direct
// conversations round-trip through the same storage column.
type DirectSettings struct{}

type GroupSettings struct {
	AllowMemberInvites bool `json:"allow_member_invites"`
	AllowReactions     bool `json:"allow_reactions"`
	AllowReplies       bool `json:"allow_replies"`
}

type BroadcastSettings struct {
	OnlyAdminsCanPost bool `json:"only_admins_can_post"`
	AllowReactions    bool `json:"allow_reactions"`
	AllowReplies      bool `json:"allow_replies"`
}

// DefaultSettings returns the variant for a conversation type with its
// defaults applied.
func DefaultSettings(convType string) Settings {
	switch convType {
	case TypeGroup:
		return Settings{Group: &GroupSettings{
			AllowReactions: true,
			AllowReplies:   true,
		}}
	case TypeBroadcast:
		return Settings{Broadcast: &BroadcastSettings{
			OnlyAdminsCanPost: true,
			AllowReactions:    true,
		}}
	default:
		return Settings{Direct: &DirectSettings{}}
	}
}

// EncodeSettings serializes the active variant for storage.
func EncodeSettings(s Settings) (string, error) {
	var v any
	switch {
	case s.Direct != nil:
		v = s.Direct
	case s.Group != nil:
		v = s.Group
	case s.Broadcast != nil:
		v = s.Broadcast
	default:
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode conversation settings: %w", err)
	}
	return string(data), nil
}

// DecodeSettings deserializes stored settings into the variant named by
// the conversation type.
func DecodeSettings(convType, raw string) (Settings, error) {
	if raw == "" {
		return DefaultSettings(convType), nil
	}
	var (
		s   Settings
		err error
	)
	switch convType {
	case TypeGroup:
		var gs GroupSettings
		err = json.Unmarshal([]byte(raw), &gs)
		s.Group = &gs
	case TypeBroadcast:
		var bs BroadcastSettings
		err = json.Unmarshal([]byte(raw), &bs)
		s.Broadcast = &bs
	default:
		var ds DirectSettings
		err = json.Unmarshal([]byte(raw), &ds)
		s.Direct = &ds
	}
	if err != nil {
		return Settings{}, fmt.Errorf("decode %s settings: %w", convType, err)
	}
	return s, nil
}
