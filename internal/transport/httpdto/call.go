package httpdto

import (
	"harbor-chat/internal/call"
)

type CallPartyDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// CallSignalRequest is the wire form of a call signal posted by a
// client for relay to the counterpart.
type CallSignalRequest struct {
	Type     string       `json:"type"`
	CallID   string       `json:"call_id"`
	CallType string       `json:"call_type"`
	Caller   CallPartyDTO `json:"caller"`
	Receiver CallPartyDTO `json:"receiver"`
	PeerID   string       `json:"peer_id,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

func (r CallSignalRequest) ToSignal() call.Signal {
	return call.Signal{
		Type:     r.Type,
		CallID:   r.CallID,
		CallType: r.CallType,
		Caller:   call.Party{ID: r.Caller.ID, Name: r.Caller.Name, Image: r.Caller.Image},
		Receiver: call.Party{ID: r.Receiver.ID, Name: r.Receiver.Name, Image: r.Receiver.Image},
		PeerID:   r.PeerID,
		Reason:   r.Reason,
	}
}

type CallSignalResponse struct {
	Delivered bool `json:"delivered"`
}

type ConnectedUsersResponse struct {
	UserIDs []string `json:"user_ids"`
}

type CallConfigResponse struct {
	StunServers []string `json:"stun_servers"`
}
