package call

import (
	"context"
)

// Signal kinds, matching the event names pushed to clients.
const (
	SignalIncoming = "call_incoming"
	SignalAccepted = "call_accepted"
	SignalRejected = "call_rejected"
	SignalEnded    = "call_ended"
)

// Call types
const (
	TypeAudio = "audio"
	TypeVideo = "video"
)

// Party identifies one side of a call.
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Signal is one of the four messages that drive the call state
// machines on both sides. PeerID is set on call_incoming and
// call_accepted; Reason on call_rejected.
type Signal struct {
	Type     string `json:"type"`
	CallID   string `json:"call_id"`
	CallType string `json:"call_type"`
	Caller   Party  `json:"caller"`
	Receiver Party  `json:"receiver"`
	PeerID   string `json:"peer_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Valid checks the structural invariants of a signal.
func (s Signal) Valid() bool {
	switch s.Type {
	case SignalIncoming, SignalAccepted, SignalRejected, SignalEnded:
	default:
		return false
	}
	if s.CallID == "" || s.Caller.ID == "" || s.Receiver.ID == "" {
		return false
	}
	if s.Type == SignalIncoming || s.Type == SignalAccepted {
		return s.PeerID != ""
	}
	return true
}

// Counterpart returns the party a signal should be routed to when sent
// by the given user.
func (s Signal) Counterpart(senderID string) Party {
	if s.Caller.ID == senderID {
		return s.Receiver
	}
	return s.Caller
}

// SignalSender carries outbound signals to the counterpart. The engine
// never talks to the transport directly.
type SignalSender interface {
	Send(ctx context.Context, sig Signal) error
}

// SignalSenderFunc adapts a function to SignalSender.
type SignalSenderFunc func(ctx context.Context, sig Signal) error

func (f SignalSenderFunc) Send(ctx context.Context, sig Signal) error {
	return f(ctx, sig)
}
