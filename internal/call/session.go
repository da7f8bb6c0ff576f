package call

import (
	"time"
)

// Status is the call session state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusCalling    Status = "calling"
	StatusRinging    Status = "ringing"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
	StatusRejected   Status = "rejected"
)

// terminal reports whether a status auto-resets to idle.
func (s Status) terminal() bool {
	return s == StatusEnded || s == StatusRejected
}

// Session is the ephemeral per-call state. It exists only inside the
// two engines involved; there is no shared authoritative record, which
// is why every signal handler must tolerate duplicates and reordering.
type Session struct {
	CallID       string
	Type         string
	Caller       Party
	Receiver     Party
	IsOutgoing   bool
	Status       Status
	CallerPeerID string
	StartTime    time.Time
	EndTime      time.Time
	IsMuted      bool
	IsVideoOn    bool
	IsSpeakerOn  bool

	endSent bool // exactly-one outbound call_ended guard
}

// Snapshot returns a copy safe to hand out of the engine.
func (s *Session) Snapshot() Session {
	if s == nil {
		return Session{Status: StatusIdle}
	}
	return *s
}
