package call

import (
	"sync"
)

// ToneKind names the audible feedback cues.
type ToneKind string

const (
	ToneRingtone  ToneKind = "ringtone"  // incoming call
	ToneRingback  ToneKind = "ringback"  // outgoing call
	ToneConnected ToneKind = "connected" // first media
	ToneBusy      ToneKind = "busy"      // rejected
	ToneEnd       ToneKind = "end"       // termination
)

// ToneHandle stops one playing tone.
type ToneHandle interface {
	Stop()
}

// TonePlayer starts playback of a tone kind. Implementations own the
// audio backend.
type TonePlayer interface {
	Play(kind ToneKind) (ToneHandle, error)
}

// ToneController holds the single "currently playing" slot per call
// session. Starting a tone silences the previous one; Stop must run
// before the audio layer itself is released.
type ToneController struct {
	mu      sync.Mutex
	player  TonePlayer
	current ToneHandle
}

func NewToneController(player TonePlayer) *ToneController {
	return &ToneController{player: player}
}

// Play switches the current tone to kind. A player error leaves the
// slot empty; feedback is best-effort.
func (c *ToneController) Play(kind ToneKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Stop()
		c.current = nil
	}
	if c.player == nil {
		return
	}
	handle, err := c.player.Play(kind)
	if err != nil {
		return
	}
	c.current = handle
}

// Stop silences the current tone, if any.
func (c *ToneController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Stop()
		c.current = nil
	}
}
