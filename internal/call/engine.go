// Package call implements the peer-to-peer call signaling engine: a
// per-user state machine driven by the four call signals plus local
// user actions, coordinating media acquisition, peer connections and
// audible feedback.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	harbor_errors "harbor-chat/pkg/errors"
	"harbor-chat/pkg/logger"

	"github.com/google/uuid"
)

// Config carries the engine timers. Zero values select the defaults.
type Config struct {
	// ResetDelay is how long a terminal state stays visible before the
	// session auto-resets to idle.
	ResetDelay time.Duration
	// MediaWait bounds how long an inbound peer connection waits for
	// local media to become ready before the call attempt fails.
	MediaWait time.Duration
}

const (
	defaultResetDelay = 2500 * time.Millisecond
	defaultMediaWait  = 10 * time.Second
)

// Engine is one user's call state machine. All transitions are
// serialized behind one mutex; every signal handler is idempotent with
// respect to duplicate delivery.
type Engine struct {
	mu     sync.Mutex
	self   Party
	conns  *ConnectionRegistry
	media  MediaDevices
	sender SignalSender
	tones  *ToneController
	log    *logger.Logger
	cfg    Config

	session     *Session
	transport   PeerTransport
	localStream MediaStream
	peerCall    PeerCall
	mediaReady  chan struct{}
	resetTimer  *time.Timer
}

func NewEngine(self Party, conns *ConnectionRegistry, media MediaDevices, sender SignalSender, tones *ToneController, log *logger.Logger, cfg Config) *Engine {
	if cfg.ResetDelay == 0 {
		cfg.ResetDelay = defaultResetDelay
	}
	if cfg.MediaWait == 0 {
		cfg.MediaWait = defaultMediaWait
	}
	return &Engine{
		self:   self,
		conns:  conns,
		media:  media,
		sender: sender,
		tones:  tones,
		log:    log,
		cfg:    cfg,
	}
}

// Session returns a snapshot of the current call state.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Snapshot()
}

// StartCall places an outgoing call. Local media is acquired first;
// failure there reverts to idle with every partially-acquired track
// released, and no signal leaves the engine.
func (e *Engine) StartCall(ctx context.Context, receiver Party, callType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return harbor_errors.ErrConflict
	}

	transport, err := e.acquireTransportLocked(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", harbor_errors.ErrTransport, err)
	}

	wantVideo := callType == TypeVideo
	stream, err := e.media.Acquire(ctx, wantVideo)
	if err != nil {
		stopTracks(stream)
		return fmt.Errorf("%w: %v", harbor_errors.ErrTransport, err)
	}

	callID := uuid.New().String()
	e.session = &Session{
		CallID:       callID,
		Type:         callType,
		Caller:       e.self,
		Receiver:     receiver,
		IsOutgoing:   true,
		Status:       StatusCalling,
		CallerPeerID: transport.ID(),
		IsVideoOn:    wantVideo,
	}
	e.transport = transport
	e.localStream = stream

	sig := Signal{
		Type:     SignalIncoming,
		CallID:   callID,
		CallType: callType,
		Caller:   e.self,
		Receiver: receiver,
		PeerID:   transport.ID(),
	}
	if err := e.sender.Send(ctx, sig); err != nil {
		stopTracks(e.localStream)
		e.localStream = nil
		e.session = nil
		return fmt.Errorf("%w: %v", harbor_errors.ErrTransport, err)
	}

	e.tones.Play(ToneRingback)
	return nil
}

// HandleSignal feeds one inbound signal into the state machine.
// Unknown, duplicate and out-of-order signals are absorbed, never
// errors; a call_ended arriving while idle is a no-op.
func (e *Engine) HandleSignal(ctx context.Context, sig Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch sig.Type {
	case SignalIncoming:
		e.handleIncomingLocked(ctx, sig)
	case SignalAccepted:
		e.handleAcceptedLocked(ctx, sig)
	case SignalRejected:
		e.handleRejectedLocked(sig)
	case SignalEnded:
		e.handleEndedLocked(sig)
	default:
		e.log.Warnf("call: ignoring unknown signal type %q", sig.Type)
	}
}

func (e *Engine) handleIncomingLocked(ctx context.Context, sig Signal) {
	if e.session != nil {
		if e.session.CallID == sig.CallID {
			return // duplicate
		}
		// Already on a call: turn the newcomer away without touching
		// the active session.
		reject := Signal{
			Type:     SignalRejected,
			CallID:   sig.CallID,
			CallType: sig.CallType,
			Caller:   sig.Caller,
			Receiver: sig.Receiver,
			Reason:   "busy",
		}
		if err := e.sender.Send(ctx, reject); err != nil {
			e.log.Warnf("call %s: busy reject failed: %v", sig.CallID, err)
		}
		return
	}

	e.session = &Session{
		CallID:       sig.CallID,
		Type:         sig.CallType,
		Caller:       sig.Caller,
		Receiver:     e.self,
		IsOutgoing:   false,
		Status:       StatusRinging,
		CallerPeerID: sig.PeerID,
	}
	e.tones.Play(ToneRingtone)
}

func (e *Engine) handleAcceptedLocked(ctx context.Context, sig Signal) {
	s := e.session
	if s == nil || s.CallID != sig.CallID || !s.IsOutgoing || s.Status != StatusCalling {
		return
	}

	e.tones.Stop()
	s.Status = StatusConnecting

	// Dial the address the accept signal advertises; the receiver's
	// transport address may differ per call.
	pc, err := e.transport.Dial(ctx, sig.PeerID, e.localStream)
	if err != nil {
		e.log.Errorf("call %s: dial %s failed: %v", s.CallID, sig.PeerID, err)
		e.conns.Invalidate(e.self.ID)
		e.endLocked(ctx)
		return
	}
	e.attachPeerCallLocked(s.CallID, pc)
}

func (e *Engine) handleRejectedLocked(sig Signal) {
	s := e.session
	if s == nil || s.CallID != sig.CallID {
		return
	}
	if s.Status.terminal() {
		return
	}
	e.log.Infof("call %s rejected: %s", s.CallID, sig.Reason)
	e.teardownLocked(StatusRejected, ToneBusy)
}

func (e *Engine) handleEndedLocked(sig Signal) {
	s := e.session
	if s == nil || s.CallID != sig.CallID {
		return
	}
	if s.Status.terminal() {
		return
	}
	// The remote side terminated; local cleanup only, never echo a
	// second call_ended back.
	e.teardownLocked(StatusEnded, ToneEnd)
}

// AcceptCall answers the ringing call: stop the ringtone, acquire local
// media now, then advertise this side's peer address back to the
// caller. The outbound peer connection is the caller's job; we wait for
// it to arrive.
func (e *Engine) AcceptCall(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil || s.IsOutgoing || s.Status != StatusRinging {
		return harbor_errors.ErrConflict
	}

	e.tones.Stop()
	s.Status = StatusConnecting

	transport, err := e.acquireTransportLocked(ctx)
	if err != nil {
		e.log.Errorf("call %s: transport unavailable: %v", s.CallID, err)
		e.teardownLocked(StatusEnded, ToneEnd)
		return fmt.Errorf("%w: %v", harbor_errors.ErrTransport, err)
	}
	e.transport = transport

	callID := s.CallID
	ready := make(chan struct{})
	e.mediaReady = ready
	transport.OnIncomingCall(func(pc PeerCall) {
		go e.answerInbound(callID, ready, pc)
	})

	wantVideo := s.Type == TypeVideo
	stream, err := e.media.Acquire(ctx, wantVideo)
	if err != nil {
		stopTracks(stream)
		e.log.Errorf("call %s: media acquisition failed: %v", s.CallID, err)
		e.teardownLocked(StatusEnded, ToneEnd)
		return fmt.Errorf("%w: %v", harbor_errors.ErrTransport, err)
	}
	e.localStream = stream
	s.IsVideoOn = wantVideo
	close(ready)

	sig := Signal{
		Type:     SignalAccepted,
		CallID:   s.CallID,
		CallType: s.Type,
		Caller:   s.Caller,
		Receiver: e.self,
		PeerID:   transport.ID(),
	}
	if err := e.sender.Send(ctx, sig); err != nil {
		e.log.Errorf("call %s: accept signal failed: %v", s.CallID, err)
		e.teardownLocked(StatusEnded, ToneEnd)
		return fmt.Errorf("%w: %v", harbor_errors.ErrTransport, err)
	}
	return nil
}

// answerInbound bridges the race between the accept round trip and
// local media readiness: the inbound connection waits, bounded, for the
// media the accept path is acquiring.
func (e *Engine) answerInbound(callID string, ready <-chan struct{}, pc PeerCall) {
	timer := time.NewTimer(e.cfg.MediaWait)
	defer timer.Stop()

	select {
	case <-ready:
	case <-timer.C:
		e.mu.Lock()
		defer e.mu.Unlock()
		// The connection was never attached, so teardown will not reach
		// it; close it here or the caller's side never sees a peer close.
		pc.Close()
		if e.session == nil || e.session.CallID != callID {
			return
		}
		e.log.Errorf("call %s: %v: local media not ready within %s", callID, harbor_errors.ErrTimeout, e.cfg.MediaWait)
		e.teardownLocked(StatusEnded, ToneEnd)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil || s.CallID != callID || s.Status != StatusConnecting {
		pc.Close()
		return
	}
	if err := pc.Answer(e.localStream); err != nil {
		pc.Close()
		e.log.Errorf("call %s: answer failed: %v", callID, err)
		e.teardownLocked(StatusEnded, ToneEnd)
		return
	}
	e.attachPeerCallLocked(callID, pc)
}

// RejectCall declines the ringing call. No media was ever acquired on
// this path, so the session drops straight back to idle.
func (e *Engine) RejectCall(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil || s.IsOutgoing || s.Status != StatusRinging {
		return harbor_errors.ErrConflict
	}

	e.tones.Stop()
	sig := Signal{
		Type:     SignalRejected,
		CallID:   s.CallID,
		CallType: s.Type,
		Caller:   s.Caller,
		Receiver: e.self,
		Reason:   reason,
	}
	if err := e.sender.Send(ctx, sig); err != nil {
		e.log.Warnf("call %s: reject signal failed: %v", s.CallID, err)
	}
	e.clearResetTimerLocked()
	e.session = nil
	return nil
}

// EndCall is the one place an outbound call_ended leaves the engine,
// and only when the session actually names a call and both parties.
// Safe at any state, including mid-media-acquisition and when already
// idle.
func (e *Engine) EndCall(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endLocked(ctx)
	return nil
}

func (e *Engine) endLocked(ctx context.Context) {
	s := e.session
	if s == nil {
		return
	}
	if s.Status.terminal() {
		return
	}
	if !s.endSent && s.CallID != "" && s.Caller.ID != "" && s.Receiver.ID != "" {
		sig := Signal{
			Type:     SignalEnded,
			CallID:   s.CallID,
			CallType: s.Type,
			Caller:   s.Caller,
			Receiver: s.Receiver,
		}
		if err := e.sender.Send(ctx, sig); err != nil {
			e.log.Warnf("call %s: end signal failed: %v", s.CallID, err)
		}
		s.endSent = true
	}
	e.teardownLocked(StatusEnded, ToneEnd)
}

// ToggleMute flips the microphone state of the active session.
func (e *Engine) ToggleMute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return false
	}
	e.session.IsMuted = !e.session.IsMuted
	return e.session.IsMuted
}

// ToggleVideo flips the camera state of the active session.
func (e *Engine) ToggleVideo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return false
	}
	e.session.IsVideoOn = !e.session.IsVideoOn
	return e.session.IsVideoOn
}

// ToggleSpeaker flips the speaker route of the active session.
func (e *Engine) ToggleSpeaker() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return false
	}
	e.session.IsSpeakerOn = !e.session.IsSpeakerOn
	return e.session.IsSpeakerOn
}

func (e *Engine) attachPeerCallLocked(callID string, pc PeerCall) {
	e.peerCall = pc
	pc.OnStream(func(MediaStream) {
		e.onPeerStream(callID)
	})
	pc.OnClose(func(err error) {
		e.onPeerClosed(callID, err)
	})
}

func (e *Engine) onPeerStream(callID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil || s.CallID != callID || s.Status != StatusConnecting {
		return
	}
	s.Status = StatusConnected
	s.StartTime = time.Now()
	e.tones.Play(ToneConnected)
}

func (e *Engine) onPeerClosed(callID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil || s.CallID != callID || s.Status.terminal() {
		return
	}
	if err != nil {
		e.log.Infof("call %s: peer channel closed: %v", callID, err)
	}
	// The remote side closed; cleaning up locally must not emit a
	// second call_ended.
	e.teardownLocked(StatusEnded, ToneEnd)
}

// teardownLocked is the single exit path: silence feedback, release the
// peer call and every local media track, show the terminal state, then
// auto-reset to idle after the display delay.
func (e *Engine) teardownLocked(status Status, tone ToneKind) {
	s := e.session
	if s == nil || s.Status.terminal() {
		return
	}
	s.endSent = true

	e.tones.Stop()
	if e.peerCall != nil {
		e.peerCall.Close()
		e.peerCall = nil
	}
	stopTracks(e.localStream)
	e.localStream = nil
	e.mediaReady = nil

	s.Status = status
	s.EndTime = time.Now()
	e.tones.Play(tone)
	e.scheduleResetLocked()
}

func (e *Engine) scheduleResetLocked() {
	e.clearResetTimerLocked()
	e.resetTimer = time.AfterFunc(e.cfg.ResetDelay, e.reset)
}

func (e *Engine) clearResetTimerLocked() {
	if e.resetTimer != nil {
		e.resetTimer.Stop()
		e.resetTimer = nil
	}
}

func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || !e.session.Status.terminal() {
		return
	}
	e.tones.Stop()
	e.session = nil
	e.resetTimer = nil
}

// acquireTransportLocked returns a live peer handle for this user. An
// address-in-use failure clears the cached handle so the retry builds a
// fresh one instead of redialing a dead reference.
func (e *Engine) acquireTransportLocked(ctx context.Context) (PeerTransport, error) {
	transport, err := e.conns.GetOrCreate(ctx, e.self.ID)
	if errors.Is(err, ErrAddrInUse) {
		e.conns.Invalidate(e.self.ID)
		transport, err = e.conns.GetOrCreate(ctx, e.self.ID)
	}
	return transport, err
}
