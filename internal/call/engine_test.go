package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"harbor-chat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []Signal
}

func (s *fakeSender) Send(_ context.Context, sig Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sig)
	return nil
}

func (s *fakeSender) count(signalType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sig := range s.sent {
		if sig.Type == signalType {
			n++
		}
	}
	return n
}

func (s *fakeSender) last(signalType string) (Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Type == signalType {
			return s.sent[i], true
		}
	}
	return Signal{}, false
}

type fakeTrack struct {
	mu      sync.Mutex
	kind    string
	stopped bool
}

func (t *fakeTrack) Kind() string { return t.kind }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	tracks []MediaTrack
}

func (s *fakeStream) Tracks() []MediaTrack { return s.tracks }

type fakeMedia struct {
	mu     sync.Mutex
	err    error
	last   *fakeStream
	videos []bool
}

func (m *fakeMedia) Acquire(_ context.Context, video bool) (MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos = append(m.videos, video)
	stream := &fakeStream{tracks: []MediaTrack{&fakeTrack{kind: "audio"}}}
	if video {
		stream.tracks = append(stream.tracks, &fakeTrack{kind: "video"})
	}
	m.last = stream
	if m.err != nil {
		// Partial acquisition still hands back what was grabbed.
		return stream, m.err
	}
	return stream, nil
}

func (m *fakeMedia) lastStream() *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type fakePeerCall struct {
	mu        sync.Mutex
	answered  bool
	answerErr error
	closed    bool
	onStream  func(MediaStream)
	onClose   func(error)
}

func (p *fakePeerCall) Answer(MediaStream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.answerErr != nil {
		return p.answerErr
	}
	p.answered = true
	return nil
}

func (p *fakePeerCall) OnStream(fn func(MediaStream)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStream = fn
}

func (p *fakePeerCall) OnClose(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = fn
}

func (p *fakePeerCall) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeerCall) fireStream() {
	p.mu.Lock()
	fn := p.onStream
	p.mu.Unlock()
	if fn != nil {
		fn(&fakeStream{})
	}
}

func (p *fakePeerCall) fireClose(err error) {
	p.mu.Lock()
	fn := p.onClose
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (p *fakePeerCall) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeerCall) isAnswered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answered
}

type fakeTransport struct {
	mu         sync.Mutex
	id         string
	alive      bool
	dialErr    error
	dialed     []string
	calls      []*fakePeerCall
	onIncoming func(PeerCall)
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

func (t *fakeTransport) OnIncomingCall(fn func(PeerCall)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onIncoming = fn
}

func (t *fakeTransport) Dial(_ context.Context, remotePeerID string, _ MediaStream) (PeerCall, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialed = append(t.dialed, remotePeerID)
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	pc := &fakePeerCall{}
	t.calls = append(t.calls, pc)
	return pc, nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alive = false
}

func (t *fakeTransport) deliverInbound(pc PeerCall) {
	t.mu.Lock()
	fn := t.onIncoming
	t.mu.Unlock()
	if fn != nil {
		fn(pc)
	}
}

func (t *fakeTransport) lastDialed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.dialed) == 0 {
		return ""
	}
	return t.dialed[len(t.dialed)-1]
}

func (t *fakeTransport) lastCall() *fakePeerCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.calls) == 0 {
		return nil
	}
	return t.calls[len(t.calls)-1]
}

type tonePlayerStub struct {
	mu     sync.Mutex
	played []ToneKind
}

type toneHandleStub struct {
	stopped bool
	mu      sync.Mutex
}

func (h *toneHandleStub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
}

func (p *tonePlayerStub) Play(kind ToneKind) (ToneHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, kind)
	return &toneHandleStub{}, nil
}

func (p *tonePlayerStub) count(kind ToneKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.played {
		if k == kind {
			n++
		}
	}
	return n
}

func (p *tonePlayerStub) lastPlayed() ToneKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.played) == 0 {
		return ""
	}
	return p.played[len(p.played)-1]
}

type engineFixture struct {
	engine    *Engine
	sender    *fakeSender
	media     *fakeMedia
	player    *tonePlayerStub
	transport *fakeTransport
	registry  *ConnectionRegistry
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		sender: &fakeSender{},
		media:  &fakeMedia{},
		player: &tonePlayerStub{},
	}
	factory := func(_ context.Context, peerID string, _ []string) (PeerTransport, error) {
		tr := &fakeTransport{id: peerID, alive: true}
		f.transport = tr
		return tr, nil
	}
	f.registry = NewConnectionRegistry(factory, nil)
	self := Party{ID: "alice", Name: "Alice"}
	cfg := Config{ResetDelay: 40 * time.Millisecond, MediaWait: 60 * time.Millisecond}
	f.engine = NewEngine(self, f.registry, f.media, f.sender, NewToneController(f.player), logger.NewNop(), cfg)
	return f
}

func (f *engineFixture) status() Status {
	return f.engine.Session().Status
}

var bob = Party{ID: "bob", Name: "Bob"}

func incomingFromBob(callID, peerID string) Signal {
	return Signal{
		Type:     SignalIncoming,
		CallID:   callID,
		CallType: TypeAudio,
		Caller:   bob,
		Receiver: Party{ID: "alice", Name: "Alice"},
		PeerID:   peerID,
	}
}

func TestStartCall(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.StartCall(ctx, bob, TypeAudio))

	s := f.engine.Session()
	assert.Equal(t, StatusCalling, s.Status)
	assert.True(t, s.IsOutgoing)
	assert.Equal(t, "bob", s.Receiver.ID)

	sig, ok := f.sender.last(SignalIncoming)
	require.True(t, ok)
	assert.Equal(t, s.CallID, sig.CallID)
	assert.Equal(t, f.transport.ID(), sig.PeerID)
	assert.True(t, sig.Valid())

	assert.Equal(t, ToneRingback, f.player.lastPlayed())
	assert.Equal(t, []bool{false}, f.media.videos)
}

func TestStartCallWhileBusy(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.StartCall(ctx, bob, TypeVideo))
	err := f.engine.StartCall(ctx, Party{ID: "carol"}, TypeAudio)
	assert.Error(t, err)
	assert.Equal(t, 1, f.sender.count(SignalIncoming))
}

func TestStartCallMediaFailureReleasesTracks(t *testing.T) {
	f := newEngineFixture(t)
	f.media.err = errors.New("camera busy")

	err := f.engine.StartCall(context.Background(), bob, TypeVideo)
	require.Error(t, err)
	assert.Equal(t, StatusIdle, f.status())
	assert.Empty(t, f.sender.sent)

	for _, track := range f.media.lastStream().tracks {
		assert.True(t, track.(*fakeTrack).isStopped())
	}
}

func TestCallerConnectFlow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartCall(ctx, bob, TypeAudio))
	callID := f.engine.Session().CallID

	accepted := Signal{
		Type:     SignalAccepted,
		CallID:   callID,
		CallType: TypeAudio,
		Caller:   Party{ID: "alice"},
		Receiver: bob,
		PeerID:   "bob-7fe2",
	}
	f.engine.HandleSignal(ctx, accepted)

	assert.Equal(t, StatusConnecting, f.status())
	assert.Equal(t, "bob-7fe2", f.transport.lastDialed())

	// Duplicate accept must not redial.
	f.engine.HandleSignal(ctx, accepted)
	assert.Len(t, f.transport.dialed, 1)

	f.transport.lastCall().fireStream()
	s := f.engine.Session()
	assert.Equal(t, StatusConnected, s.Status)
	assert.False(t, s.StartTime.IsZero())
	assert.Equal(t, ToneConnected, f.player.lastPlayed())
}

func TestCallerDialFailureEndsCallOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartCall(ctx, bob, TypeAudio))
	callID := f.engine.Session().CallID
	f.transport.dialErr = errors.New("transport destroyed")

	f.engine.HandleSignal(ctx, Signal{
		Type: SignalAccepted, CallID: callID, CallType: TypeAudio,
		Caller: Party{ID: "alice"}, Receiver: bob, PeerID: "bob-1",
	})

	assert.Equal(t, StatusEnded, f.status())
	assert.Equal(t, 1, f.sender.count(SignalEnded))
	for _, track := range f.media.lastStream().tracks {
		assert.True(t, track.(*fakeTrack).isStopped())
	}

	// Hanging up again after the failure must not emit another end.
	require.NoError(t, f.engine.EndCall(ctx))
	assert.Equal(t, 1, f.sender.count(SignalEnded))
}

func TestIncomingCallRings(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))

	s := f.engine.Session()
	assert.Equal(t, StatusRinging, s.Status)
	assert.False(t, s.IsOutgoing)
	assert.Equal(t, "bob-aa", s.CallerPeerID)
	assert.Equal(t, ToneRingtone, f.player.lastPlayed())

	// Duplicate delivery is absorbed.
	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))
	assert.Empty(t, f.sender.sent)
}

func TestSecondIncomingAutoRejectedBusy(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))

	second := incomingFromBob("call-2", "carol-bb")
	second.Caller = Party{ID: "carol", Name: "Carol"}
	f.engine.HandleSignal(ctx, second)

	sig, ok := f.sender.last(SignalRejected)
	require.True(t, ok)
	assert.Equal(t, "call-2", sig.CallID)
	assert.Equal(t, "busy", sig.Reason)
	assert.Equal(t, "call-1", f.engine.Session().CallID)
	assert.Equal(t, StatusRinging, f.status())
}

func TestAcceptCall(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))

	require.NoError(t, f.engine.AcceptCall(ctx))
	assert.Equal(t, StatusConnecting, f.status())

	sig, ok := f.sender.last(SignalAccepted)
	require.True(t, ok)
	assert.Equal(t, "call-1", sig.CallID)
	assert.Equal(t, f.transport.ID(), sig.PeerID)
	assert.True(t, sig.Valid())

	// The caller dials in; media is already ready, so the inbound call
	// gets answered with the local stream.
	inbound := &fakePeerCall{}
	f.transport.deliverInbound(inbound)
	require.Eventually(t, inbound.isAnswered, time.Second, 5*time.Millisecond)

	inbound.fireStream()
	assert.Equal(t, StatusConnected, f.status())
}

func TestAcceptCallRequiresRinging(t *testing.T) {
	f := newEngineFixture(t)
	assert.Error(t, f.engine.AcceptCall(context.Background()))
}

func TestInboundCallMediaTimeout(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))

	f.engine.mu.Lock()
	f.engine.session.Status = StatusConnecting
	f.engine.mu.Unlock()

	inbound := &fakePeerCall{}
	done := make(chan struct{})
	go func() {
		f.engine.answerInbound("call-1", make(chan struct{}), inbound)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("media wait did not time out")
	}
	assert.False(t, inbound.isAnswered())
	assert.True(t, inbound.isClosed())
	assert.Equal(t, StatusEnded, f.status())
	assert.Equal(t, 1, f.player.count(ToneEnd))
	assert.Empty(t, f.sender.sent)
}

func TestInboundAnswerFailureClosesPeerCall(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))
	require.NoError(t, f.engine.AcceptCall(ctx))

	inbound := &fakePeerCall{answerErr: errors.New("sdp mismatch")}
	f.transport.deliverInbound(inbound)

	// The failed connection must be closed so the caller's side observes
	// the teardown; the receiver cleans up locally without echoing an end.
	require.Eventually(t, inbound.isClosed, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.status() == StatusIdle
	}, time.Second, 5*time.Millisecond)

	assert.Zero(t, f.sender.count(SignalEnded))
	assert.Equal(t, 1, f.player.count(ToneEnd))
	for _, track := range f.media.lastStream().tracks {
		assert.True(t, track.(*fakeTrack).isStopped())
	}
}

func TestInboundAfterTeardownOnlyClosesPeerCall(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))

	// The call already reached a terminal state while the inbound
	// connection was still waiting on media.
	f.engine.mu.Lock()
	f.engine.session.Status = StatusEnded
	f.engine.mu.Unlock()

	inbound := &fakePeerCall{}
	done := make(chan struct{})
	go func() {
		f.engine.answerInbound("call-1", make(chan struct{}), inbound)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("media wait did not time out")
	}

	assert.True(t, inbound.isClosed())
	assert.False(t, inbound.isAnswered())
	// The late timer must not rerun teardown: no end tone replay, no new
	// reset window.
	assert.Zero(t, f.player.count(ToneEnd))
	assert.Equal(t, StatusEnded, f.status())
}

func TestRejectCall(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.engine.HandleSignal(ctx, incomingFromBob("call-1", "bob-aa"))

	require.NoError(t, f.engine.RejectCall(ctx, "declined"))

	sig, ok := f.sender.last(SignalRejected)
	require.True(t, ok)
	assert.Equal(t, "declined", sig.Reason)
	assert.Equal(t, StatusIdle, f.status())
}

func TestRemoteRejectedShowsBusyThenResets(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartCall(ctx, bob, TypeAudio))
	callID := f.engine.Session().CallID

	f.engine.HandleSignal(ctx, Signal{
		Type: SignalRejected, CallID: callID, CallType: TypeAudio,
		Caller: Party{ID: "alice"}, Receiver: bob, Reason: "busy",
	})

	assert.Equal(t, StatusRejected, f.status())
	assert.Equal(t, ToneBusy, f.player.lastPlayed())
	assert.Zero(t, f.sender.count(SignalEnded))

	require.Eventually(t, func() bool {
		return f.status() == StatusIdle
	}, time.Second, 5*time.Millisecond)
}

func TestEndCallEmitsExactlyOneEnded(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartCall(ctx, bob, TypeAudio))
	callID := f.engine.Session().CallID
	f.engine.HandleSignal(ctx, Signal{
		Type: SignalAccepted, CallID: callID, CallType: TypeAudio,
		Caller: Party{ID: "alice"}, Receiver: bob, PeerID: "bob-1",
	})
	pc := f.transport.lastCall()
	pc.fireStream()
	require.Equal(t, StatusConnected, f.status())

	require.NoError(t, f.engine.EndCall(ctx))
	require.NoError(t, f.engine.EndCall(ctx))
	f.engine.HandleSignal(ctx, Signal{
		Type: SignalEnded, CallID: callID, CallType: TypeAudio,
		Caller: Party{ID: "alice"}, Receiver: bob,
	})

	assert.Equal(t, 1, f.sender.count(SignalEnded))
	assert.True(t, pc.isClosed())
	for _, track := range f.media.lastStream().tracks {
		assert.True(t, track.(*fakeTrack).isStopped())
	}

	require.Eventually(t, func() bool {
		return f.status() == StatusIdle
	}, time.Second, 5*time.Millisecond)
}

func TestRemoteEndedNeverEchoed(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartCall(ctx, bob, TypeAudio))
	callID := f.engine.Session().CallID

	f.engine.HandleSignal(ctx, Signal{
		Type: SignalEnded, CallID: callID, CallType: TypeAudio,
		Caller: Party{ID: "alice"}, Receiver: bob,
	})
	assert.Equal(t, StatusEnded, f.status())
	assert.Zero(t, f.sender.count(SignalEnded))

	// A late local hangup after the remote end stays silent too.
	require.NoError(t, f.engine.EndCall(ctx))
	assert.Zero(t, f.sender.count(SignalEnded))
}

func TestEndedWhileIdleIsNoOp(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.HandleSignal(context.Background(), Signal{
		Type: SignalEnded, CallID: "stale", CallType: TypeAudio,
		Caller: bob, Receiver: Party{ID: "alice"},
	})
	assert.Equal(t, StatusIdle, f.status())
	assert.Empty(t, f.sender.sent)
}

func TestPeerChannelCloseCleansUpLocally(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.StartCall(ctx, bob, TypeAudio))
	callID := f.engine.Session().CallID
	f.engine.HandleSignal(ctx, Signal{
		Type: SignalAccepted, CallID: callID, CallType: TypeAudio,
		Caller: Party{ID: "alice"}, Receiver: bob, PeerID: "bob-1",
	})
	f.transport.lastCall().fireStream()

	f.transport.lastCall().fireClose(errors.New("ice disconnected"))

	assert.Equal(t, StatusEnded, f.status())
	assert.Zero(t, f.sender.count(SignalEnded))
}

func TestToggles(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	assert.False(t, f.engine.ToggleMute())

	require.NoError(t, f.engine.StartCall(ctx, bob, TypeVideo))
	assert.True(t, f.engine.ToggleMute())
	assert.False(t, f.engine.ToggleMute())
	assert.False(t, f.engine.ToggleVideo())
	assert.True(t, f.engine.ToggleSpeaker())
}
