package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrAddrInUse is returned by transport factories when the requested
// peer address is already claimed, typically by a stale handle from a
// previous process lifetime.
var ErrAddrInUse = errors.New("peer address already in use")

// PeerCall is one media connection between the two sides of a call.
type PeerCall interface {
	// Answer accepts an inbound connection, attaching local media.
	Answer(local MediaStream) error
	// OnStream registers the callback for the remote media stream.
	OnStream(fn func(remote MediaStream))
	// OnClose fires when the peer channel closes or errors, whichever
	// side caused it.
	OnClose(fn func(err error))
	Close()
}

// PeerTransport is a per-user handle onto the peer network: it owns an
// address other sides can dial, accepts inbound connections and opens
// outbound ones.
type PeerTransport interface {
	// ID is the dialable address advertised in signaling.
	ID() string
	// Alive reports whether the handle is still usable. Destroyed or
	// disconnected handles must not be reused.
	Alive() bool
	OnIncomingCall(fn func(PeerCall))
	Dial(ctx context.Context, remotePeerID string, local MediaStream) (PeerCall, error)
	Close()
}

// TransportFactory opens a fresh transport handle advertising peerID,
// configured with the given STUN servers.
type TransportFactory func(ctx context.Context, peerID string, stunServers []string) (PeerTransport, error)

// ConnectionRegistry caches one peer transport handle per user
// identity across call sessions and process reloads. Liveness is
// checked before reuse; a dead handle is discarded and replaced by a
// fresh one whose address carries a uniqueness suffix, so it cannot
// collide with the stale registration.
type ConnectionRegistry struct {
	mu          sync.Mutex
	factory     TransportFactory
	stunServers []string
	handles     map[string]PeerTransport
}

func NewConnectionRegistry(factory TransportFactory, stunServers []string) *ConnectionRegistry {
	return &ConnectionRegistry{
		factory:     factory,
		stunServers: stunServers,
		handles:     make(map[string]PeerTransport),
	}
}

// GetOrCreate returns a live handle for the user, reusing the cached
// one when the transport still reports itself alive.
func (r *ConnectionRegistry) GetOrCreate(ctx context.Context, userID string) (PeerTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handles[userID]; ok {
		if existing.Alive() {
			return existing, nil
		}
		existing.Close()
		delete(r.handles, userID)
	}

	// A previous lifetime may still hold the plain address; fresh
	// handles carry a suffix so they never collide with it.
	peerID := fmt.Sprintf("%s-%s", userID, uuid.New().String()[:8])
	handle, err := r.factory(ctx, peerID, r.stunServers)
	if errors.Is(err, ErrAddrInUse) {
		// Retry once with a new suffix.
		peerID = fmt.Sprintf("%s-%s", userID, uuid.New().String()[:8])
		handle, err = r.factory(ctx, peerID, r.stunServers)
	}
	if err != nil {
		return nil, err
	}
	r.handles[userID] = handle
	return handle, nil
}

// Invalidate drops the cached handle so the next GetOrCreate builds a
// fresh one. Called after address-in-use and transport-destroyed
// errors.
func (r *ConnectionRegistry) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[userID]; ok {
		handle.Close()
		delete(r.handles, userID)
	}
}

// Close releases every cached handle.
func (r *ConnectionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, handle := range r.handles {
		handle.Close()
		delete(r.handles, id)
	}
}
