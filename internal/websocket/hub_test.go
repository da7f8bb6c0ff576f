package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSendToUserReachesEveryConnection(t *testing.T) {
	hub := NewHub()
	first := NewClient(nil, "alice")
	second := NewClient(nil, "alice")
	hub.Register(first)
	hub.Register(second)

	delivered := hub.SendToUser("alice", []byte("hello"))
	require.True(t, delivered)
	assert.Equal(t, []byte("hello"), <-first.Send)
	assert.Equal(t, []byte("hello"), <-second.Send)

	assert.False(t, hub.SendToUser("bob", []byte("hello")))
}

func TestHubPresenceHooks(t *testing.T) {
	hub := NewHub()
	var online, offline []string
	hub.OnFirstConnect(func(userID string) { online = append(online, userID) })
	hub.OnLastDisconnect(func(userID string) { offline = append(offline, userID) })

	first := NewClient(nil, "alice")
	second := NewClient(nil, "alice")
	hub.Register(first)
	hub.Register(second)
	assert.Equal(t, []string{"alice"}, online)

	hub.Unregister(first)
	assert.Empty(t, offline)
	hub.Unregister(second)
	assert.Equal(t, []string{"alice"}, offline)

	// Double unregister must be harmless.
	hub.Unregister(second)
	assert.Len(t, offline, 1)
	assert.Zero(t, hub.ClientCount())
}

func TestHubConnectedUserIDs(t *testing.T) {
	hub := NewHub()
	hub.Register(NewClient(nil, "alice"))
	hub.Register(NewClient(nil, "bob"))

	ids := hub.ConnectedUserIDs()
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)
}
