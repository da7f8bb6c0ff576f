// Package registry implements the delivery registry: one logical
// delivery channel per online user, fan-out friendly, fire-and-forget.
package registry

import (
	"context"
	"encoding/json"

	"harbor-chat/internal/events"
	"harbor-chat/internal/redis"
	"harbor-chat/internal/websocket"
	"harbor-chat/pkg/logger"

	"github.com/google/uuid"
)

// Registry delivers events to online users. Send reports whether a live
// channel existed; a miss is not an error.
type Registry interface {
	Send(ctx context.Context, userID string, ev events.Event) bool
	ListConnectedUserIDs(ctx context.Context) []string
}

// HubRegistry delivers through the local websocket hub, with an
// optional Redis bridge so sends reach users connected to other nodes.
type HubRegistry struct {
	nodeID    string
	hub       *websocket.Hub
	presence  *redis.PresenceStore
	publisher *redis.Publisher
	log       *logger.Logger
}

func NewHubRegistry(hub *websocket.Hub, presence *redis.PresenceStore, publisher *redis.Publisher, log *logger.Logger) *HubRegistry {
	return &HubRegistry{
		nodeID:    uuid.New().String(),
		hub:       hub,
		presence:  presence,
		publisher: publisher,
		log:       log,
	}
}

// NodeID identifies this process on the bridge channel.
func (r *HubRegistry) NodeID() string {
	return r.nodeID
}

// Send writes the event to every live connection the user holds, on
// this node and, via the bridge, on every other node.
func (r *HubRegistry) Send(ctx context.Context, userID string, ev events.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Errorf("marshal event %s: %v", ev.Type, err)
		return false
	}

	delivered := r.hub.SendToUser(userID, payload)

	if r.publisher != nil {
		frame, err := json.Marshal(bridgeFrame{Origin: r.nodeID, UserID: userID, Event: payload})
		if err == nil {
			if err := r.publisher.Publish(ctx, bridgeChannel(userID), frame); err != nil {
				r.log.Warnf("bridge publish user=%s: %v", userID, err)
			}
		}
		if !delivered && r.presence != nil {
			// The user may be connected elsewhere in the cluster.
			online, err := r.presence.IsOnline(ctx, userID)
			if err == nil && online {
				delivered = true
			}
		}
	}

	return delivered
}

// ListConnectedUserIDs returns the cluster-wide connected set when a
// presence store is wired, otherwise this node's.
func (r *HubRegistry) ListConnectedUserIDs(ctx context.Context) []string {
	if r.presence != nil {
		if ids, err := r.presence.ListOnline(ctx); err == nil {
			return ids
		}
	}
	return r.hub.ConnectedUserIDs()
}
