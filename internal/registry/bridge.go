package registry

import (
	"context"
	"encoding/json"

	"harbor-chat/internal/redis"
	"harbor-chat/internal/websocket"
	"harbor-chat/pkg/logger"
)

const bridgePattern = "delivery:user:*"

func bridgeChannel(userID string) string {
	return "delivery:user:" + userID
}

// bridgeFrame wraps an event on the cross-node channel. Origin lets a
// node skip frames it published itself, since the local hub already
// delivered those.
type bridgeFrame struct {
	Origin string          `json:"origin"`
	UserID string          `json:"user_id"`
	Event  json.RawMessage `json:"event"`
}

// Bridge subscribes to the delivery channels and relays frames from
// other nodes into the local hub.
type Bridge struct {
	nodeID     string
	hub        *websocket.Hub
	subscriber *redis.Subscriber
	log        *logger.Logger
}

func NewBridge(nodeID string, hub *websocket.Hub, subscriber *redis.Subscriber, log *logger.Logger) *Bridge {
	return &Bridge{nodeID: nodeID, hub: hub, subscriber: subscriber, log: log}
}

// Run blocks until the context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{bridgePattern}, func(channel string, payload []byte) {
		var frame bridgeFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			b.log.Warnf("bridge: bad frame on %s: %v", channel, err)
			return
		}
		if frame.Origin == b.nodeID {
			return
		}
		b.hub.SendToUser(frame.UserID, frame.Event)
	})
}
