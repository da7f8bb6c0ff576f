package redis

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis keys for presence
const (
	presenceOnlineSet    = "presence:online"
	presenceHeartbeatKey = "presence:heartbeat"
)

// PresenceStore tracks which users hold a live delivery channel
// anywhere in the cluster. Entries are heartbeat-scored so stale nodes
// age out.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

// SetOnline registers a user as connected.
func (p *PresenceStore) SetOnline(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, presenceOnlineSet, userID)
	pipe.ZAdd(ctx, presenceHeartbeatKey, goredis.Z{
		Score:  float64(time.Now().Unix()),
		Member: userID,
	})
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline removes a user from the connected set.
func (p *PresenceStore) SetOffline(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, presenceOnlineSet, userID)
	pipe.ZRem(ctx, presenceHeartbeatKey, userID)
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat refreshes a user's liveness timestamp.
func (p *PresenceStore) Heartbeat(ctx context.Context, userID string) error {
	return p.client.ZAdd(ctx, presenceHeartbeatKey, goredis.Z{
		Score:  float64(time.Now().Unix()),
		Member: userID,
	}).Err()
}

// IsOnline reports whether the user is in the connected set.
func (p *PresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	return p.client.SIsMember(ctx, presenceOnlineSet, userID).Result()
}

// ListOnline returns every connected user id.
func (p *PresenceStore) ListOnline(ctx context.Context) ([]string, error) {
	return p.client.SMembers(ctx, presenceOnlineSet).Result()
}

// ReapStale drops users whose heartbeat is older than the TTL, covering
// nodes that died without cleaning up.
func (p *PresenceStore) ReapStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-p.ttl).Unix()
	stale, err := p.client.ZRangeByScore(ctx, presenceHeartbeatKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	pipe := p.client.Pipeline()
	members := make([]interface{}, len(stale))
	for i, s := range stale {
		members[i] = s
		pipe.ZRem(ctx, presenceHeartbeatKey, s)
	}
	pipe.SRem(ctx, presenceOnlineSet, members...)
	_, err = pipe.Exec(ctx)
	return int64(len(stale)), err
}
