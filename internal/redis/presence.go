package redis

import (
	"fmt"
	"strconv"
	"time"

	"context"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// PresenceStore tracks which users currently hold an open channel
// subscription for a conversation. Entries are ephemeral: a sorted set
// per conversation keyed by user id with a last-seen score, expired both
// by explicit Leave on teardown and by TTL when a socket dies without
// one.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

const presenceKeyPrefix = "presence:conversation:"

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 90 * time.Second
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func presenceKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("%s%s", presenceKeyPrefix, conversationID)
}

// Join announces userID on the conversation channel.
func (p *PresenceStore) Join(ctx context.Context, conversationID, userID uuid.UUID) error {
	now := time.Now()
	key := presenceKey(conversationID)

	pipe := p.client.Pipeline()
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(now.Unix()),
		Member: userID.String(),
	})
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat refreshes userID's last-seen timestamp.
func (p *PresenceStore) Heartbeat(ctx context.Context, conversationID, userID uuid.UUID) error {
	return p.Join(ctx, conversationID, userID)
}

// Leave removes userID from the conversation channel.
func (p *PresenceStore) Leave(ctx context.Context, conversationID, userID uuid.UUID) error {
	return p.client.ZRem(ctx, presenceKey(conversationID), userID.String()).Err()
}

// Participants returns the user ids currently announced on the channel,
// dropping entries whose last-seen is older than the TTL.
func (p *PresenceStore) Participants(ctx context.Context, conversationID uuid.UUID) ([]string, error) {
	key := presenceKey(conversationID)
	threshold := time.Now().Add(-p.ttl).Unix()

	// Prune stale members before reading.
	if err := p.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(threshold, 10)).Err(); err != nil {
		return nil, err
	}
	return p.client.ZRange(ctx, key, 0, -1).Result()
}
