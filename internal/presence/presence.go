// Package presence tracks which accounts are currently online. Each active
// client heartbeats a TTL key; a user is online while at least one of their
// keys is alive. Status changes fan out over Redis pub/sub so every replica
// can push them to its websocket clients.
package presence

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"paypadm/core/pkg/logging"
	pubsub "paypadm/core/pkg/redis"
)

const (
	keyPrefix     = "presence:online:"
	statusChannel = "presence:status"

	// DefaultTTL is how long a heartbeat keeps a user online. Clients
	// heartbeat at half this interval.
	DefaultTTL = 30 * time.Second
)

// StatusChange is published whenever a user transitions online or offline.
type StatusChange struct {
	UserID string    `json:"user_id"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// Tracker records heartbeats and answers online queries.
type Tracker struct {
	client goredis.UniversalClient
	pubsub *pubsub.TypedPubSub[StatusChange]
	logger logging.Logger
	ttl    time.Duration
}

// NewTracker creates a presence tracker with the default TTL.
func NewTracker(client goredis.UniversalClient, logger *logrus.Logger) *Tracker {
	return &Tracker{
		client: client,
		pubsub: pubsub.NewTypedPubSub[StatusChange](client, logger),
		logger: logger,
		ttl:    DefaultTTL,
	}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Heartbeat marks the user online for the TTL window. The first heartbeat
// after an absence publishes an online transition; refreshes are silent.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	wasFresh, err := t.client.SetNX(ctx, key(userID), time.Now().UTC().Format(time.RFC3339), t.ttl).Result()
	if err != nil {
		return fmt.Errorf("set presence key: %w", err)
	}

	if !wasFresh {
		if err := t.client.Expire(ctx, key(userID), t.ttl).Err(); err != nil {
			return fmt.Errorf("refresh presence ttl: %w", err)
		}
		return nil
	}

	if err := t.pubsub.Publish(ctx, statusChannel, StatusChange{UserID: userID, Online: true, At: time.Now().UTC()}); err != nil {
		// Presence is advisory; a missed transition corrects on the next query.
		t.logger.WithError(err).WithField("user_id", userID).Warn("Failed to publish presence change")
	}
	return nil
}

// Disconnect marks the user offline immediately instead of waiting for the
// TTL to lapse.
func (t *Tracker) Disconnect(ctx context.Context, userID string) error {
	removed, err := t.client.Del(ctx, key(userID)).Result()
	if err != nil {
		return fmt.Errorf("delete presence key: %w", err)
	}
	if removed == 0 {
		return nil
	}

	if err := t.pubsub.Publish(ctx, statusChannel, StatusChange{UserID: userID, Online: false, At: time.Now().UTC()}); err != nil {
		t.logger.WithError(err).WithField("user_id", userID).Warn("Failed to publish presence change")
	}
	return nil
}

// IsOnline reports whether the user has a live heartbeat.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.client.Exists(ctx, key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence key: %w", err)
	}
	return n > 0, nil
}

// OnlineUsers returns the ids of every user with a live heartbeat.
func (t *Tracker) OnlineUsers(ctx context.Context) ([]string, error) {
	users := make([]string, 0)
	iter := t.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence keys: %w", err)
	}
	return users, nil
}

// Watch delivers presence transitions to handler until the context is
// cancelled. Every replica watches so it can push status changes to its own
// websocket clients.
func (t *Tracker) Watch(ctx context.Context, handler func(StatusChange)) error {
	return t.pubsub.Subscribe(ctx, statusChannel, handler)
}
