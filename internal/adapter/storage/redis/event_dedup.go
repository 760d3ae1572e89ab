package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventDedupCache implements ports.EventDedupCache using Redis. It is an
// advisory fast path in front of the durable webhook_events witness: a cache
// miss is always safe, a hit just skips a database round trip.
type EventDedupCache struct {
	client *goredis.Client
	prefix string
}

// NewEventDedupCache creates a new Redis-backed event dedup cache.
func NewEventDedupCache(client *goredis.Client) *EventDedupCache {
	return &EventDedupCache{
		client: client,
		prefix: "webhook:event:",
	}
}

// Seen reports whether the event id was marked processed.
// Returns false, nil when the key does not exist.
func (c *EventDedupCache) Seen(ctx context.Context, eventID string) (bool, error) {
	err := c.client.Get(ctx, c.prefix+eventID).Err()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis event dedup get: %w", err)
	}
	return true, nil
}

// Mark records the event id as processed for the given TTL.
func (c *EventDedupCache) Mark(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+eventID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis event dedup set: %w", err)
	}
	return nil
}
