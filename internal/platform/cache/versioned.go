package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Versioned wraps Redis JSON caching behind a namespace-wide version counter.
// Bumping the version orphans every key built before the bump; orphans expire by TTL.
type Versioned struct {
	client     *redis.Client
	versionKey string
	channel    string
}

// NewVersioned instantiates the cache helper. The channel carries bump notifications.
func NewVersioned(client *redis.Client, namespace, channel string) *Versioned {
	return &Versioned{
		client:     client,
		versionKey: namespace + ":version",
		channel:    channel,
	}
}

// Version returns the current cache version, initialising when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Get loads a JSON value. The boolean is false on a miss.
func (c *Versioned) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value as JSON with the given TTL.
func (c *Versioned) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// Bump invalidates the namespace by incrementing the version and publishing it.
func (c *Versioned) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey).Result()
	if err != nil {
		return err
	}
	if c.channel == "" {
		return nil
	}
	return c.client.Publish(ctx, c.channel, strconv.FormatInt(ver, 10)).Err()
}

// Notify publishes a change notice without touching the version. Listeners bump.
// Writers that insert payouts outside the service (seeders, imports) call it.
func (c *Versioned) Notify(ctx context.Context, message string) error {
	if c == nil || c.client == nil || c.channel == "" {
		return nil
	}
	return c.client.Publish(ctx, c.channel, message).Err()
}

// Listen subscribes to the change channel and advances the version for every
// message until ctx is cancelled. Numeric payloads are applied when they move the
// version forward; anything else is treated as a change notice.
func (c *Versioned) Listen(ctx context.Context) error {
	if c == nil || c.client == nil || c.channel == "" {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, c.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					current, _ := c.client.Get(ctx, c.versionKey).Int64()
					if ver > current {
						_ = c.client.Set(ctx, c.versionKey, ver, 0).Err()
					}
					continue
				}
				_ = c.client.Incr(ctx, c.versionKey).Err()
			}
		}
	}()
	return nil
}
