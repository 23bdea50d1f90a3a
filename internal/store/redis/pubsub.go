package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/boardsync/internal/domain"
)

const (
	roomPrefix    = "room:"
	versionPrefix = "version:"

	// EpochKey holds the id of the current set of version counters. Entity
	// keys always carry a type and an id, so it cannot collide with them.
	EpochKey = versionPrefix + "epoch"
)

// Message is one payload received on a pattern subscription.
type Message struct {
	Channel string
	Payload []byte
}

type Client struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("redis.Client.Close: %w", err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.Client.Publish: %w", err)
	}
	return nil
}

// PSubscribe subscribes to every channel matching pattern. The returned
// channel is closed when ctx is done or the subscription ends; call cleanup
// to unsubscribe.
func (c *Client) PSubscribe(ctx context.Context, pattern string) (<-chan Message, func(), error) {
	sub := c.client.PSubscribe(ctx, pattern)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.Client.PSubscribe: receive confirmation: %w", err)
	}

	out := make(chan Message, 256)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// RoomChannel returns the Redis channel carrying frames for a workspace.
func RoomChannel(workspaceID string) string {
	return roomPrefix + workspaceID
}

// WorkspaceFromChannel is the inverse of RoomChannel.
func WorkspaceFromChannel(channel string) (string, bool) {
	ws, ok := strings.CutPrefix(channel, roomPrefix)
	return ws, ok && ws != ""
}

// VersionKey returns the Redis key holding an entity's version counter.
func VersionKey(key domain.EntityKey) string {
	return versionPrefix + key.String()
}
