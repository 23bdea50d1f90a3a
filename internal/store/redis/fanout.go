package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/realtime"
)

type bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	PSubscribe(ctx context.Context, pattern string) (<-chan Message, func(), error)
}

// envelope is what travels between nodes. Frame is already encoded JSON.
type envelope struct {
	WorkspaceID string          `json:"workspaceId"`
	Exclude     uuid.UUID       `json:"exclude"`
	Frame       json.RawMessage `json:"frame"`
}

// Fanout is a realtime.Rooms whose membership is node-local but whose
// broadcasts go through Redis, so a frame reaches the room's members on
// every node. Local members are reached only via the subscription,
// including on the publishing node.
type Fanout struct {
	*realtime.Registry

	bus bus
}

// ErrSubscriptionClosed reports that the pattern subscription ended while
// the fan-out was still meant to run.
var ErrSubscriptionClosed = errors.New("redis: subscription closed") //nolint:gochecknoglobals // sentinel error

// NewFanout shares registry's rooms across nodes through c.
func NewFanout(registry *realtime.Registry, c *Client) *Fanout {
	return &Fanout{Registry: registry, bus: c}
}

func (f *Fanout) Broadcast(ctx context.Context, workspaceID string, frame []byte, exclude uuid.UUID) error {
	payload, err := json.Marshal(envelope{WorkspaceID: workspaceID, Exclude: exclude, Frame: frame})
	if err != nil {
		return fmt.Errorf("redis.Fanout.Broadcast: %w", err)
	}
	if err := f.bus.Publish(ctx, RoomChannel(workspaceID), payload); err != nil {
		return fmt.Errorf("redis.Fanout.Broadcast: %w", err)
	}
	return nil
}

// Run delivers frames published by any node to local members until ctx is
// done.
func (f *Fanout) Run(ctx context.Context) error {
	messages, cleanup, err := f.bus.PSubscribe(ctx, RoomChannel("*"))
	if err != nil {
		return fmt.Errorf("redis.Fanout.Run: %w", err)
	}
	defer cleanup()

	log.Info().Msg("redis fanout subscribed")
	for msg := range messages {
		f.handle(msg)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("redis.Fanout.Run: %w", ErrSubscriptionClosed)
}

func (f *Fanout) handle(msg Message) int {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("redis fanout: drop envelope")
		return 0
	}
	if ws, ok := WorkspaceFromChannel(msg.Channel); !ok || ws != env.WorkspaceID {
		log.Warn().Str("channel", msg.Channel).Str("workspace_id", env.WorkspaceID).Msg("redis fanout: channel mismatch")
		return 0
	}
	return f.Deliver(env.WorkspaceID, env.Frame, env.Exclude)
}
