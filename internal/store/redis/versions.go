package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gosuda/boardsync/internal/domain"
)

// VersionLedger keeps entity versions in Redis so that every node stamps
// from the same counter. INCR is atomic, which gives the gapless per-entity
// sequence without a lock.
type VersionLedger struct {
	client *redis.Client
}

// NewVersionLedger returns a ledger over c.
func NewVersionLedger(c *Client) *VersionLedger {
	return &VersionLedger{client: c.client}
}

func (l *VersionLedger) NextVersion(ctx context.Context, key domain.EntityKey) (int64, error) {
	v, err := l.client.Incr(ctx, VersionKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis.VersionLedger.NextVersion: %w", err)
	}
	return v, nil
}

func (l *VersionLedger) CurrentVersion(ctx context.Context, key domain.EntityKey) (int64, error) {
	v, err := l.client.Get(ctx, VersionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis.VersionLedger.CurrentVersion: %w", err)
	}
	return v, nil
}

// Epoch returns the id stored next to the counters, creating it on first
// use. A flushed Redis loses both, so clients see a new epoch.
func (l *VersionLedger) Epoch(ctx context.Context) (string, error) {
	if err := l.client.SetNX(ctx, EpochKey, uuid.NewString(), 0).Err(); err != nil {
		return "", fmt.Errorf("redis.VersionLedger.Epoch: %w", err)
	}
	epoch, err := l.client.Get(ctx, EpochKey).Result()
	if err != nil {
		return "", fmt.Errorf("redis.VersionLedger.Epoch: %w", err)
	}
	return epoch, nil
}
