package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/domain"
)

// Versions is a per-entity monotonic counter used to order updates.
type Versions interface {
	// NextVersion increments the stored version (default 0) and returns
	// the new value.
	NextVersion(ctx context.Context, key domain.EntityKey) (int64, error)
	// CurrentVersion returns the stored version, or 0 if unseen.
	CurrentVersion(ctx context.Context, key domain.EntityKey) (int64, error)
	// Epoch identifies the lifetime of the counters. It changes whenever
	// the counters restart from zero.
	Epoch(ctx context.Context) (string, error)
}

// Ledger is the in-process Versions implementation. Ordering is global only
// within one process; multi-node deployments use the Redis ledger.
type Ledger struct {
	epoch string

	mu       sync.Mutex
	versions map[domain.EntityKey]int64
}

// NewLedger returns an empty ledger with a fresh epoch.
func NewLedger() *Ledger {
	return &Ledger{
		epoch:    uuid.NewString(),
		versions: make(map[domain.EntityKey]int64),
	}
}

// Epoch is fixed for the lifetime of the ledger.
func (l *Ledger) Epoch(_ context.Context) (string, error) {
	return l.epoch, nil
}

// NextVersion increments and returns the version of key.
func (l *Ledger) NextVersion(_ context.Context, key domain.EntityKey) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.versions[key]++
	return l.versions[key], nil
}

// CurrentVersion returns the version of key, 0 if unseen.
func (l *Ledger) CurrentVersion(_ context.Context, key domain.EntityKey) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.versions[key], nil
}
