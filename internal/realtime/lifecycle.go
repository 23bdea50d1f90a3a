package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SessionCloser is implemented by components holding per-session state.
type SessionCloser interface {
	SessionClosed(ctx context.Context, sessionID uuid.UUID)
}

// Lifecycle fans a single session-closed event out to every subscriber in
// registration order.
type Lifecycle struct {
	mu    sync.Mutex
	hooks []SessionCloser
}

// OnSessionClosed registers h. Hooks run in registration order.
func (l *Lifecycle) OnSessionClosed(h SessionCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, h)
}

// CloseSession runs every hook for sessionID.
func (l *Lifecycle) CloseSession(ctx context.Context, sessionID uuid.UUID) {
	l.mu.Lock()
	hooks := append([]SessionCloser(nil), l.hooks...)
	l.mu.Unlock()

	for _, h := range hooks {
		h.SessionClosed(ctx, sessionID)
	}
}
