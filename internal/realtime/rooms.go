package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Sink receives frames for one session. Deliver must not block; it returns
// false when the frame was dropped.
type Sink interface {
	Deliver(frame []byte) bool
}

// Rooms maps workspaces to the sessions subscribed to them.
type Rooms interface {
	// Join binds the session to workspaceID. A session bound elsewhere is
	// removed from its previous room first. Joining the same room twice is
	// a no-op apart from replacing the sink.
	Join(sessionID uuid.UUID, workspaceID string, sink Sink)
	// Leave unbinds the session. It is a no-op when not a member.
	Leave(sessionID uuid.UUID, workspaceID string)
	// RoomOf returns the workspace the session is currently bound to.
	RoomOf(sessionID uuid.UUID) (string, bool)
	// Broadcast delivers frame to every member of workspaceID except
	// exclude. An empty room is a silent no-op.
	Broadcast(ctx context.Context, workspaceID string, frame []byte, exclude uuid.UUID) error
}

// Registry is the in-process Rooms implementation.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[uuid.UUID]Sink
	sessions map[uuid.UUID]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[uuid.UUID]Sink),
		sessions: make(map[uuid.UUID]string),
	}
}

func (r *Registry) Join(sessionID uuid.UUID, workspaceID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[sessionID]; ok && prev != workspaceID {
		r.removeLocked(sessionID, prev)
	}

	members, ok := r.rooms[workspaceID]
	if !ok {
		members = make(map[uuid.UUID]Sink)
		r.rooms[workspaceID] = members
	}
	members[sessionID] = sink
	r.sessions[sessionID] = workspaceID
}

func (r *Registry) Leave(sessionID uuid.UUID, workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[sessionID] != workspaceID {
		return
	}
	r.removeLocked(sessionID, workspaceID)
}

func (r *Registry) removeLocked(sessionID uuid.UUID, workspaceID string) {
	delete(r.sessions, sessionID)
	members := r.rooms[workspaceID]
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, workspaceID)
	}
}

func (r *Registry) RoomOf(sessionID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.sessions[sessionID]
	return ws, ok
}

// Members returns the session ids currently bound to workspaceID.
func (r *Registry) Members(workspaceID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(r.rooms[workspaceID]))
	for id := range r.rooms[workspaceID] {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Broadcast(_ context.Context, workspaceID string, frame []byte, exclude uuid.UUID) error {
	r.Deliver(workspaceID, frame, exclude)
	return nil
}

// Deliver pushes frame to the local members of workspaceID except exclude
// and returns how many sinks accepted it.
func (r *Registry) Deliver(workspaceID string, frame []byte, exclude uuid.UUID) int {
	r.mu.RLock()
	targets := make([]Sink, 0, len(r.rooms[workspaceID]))
	for id, sink := range r.rooms[workspaceID] {
		if id == exclude {
			continue
		}
		targets = append(targets, sink)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sink := range targets {
		if sink.Deliver(frame) {
			delivered++
		}
	}
	return delivered
}

// SessionClosed drops whatever room membership the session still holds.
func (r *Registry) SessionClosed(_ context.Context, sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.sessions[sessionID]; ok {
		r.removeLocked(sessionID, ws)
	}
}
