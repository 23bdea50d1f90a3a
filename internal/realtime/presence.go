package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/domain"
)

type roomPresence struct {
	participants map[string]*domain.Participant
	// participant id -> sessions that announced it
	sessions map[string]map[uuid.UUID]struct{}
	// entity -> participant id -> sessions editing it
	editors map[domain.EntityKey]map[string]map[uuid.UUID]struct{}
}

func newRoomPresence() *roomPresence {
	return &roomPresence{
		participants: make(map[string]*domain.Participant),
		sessions:     make(map[string]map[uuid.UUID]struct{}),
		editors:      make(map[domain.EntityKey]map[string]map[uuid.UUID]struct{}),
	}
}

func (rp *roomPresence) empty() bool {
	return len(rp.participants) == 0 && len(rp.editors) == 0
}

type outbound struct {
	event   string
	payload any
}

// Tracker holds transient presence per workspace: participants, cursors,
// and who is editing which entity. Nothing here is persisted.
type Tracker struct {
	rooms Rooms
	now   func() time.Time

	mu         sync.Mutex
	workspaces map[string]*roomPresence
	bySession  map[uuid.UUID]map[string]struct{}
}

// NewTracker creates a Tracker that relays presence events through rooms.
func NewTracker(rooms Rooms) *Tracker {
	return &Tracker{
		rooms:      rooms,
		now:        time.Now,
		workspaces: make(map[string]*roomPresence),
		bySession:  make(map[uuid.UUID]map[string]struct{}),
	}
}

func (t *Tracker) roomLocked(workspaceID string) *roomPresence {
	rp, ok := t.workspaces[workspaceID]
	if !ok {
		rp = newRoomPresence()
		t.workspaces[workspaceID] = rp
	}
	return rp
}

func (t *Tracker) attributeLocked(sessionID uuid.UUID, workspaceID string) {
	set, ok := t.bySession[sessionID]
	if !ok {
		set = make(map[string]struct{})
		t.bySession[sessionID] = set
	}
	set[workspaceID] = struct{}{}
}

// AnnounceJoin adds or replaces the participant entry, relays user:joined
// to the rest of the room, and returns the full presence state for the
// joiner.
func (t *Tracker) AnnounceJoin(ctx context.Context, workspaceID string, sessionID uuid.UUID, p domain.Participant) (domain.PresenceState, error) {
	if p.ID == "" {
		return domain.PresenceState{}, fmt.Errorf("realtime.Tracker.AnnounceJoin: participant id is required: %w", domain.ErrMalformedEvent)
	}

	t.mu.Lock()
	rp := t.roomLocked(workspaceID)
	if p.Color == "" {
		if existing, ok := rp.participants[p.ID]; ok {
			p.Color = existing.Color
		} else {
			p.Color = assignColor(rp, p.ID)
		}
	}
	p.LastActive = t.now()
	stored := p
	rp.participants[p.ID] = &stored

	sessions, ok := rp.sessions[p.ID]
	if !ok {
		sessions = make(map[uuid.UUID]struct{})
		rp.sessions[p.ID] = sessions
	}
	sessions[sessionID] = struct{}{}
	t.attributeLocked(sessionID, workspaceID)

	state := t.stateLocked(workspaceID)
	t.mu.Unlock()

	err := t.send(ctx, workspaceID, sessionID, outbound{
		event:   domain.EventUserJoined,
		payload: domain.UserJoined{WorkspaceID: workspaceID, Participant: p},
	})
	if err != nil {
		return state, fmt.Errorf("realtime.Tracker.AnnounceJoin: %w", err)
	}
	return state, nil
}

// AnnounceLeave detaches the session from the participant. The entry is
// removed, and user:left relayed, once no session announces it any more.
// Editing indicators started by the session are cleared.
func (t *Tracker) AnnounceLeave(ctx context.Context, workspaceID string, sessionID uuid.UUID, participantID string) error {
	t.mu.Lock()
	rp, ok := t.workspaces[workspaceID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	var events []outbound
	events = append(events, t.clearEditsLocked(workspaceID, rp, sessionID, participantID)...)
	events = append(events, t.dropSessionLocked(workspaceID, rp, sessionID, participantID)...)
	t.pruneLocked(workspaceID)
	t.mu.Unlock()

	if err := t.send(ctx, workspaceID, sessionID, events...); err != nil {
		return fmt.Errorf("realtime.Tracker.AnnounceLeave: %w", err)
	}
	return nil
}

// UpdateCursor overwrites the stored cursor and relays cursor:update. It is
// fire-and-forget: the latest write observed wins.
func (t *Tracker) UpdateCursor(ctx context.Context, workspaceID string, sessionID uuid.UUID, participantID string, cursor domain.Cursor) error {
	t.mu.Lock()
	rp, ok := t.workspaces[workspaceID]
	var p *domain.Participant
	if ok {
		p = rp.participants[participantID]
	}
	if p == nil {
		t.mu.Unlock()
		return fmt.Errorf("realtime.Tracker.UpdateCursor: participant %q: %w", participantID, domain.ErrNotFound)
	}
	c := cursor
	p.Cursor = &c
	p.LastActive = t.now()
	t.mu.Unlock()

	err := t.send(ctx, workspaceID, sessionID, outbound{
		event:   domain.EventCursorUpdate,
		payload: domain.CursorUpdate{WorkspaceID: workspaceID, ParticipantID: participantID, Cursor: cursor},
	})
	if err != nil {
		return fmt.Errorf("realtime.Tracker.UpdateCursor: %w", err)
	}
	return nil
}

// BeginEdit flags the participant as editing key and relays editing:start.
// Several participants may edit the same entity at once, and one
// participant may edit it from several sessions.
func (t *Tracker) BeginEdit(ctx context.Context, workspaceID string, sessionID uuid.UUID, participantID string, key domain.EntityKey) error {
	t.mu.Lock()
	rp := t.roomLocked(workspaceID)
	editors, ok := rp.editors[key]
	if !ok {
		editors = make(map[string]map[uuid.UUID]struct{})
		rp.editors[key] = editors
	}
	sessions, ok := editors[participantID]
	if !ok {
		sessions = make(map[uuid.UUID]struct{})
		editors[participantID] = sessions
	}
	sessions[sessionID] = struct{}{}
	if p, ok := rp.participants[participantID]; ok {
		p.LastActive = t.now()
	}
	t.attributeLocked(sessionID, workspaceID)
	t.mu.Unlock()

	if err := t.send(ctx, workspaceID, sessionID, editingEvent(domain.EventEditingStart, workspaceID, participantID, key)); err != nil {
		return fmt.Errorf("realtime.Tracker.BeginEdit: %w", err)
	}
	return nil
}

// EndEdit withdraws the session's edit of key. The indicator is cleared,
// and editing:stop relayed, once no session of the participant edits key.
func (t *Tracker) EndEdit(ctx context.Context, workspaceID string, sessionID uuid.UUID, participantID string, key domain.EntityKey) error {
	t.mu.Lock()
	var events []outbound
	if rp, ok := t.workspaces[workspaceID]; ok {
		if dropEditLocked(rp, key, participantID, sessionID) {
			events = append(events, editingEvent(domain.EventEditingStop, workspaceID, participantID, key))
		}
		t.pruneLocked(workspaceID)
	}
	t.mu.Unlock()

	if err := t.send(ctx, workspaceID, sessionID, events...); err != nil {
		return fmt.Errorf("realtime.Tracker.EndEdit: %w", err)
	}
	return nil
}

// LeaveWorkspace clears everything the session contributed to one
// workspace, as if each of its participants announced leave.
func (t *Tracker) LeaveWorkspace(ctx context.Context, workspaceID string, sessionID uuid.UUID) {
	t.mu.Lock()
	events := t.detachLocked(workspaceID, sessionID)
	if set, ok := t.bySession[sessionID]; ok {
		delete(set, workspaceID)
		if len(set) == 0 {
			delete(t.bySession, sessionID)
		}
	}
	t.mu.Unlock()

	if err := t.send(ctx, workspaceID, sessionID, events...); err != nil {
		log.Debug().Err(err).Str("workspace_id", workspaceID).Str("session_id", sessionID.String()).Msg("presence: relay leave")
	}
}

// SessionClosed treats an abrupt disconnect as an implicit leave in every
// workspace the session touched, clearing its editing indicators.
func (t *Tracker) SessionClosed(ctx context.Context, sessionID uuid.UUID) {
	t.mu.Lock()
	touched := make([]string, 0, len(t.bySession[sessionID]))
	for ws := range t.bySession[sessionID] {
		touched = append(touched, ws)
	}
	t.mu.Unlock()

	for _, ws := range touched {
		t.LeaveWorkspace(ctx, ws, sessionID)
	}
}

func (t *Tracker) detachLocked(workspaceID string, sessionID uuid.UUID) []outbound {
	rp, ok := t.workspaces[workspaceID]
	if !ok {
		return nil
	}

	var events []outbound
	for key, editors := range rp.editors {
		for pid := range editors {
			if dropEditLocked(rp, key, pid, sessionID) {
				events = append(events, editingEvent(domain.EventEditingStop, workspaceID, pid, key))
			}
		}
	}
	for pid, sessions := range rp.sessions {
		if _, ok := sessions[sessionID]; ok {
			events = append(events, t.dropSessionLocked(workspaceID, rp, sessionID, pid)...)
		}
	}
	t.pruneLocked(workspaceID)
	return events
}

func (t *Tracker) clearEditsLocked(workspaceID string, rp *roomPresence, sessionID uuid.UUID, participantID string) []outbound {
	var events []outbound
	for key := range rp.editors {
		if dropEditLocked(rp, key, participantID, sessionID) {
			events = append(events, editingEvent(domain.EventEditingStop, workspaceID, participantID, key))
		}
	}
	return events
}

// dropEditLocked removes one session's edit of key and reports whether the
// participant stopped editing it altogether.
func dropEditLocked(rp *roomPresence, key domain.EntityKey, participantID string, sessionID uuid.UUID) bool {
	editors, ok := rp.editors[key]
	if !ok {
		return false
	}
	sessions, ok := editors[participantID]
	if !ok {
		return false
	}
	if _, ok := sessions[sessionID]; !ok {
		return false
	}
	delete(sessions, sessionID)
	if len(sessions) > 0 {
		return false
	}
	delete(editors, participantID)
	if len(editors) == 0 {
		delete(rp.editors, key)
	}
	return true
}

func (t *Tracker) dropSessionLocked(workspaceID string, rp *roomPresence, sessionID uuid.UUID, participantID string) []outbound {
	sessions, ok := rp.sessions[participantID]
	if !ok {
		return nil
	}
	delete(sessions, sessionID)
	if len(sessions) > 0 {
		return nil
	}
	delete(rp.sessions, participantID)
	delete(rp.participants, participantID)
	return []outbound{{
		event:   domain.EventUserLeft,
		payload: domain.UserLeft{WorkspaceID: workspaceID, ParticipantID: participantID},
	}}
}

func (t *Tracker) pruneLocked(workspaceID string) {
	if rp, ok := t.workspaces[workspaceID]; ok && rp.empty() {
		delete(t.workspaces, workspaceID)
	}
}

// Participants returns the workspace's participants ordered by id.
func (t *Tracker) Participants(workspaceID string) []domain.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.participantsLocked(workspaceID)
}

func (t *Tracker) participantsLocked(workspaceID string) []domain.Participant {
	rp, ok := t.workspaces[workspaceID]
	if !ok {
		return []domain.Participant{}
	}
	out := make([]domain.Participant, 0, len(rp.participants))
	for _, p := range rp.participants {
		cp := *p
		if p.Cursor != nil {
			c := *p.Cursor
			cp.Cursor = &c
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Editors returns the participant ids editing key, sorted.
func (t *Tracker) Editors(workspaceID string, key domain.EntityKey) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rp, ok := t.workspaces[workspaceID]
	if !ok {
		return []string{}
	}
	return sortedKeys(rp.editors[key])
}

// State returns the full presence picture of the workspace.
func (t *Tracker) State(workspaceID string) domain.PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stateLocked(workspaceID)
}

func (t *Tracker) stateLocked(workspaceID string) domain.PresenceState {
	state := domain.PresenceState{
		WorkspaceID:  workspaceID,
		Participants: t.participantsLocked(workspaceID),
		Editors:      make(map[string][]string),
	}
	if rp, ok := t.workspaces[workspaceID]; ok {
		for key, editors := range rp.editors {
			state.Editors[key.String()] = sortedKeys(editors)
		}
	}
	return state
}

func (t *Tracker) send(ctx context.Context, workspaceID string, exclude uuid.UUID, events ...outbound) error {
	for _, ev := range events {
		frame, err := domain.EncodeFrame(ev.event, ev.payload)
		if err != nil {
			return err
		}
		if err := t.rooms.Broadcast(ctx, workspaceID, frame, exclude); err != nil {
			return fmt.Errorf("broadcast %s: %w", ev.event, err)
		}
	}
	return nil
}

func editingEvent(event, workspaceID, participantID string, key domain.EntityKey) outbound {
	return outbound{
		event: event,
		payload: domain.EditingChange{
			WorkspaceID:   workspaceID,
			ParticipantID: participantID,
			EntityType:    key.Type,
			EntityID:      key.ID,
		},
	}
}

// assignColor picks the first palette color unused in the room, falling
// back to a stable hash of the participant id.
func assignColor(rp *roomPresence, participantID string) string {
	used := make(map[string]struct{}, len(rp.participants))
	for _, p := range rp.participants {
		used[p.Color] = struct{}{}
	}
	for _, c := range domain.Palette {
		if _, taken := used[c]; !taken {
			return c
		}
	}
	return domain.Palette[xxhash.Sum64String(participantID)%uint64(len(domain.Palette))]
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
