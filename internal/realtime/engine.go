package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/domain"
)

// Peer is one connected session as the engine sees it. Frames from a
// single peer are handled sequentially by its transport reader.
type Peer struct {
	ID       uuid.UUID
	Identity domain.Identity
	Sink     Sink

	participantID string
}

func NewPeer(id uuid.UUID, identity domain.Identity, sink Sink) *Peer {
	return &Peer{ID: id, Identity: identity, Sink: sink}
}

// ParticipantID is the presence identity the peer announced, falling back
// to the authenticated user id.
func (p *Peer) ParticipantID() string {
	if p.participantID != "" {
		return p.participantID
	}
	return p.Identity.UserID
}

type handlerFunc func(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error

// Engine wires the room registry, presence tracker and mutation relay
// behind one frame dispatcher.
type Engine struct {
	Rooms     Rooms
	Presence  *Tracker
	Relay     *Relay
	Lifecycle *Lifecycle

	handlers map[string]handlerFunc
}

// NewEngine builds an Engine over the given stores. Presence cleanup runs
// before room membership is dropped so that leave events still reach the
// room.
func NewEngine(rooms Rooms, versions Versions) *Engine {
	e := &Engine{
		Rooms:     rooms,
		Presence:  NewTracker(rooms),
		Relay:     NewRelay(rooms, versions),
		Lifecycle: &Lifecycle{},
	}
	e.Lifecycle.OnSessionClosed(e.Presence)
	if closer, ok := rooms.(SessionCloser); ok {
		e.Lifecycle.OnSessionClosed(closer)
	}

	e.handlers = map[string]handlerFunc{
		domain.EventBoardJoin:     handleBoardJoin,
		domain.EventBoardLeave:    handleBoardLeave,
		domain.EventPresenceJoin:  handlePresenceJoin,
		domain.EventPresenceLeave: handlePresenceLeave,
		domain.EventCursorMove:    handleCursorMove,
		domain.EventEditingBegin:  handleEditing(true),
		domain.EventEditingEnd:    handleEditing(false),

		domain.EventCardCreated:   mutation((*Relay).CardCreated),
		domain.EventCardUpdated:   mutation((*Relay).CardUpdated),
		domain.EventCardDeleted:   mutation((*Relay).CardDeleted),
		domain.EventCardMove:      mutation((*Relay).CardMoved),
		domain.EventColumnCreated: mutation((*Relay).ColumnCreated),
		domain.EventColumnUpdated: mutation((*Relay).ColumnUpdated),
		domain.EventColumnDeleted: mutation((*Relay).ColumnDeleted),
		domain.EventBoardUpdated:  mutation((*Relay).BoardUpdated),
	}
	return e
}

// Handle dispatches one inbound frame. Errors are for logging only; the
// caller drops the frame and keeps the session open.
func (e *Engine) Handle(ctx context.Context, peer *Peer, f domain.Frame) error {
	h, ok := e.handlers[f.Type]
	if !ok {
		return fmt.Errorf("realtime.Engine.Handle: %q: %w", f.Type, domain.ErrUnknownEvent)
	}
	if err := h(ctx, e, peer, f.Payload); err != nil {
		return fmt.Errorf("realtime.Engine.Handle: %s: %w", f.Type, err)
	}
	return nil
}

// Close runs the session-closed lifecycle for peer.
func (e *Engine) Close(ctx context.Context, peer *Peer) {
	e.Lifecycle.CloseSession(ctx, peer.ID)
}

func (e *Engine) requireRoom(peer *Peer, workspaceID string) error {
	if room, ok := e.Rooms.RoomOf(peer.ID); !ok || room != workspaceID {
		return fmt.Errorf("workspace %q: %w", workspaceID, domain.ErrNotInRoom)
	}
	return nil
}

func decode[T validator](raw json.RawMessage) (T, error) {
	p, err := domain.DecodePayload[T](raw)
	if err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func handleBoardJoin(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error {
	p, err := decode[domain.BoardJoin](raw)
	if err != nil {
		return err
	}
	if prev, ok := e.Rooms.RoomOf(peer.ID); ok && prev != p.WorkspaceID {
		e.Presence.LeaveWorkspace(ctx, prev, peer.ID)
		peer.participantID = ""
	}
	e.Rooms.Join(peer.ID, p.WorkspaceID, peer.Sink)
	return nil
}

func handleBoardLeave(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error {
	p, err := decode[domain.BoardJoin](raw)
	if err != nil {
		return err
	}
	if room, ok := e.Rooms.RoomOf(peer.ID); !ok || room != p.WorkspaceID {
		return nil
	}
	e.Presence.LeaveWorkspace(ctx, p.WorkspaceID, peer.ID)
	e.Rooms.Leave(peer.ID, p.WorkspaceID)
	peer.participantID = ""
	return nil
}

func handlePresenceJoin(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error {
	p, err := decode[domain.PresenceJoin](raw)
	if err != nil {
		return err
	}
	if err := e.requireRoom(peer, p.WorkspaceID); err != nil {
		return err
	}

	// The transport identity wins over whatever the client claims.
	participant := p.Participant
	if peer.Identity.UserID != "" {
		participant.ID = peer.Identity.UserID
	}
	if participant.Name == "" {
		participant.Name = peer.Identity.Name
	}

	state, err := e.Presence.AnnounceJoin(ctx, p.WorkspaceID, peer.ID, participant)
	if err != nil {
		return err
	}
	peer.participantID = participant.ID

	frame, err := domain.EncodeFrame(domain.EventPresenceUpdate, state)
	if err != nil {
		return err
	}
	peer.Sink.Deliver(frame)
	return nil
}

func handlePresenceLeave(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error {
	p, err := decode[domain.PresenceLeave](raw)
	if err != nil {
		return err
	}
	pid := peer.ParticipantID()
	if pid == "" {
		pid = p.ParticipantID
	}
	if pid == "" {
		return fmt.Errorf("presence leave: participant unknown: %w", domain.ErrMalformedEvent)
	}
	if err := e.Presence.AnnounceLeave(ctx, p.WorkspaceID, peer.ID, pid); err != nil {
		return err
	}
	peer.participantID = ""
	return nil
}

func handleCursorMove(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error {
	p, err := decode[domain.CursorMove](raw)
	if err != nil {
		return err
	}
	if err := e.requireRoom(peer, p.WorkspaceID); err != nil {
		return err
	}
	return e.Presence.UpdateCursor(ctx, p.WorkspaceID, peer.ID, peer.ParticipantID(), p.Cursor)
}

func handleEditing(begin bool) handlerFunc {
	return func(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error {
		p, err := decode[domain.EditingSignal](raw)
		if err != nil {
			return err
		}
		ws, ok := e.Rooms.RoomOf(peer.ID)
		if !ok {
			return domain.ErrNotInRoom
		}
		pid := peer.ParticipantID()
		if pid == "" {
			return fmt.Errorf("editing: participant unknown: %w", domain.ErrMalformedEvent)
		}
		if begin {
			return e.Presence.BeginEdit(ctx, ws, peer.ID, pid, p.Key())
		}
		return e.Presence.EndEdit(ctx, ws, peer.ID, pid, p.Key())
	}
}

func mutation[T validator](relay func(*Relay, context.Context, uuid.UUID, T) (domain.Mutation, error)) handlerFunc {
	return func(ctx context.Context, e *Engine, peer *Peer, raw json.RawMessage) error {
		if !peer.Identity.Role.CanWrite() {
			return fmt.Errorf("role %q: %w", peer.Identity.Role, domain.ErrForbidden)
		}
		p, err := domain.DecodePayload[T](raw)
		if err != nil {
			return err
		}
		_, err = relay(e.Relay, ctx, peer.ID, p)
		return err
	}
}
