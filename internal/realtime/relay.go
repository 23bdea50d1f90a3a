package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/domain"
)

type validator interface {
	Validate() error
}

// Relay accepts typed mutations from one session, stamps versions on
// updates, and fans them out to the rest of the room. It never touches the
// durable store.
type Relay struct {
	rooms    Rooms
	versions Versions
}

// NewRelay returns a Relay that broadcasts through rooms and stamps from
// versions.
func NewRelay(rooms Rooms, versions Versions) *Relay {
	return &Relay{rooms: rooms, versions: versions}
}

// Epoch reports the lifetime of the version counters the relay stamps from.
func (r *Relay) Epoch(ctx context.Context) (string, error) {
	epoch, err := r.versions.Epoch(ctx)
	if err != nil {
		return "", fmt.Errorf("realtime.Relay.Epoch: %w", err)
	}
	return epoch, nil
}

// CardCreated relays a new card. Creations are not versioned.
func (r *Relay) CardCreated(ctx context.Context, sessionID uuid.UUID, p domain.CardCreated) (domain.Mutation, error) {
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindCardCreated, p, nil)
}

// CardUpdated stamps the next card version and relays the patch.
func (r *Relay) CardUpdated(ctx context.Context, sessionID uuid.UUID, p domain.CardUpdated) (domain.Mutation, error) {
	key := domain.NewEntityKey(domain.EntityCard, p.CardID)
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindCardUpdated, p, &key)
}

// CardDeleted relays a card removal.
func (r *Relay) CardDeleted(ctx context.Context, sessionID uuid.UUID, p domain.CardDeleted) (domain.Mutation, error) {
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindCardDeleted, p, nil)
}

// CardMoved relays a card moving between or within columns.
func (r *Relay) CardMoved(ctx context.Context, sessionID uuid.UUID, p domain.CardMoved) (domain.Mutation, error) {
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindCardMoved, p, nil)
}

// ColumnCreated relays a new column.
func (r *Relay) ColumnCreated(ctx context.Context, sessionID uuid.UUID, p domain.ColumnCreated) (domain.Mutation, error) {
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindColumnCreated, p, nil)
}

// ColumnUpdated stamps the next column version and relays the patch.
func (r *Relay) ColumnUpdated(ctx context.Context, sessionID uuid.UUID, p domain.ColumnUpdated) (domain.Mutation, error) {
	key := domain.NewEntityKey(domain.EntityColumn, p.ColumnID)
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindColumnUpdated, p, &key)
}

// ColumnDeleted relays a column removal.
func (r *Relay) ColumnDeleted(ctx context.Context, sessionID uuid.UUID, p domain.ColumnDeleted) (domain.Mutation, error) {
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindColumnDeleted, p, nil)
}

// BoardUpdated stamps the next board version and relays the patch.
func (r *Relay) BoardUpdated(ctx context.Context, sessionID uuid.UUID, p domain.BoardUpdated) (domain.Mutation, error) {
	key := domain.NewEntityKey(domain.EntityBoard, p.WorkspaceID)
	return r.relay(ctx, sessionID, p.WorkspaceID, domain.KindBoardUpdated, p, &key)
}

// relay runs validate -> version -> broadcast. The version is taken only
// once the mutation is known to be relayed.
func (r *Relay) relay(ctx context.Context, sessionID uuid.UUID, workspaceID string, kind domain.Kind, payload validator, versionKey *domain.EntityKey) (domain.Mutation, error) {
	if err := payload.Validate(); err != nil {
		return domain.Mutation{}, fmt.Errorf("realtime.Relay %s: %w", kind, err)
	}
	if room, ok := r.rooms.RoomOf(sessionID); !ok || room != workspaceID {
		return domain.Mutation{}, fmt.Errorf("realtime.Relay %s: workspace %q: %w", kind, workspaceID, domain.ErrNotInRoom)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Mutation{}, fmt.Errorf("realtime.Relay %s: marshal: %w", kind, err)
	}
	m := domain.Mutation{
		WorkspaceID: workspaceID,
		Kind:        kind,
		Origin:      sessionID.String(),
		Payload:     raw,
	}

	if versionKey != nil {
		v, verr := r.versions.NextVersion(ctx, *versionKey)
		if verr != nil {
			return domain.Mutation{}, fmt.Errorf("realtime.Relay %s: next version: %w", kind, verr)
		}
		m.Version = v
	}

	frame, err := domain.EncodeFrame(kind.Event(), m)
	if err != nil {
		return domain.Mutation{}, fmt.Errorf("realtime.Relay %s: %w", kind, err)
	}
	if err := r.rooms.Broadcast(ctx, workspaceID, frame, sessionID); err != nil {
		return domain.Mutation{}, fmt.Errorf("realtime.Relay %s: broadcast: %w", kind, err)
	}
	return m, nil
}
