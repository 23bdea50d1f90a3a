package domain

import (
	"encoding/json"
	"fmt"
)

// Wire event names. Client-to-server mutation names are reflected back to
// the rest of the room unchanged.
const (
	EventBoardJoin     = "board:join"
	EventBoardLeave    = "board:leave"
	EventPresenceJoin  = "presence:join"
	EventPresenceLeave = "presence:leave"
	EventCursorMove    = "cursor:move"
	EventEditingBegin  = "editing:begin"
	EventEditingEnd    = "editing:end"

	EventCardCreated   = "card:created"
	EventCardUpdated   = "card:updated"
	EventCardDeleted   = "card:deleted"
	EventCardMove      = "card:move"
	EventColumnCreated = "column:created"
	EventColumnUpdated = "column:updated"
	EventColumnDeleted = "column:deleted"
	EventBoardUpdated  = "board:updated"

	EventSessionWelcome = "session:welcome"
	EventUserJoined     = "user:joined"
	EventUserLeft       = "user:left"
	EventPresenceUpdate = "presence:update"
	EventCursorUpdate   = "cursor:update"
	EventEditingStart   = "editing:start"
	EventEditingStop    = "editing:stop"
)

// Kind classifies a structural mutation.
type Kind string

const (
	KindCardCreated   Kind = "card.created"
	KindCardUpdated   Kind = "card.updated"
	KindCardDeleted   Kind = "card.deleted"
	KindCardMoved     Kind = "card.moved"
	KindColumnCreated Kind = "column.created"
	KindColumnUpdated Kind = "column.updated"
	KindColumnDeleted Kind = "column.deleted"
	KindBoardUpdated  Kind = "board.updated"
)

var kindEvents = map[Kind]string{ //nolint:gochecknoglobals // static lookup
	KindCardCreated:   EventCardCreated,
	KindCardUpdated:   EventCardUpdated,
	KindCardDeleted:   EventCardDeleted,
	KindCardMoved:     EventCardMove,
	KindColumnCreated: EventColumnCreated,
	KindColumnUpdated: EventColumnUpdated,
	KindColumnDeleted: EventColumnDeleted,
	KindBoardUpdated:  EventBoardUpdated,
}

// Event returns the wire event name carrying mutations of this kind.
func (k Kind) Event() string {
	return kindEvents[k]
}

// KindForEvent maps a wire event name back to its mutation kind.
func KindForEvent(event string) (Kind, bool) {
	for k, e := range kindEvents {
		if e == event {
			return k, true
		}
	}
	return "", false
}

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame marshals payload into a frame of the given type.
func EncodeFrame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("domain.EncodeFrame: %s: %w", event, err)
	}
	out, err := json.Marshal(Frame{Type: event, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("domain.EncodeFrame: %s: %w", event, err)
	}
	return out, nil
}

// DecodeFrame parses the envelope; the payload is left raw.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("domain.DecodeFrame: %w: %w", ErrMalformedEvent, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("domain.DecodeFrame: missing type: %w", ErrMalformedEvent)
	}
	return f, nil
}

// DecodePayload unmarshals a frame payload into T.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("domain.DecodePayload: empty payload: %w", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("domain.DecodePayload: %w: %w", ErrMalformedEvent, err)
	}
	return v, nil
}

// Mutation is the relayed unit of a structural change. Origin is the id of
// the session that emitted it; Version is set for *.updated kinds only.
type Mutation struct {
	WorkspaceID string          `json:"workspaceId"`
	Kind        Kind            `json:"kind"`
	Origin      string          `json:"origin,omitempty"`
	Version     int64           `json:"version,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

func malformed(what string) error {
	return fmt.Errorf("%s: %w", what, ErrMalformedEvent)
}

// ---------------------------------------------------------------------------
// Room and presence payloads
// ---------------------------------------------------------------------------

type BoardJoin struct {
	WorkspaceID string `json:"workspaceId"`
}

func (p BoardJoin) Validate() error {
	if p.WorkspaceID == "" {
		return malformed("board join: workspaceId is required")
	}
	return nil
}

type PresenceJoin struct {
	WorkspaceID string      `json:"workspaceId"`
	Participant Participant `json:"participant"`
}

func (p PresenceJoin) Validate() error {
	if p.WorkspaceID == "" {
		return malformed("presence join: workspaceId is required")
	}
	return nil
}

type PresenceLeave struct {
	WorkspaceID   string `json:"workspaceId"`
	ParticipantID string `json:"participantId"`
}

func (p PresenceLeave) Validate() error {
	if p.WorkspaceID == "" {
		return malformed("presence leave: workspaceId is required")
	}
	return nil
}

type CursorMove struct {
	WorkspaceID string `json:"workspaceId"`
	Cursor      Cursor `json:"cursor"`
}

func (p CursorMove) Validate() error {
	if p.WorkspaceID == "" {
		return malformed("cursor move: workspaceId is required")
	}
	return nil
}

// EditingSignal is sent by a client on begin/end edit. The workspace is the
// session's joined room.
type EditingSignal struct {
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
}

func (p EditingSignal) Validate() error {
	if !p.EntityType.Valid() {
		return malformed("editing: unknown entityType " + string(p.EntityType))
	}
	if p.EntityID == "" {
		return malformed("editing: entityId is required")
	}
	return nil
}

func (p EditingSignal) Key() EntityKey {
	return NewEntityKey(p.EntityType, p.EntityID)
}

// SessionWelcome is the first frame of every session. Epoch changes when
// the server's version counters restart, which invalidates versions a
// client still holds.
type SessionWelcome struct {
	SessionID string `json:"sessionId"`
	Epoch     string `json:"epoch"`
}

type UserJoined struct {
	WorkspaceID string      `json:"workspaceId"`
	Participant Participant `json:"participant"`
}

type UserLeft struct {
	WorkspaceID   string `json:"workspaceId"`
	ParticipantID string `json:"participantId"`
}

// PresenceState is the full presence picture of a workspace. Editors is
// indexed by the composite "type:id" entity key.
type PresenceState struct {
	WorkspaceID  string              `json:"workspaceId"`
	Participants []Participant       `json:"participants"`
	Editors      map[string][]string `json:"editors"`
}

type CursorUpdate struct {
	WorkspaceID   string `json:"workspaceId"`
	ParticipantID string `json:"participantId"`
	Cursor        Cursor `json:"cursor"`
}

type EditingChange struct {
	WorkspaceID   string     `json:"workspaceId"`
	ParticipantID string     `json:"participantId"`
	EntityType    EntityType `json:"entityType"`
	EntityID      string     `json:"entityId"`
}

// ---------------------------------------------------------------------------
// Mutation payloads
// ---------------------------------------------------------------------------

type CardCreated struct {
	WorkspaceID string `json:"workspaceId"`
	ColumnID    string `json:"columnId"`
	Card        Card   `json:"card"`
}

func (p CardCreated) Validate() error {
	switch {
	case p.WorkspaceID == "":
		return malformed("card created: workspaceId is required")
	case p.ColumnID == "":
		return malformed("card created: columnId is required")
	case p.Card.ID == "":
		return malformed("card created: card.id is required")
	}
	return nil
}

type CardUpdated struct {
	WorkspaceID string    `json:"workspaceId"`
	ColumnID    string    `json:"columnId"`
	CardID      string    `json:"cardId"`
	Updates     CardPatch `json:"updates"`
}

func (p CardUpdated) Validate() error {
	switch {
	case p.WorkspaceID == "":
		return malformed("card updated: workspaceId is required")
	case p.CardID == "":
		return malformed("card updated: cardId is required")
	case p.Updates.Empty():
		return malformed("card updated: updates are empty")
	}
	return nil
}

type CardDeleted struct {
	WorkspaceID string `json:"workspaceId"`
	ColumnID    string `json:"columnId"`
	CardID      string `json:"cardId"`
}

func (p CardDeleted) Validate() error {
	if p.WorkspaceID == "" || p.CardID == "" {
		return malformed("card deleted: workspaceId and cardId are required")
	}
	return nil
}

type CardMoved struct {
	WorkspaceID  string `json:"workspaceId"`
	CardID       string `json:"cardId"`
	FromColumnID string `json:"fromColumnId"`
	ToColumnID   string `json:"toColumnId"`
	NewIndex     int    `json:"newIndex"`
}

func (p CardMoved) Validate() error {
	switch {
	case p.WorkspaceID == "" || p.CardID == "":
		return malformed("card move: workspaceId and cardId are required")
	case p.FromColumnID == "" || p.ToColumnID == "":
		return malformed("card move: fromColumnId and toColumnId are required")
	case p.NewIndex < 0:
		return malformed("card move: newIndex must be >= 0")
	}
	return nil
}

type ColumnCreated struct {
	WorkspaceID string `json:"workspaceId"`
	Column      Column `json:"column"`
}

func (p ColumnCreated) Validate() error {
	if p.WorkspaceID == "" || p.Column.ID == "" {
		return malformed("column created: workspaceId and column.id are required")
	}
	return nil
}

type ColumnUpdated struct {
	WorkspaceID string      `json:"workspaceId"`
	ColumnID    string      `json:"columnId"`
	Updates     ColumnPatch `json:"updates"`
}

func (p ColumnUpdated) Validate() error {
	switch {
	case p.WorkspaceID == "" || p.ColumnID == "":
		return malformed("column updated: workspaceId and columnId are required")
	case p.Updates.Empty():
		return malformed("column updated: updates are empty")
	}
	return nil
}

type ColumnDeleted struct {
	WorkspaceID string `json:"workspaceId"`
	ColumnID    string `json:"columnId"`
}

func (p ColumnDeleted) Validate() error {
	if p.WorkspaceID == "" || p.ColumnID == "" {
		return malformed("column deleted: workspaceId and columnId are required")
	}
	return nil
}

type BoardUpdated struct {
	WorkspaceID string     `json:"workspaceId"`
	Updates     BoardPatch `json:"updates"`
}

func (p BoardUpdated) Validate() error {
	switch {
	case p.WorkspaceID == "":
		return malformed("board updated: workspaceId is required")
	case p.Updates.Empty():
		return malformed("board updated: updates are empty")
	}
	return nil
}
