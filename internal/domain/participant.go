package domain

import "time"

// Palette is the fixed set of display colors handed out to participants.
var Palette = []string{ //nolint:gochecknoglobals // fixed palette
	"#e6194b",
	"#3cb44b",
	"#4363d8",
	"#f58231",
	"#911eb4",
	"#42d4f4",
	"#f032e6",
	"#9a6324",
}

type Role string

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanWrite reports whether the role may emit structural mutations.
func (r Role) CanWrite() bool {
	return r != RoleViewer
}

// Identity is what the authentication layer presents for a session.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}

// Cursor is a participant's pointer position, optionally hovering an entity.
type Cursor struct {
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	EntityType EntityType `json:"entityType,omitempty"`
	EntityID   string     `json:"entityId,omitempty"`
}

// Participant is a transient presence entry. It is never persisted.
type Participant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	LastActive time.Time `json:"lastActive"`
	Cursor     *Cursor   `json:"cursor,omitempty"`
}
