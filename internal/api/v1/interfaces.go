package v1

import (
	"github.com/gosuda/boardsync/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Boards() domain.BoardRepository
}

// PresenceReader exposes the node-local presence picture of a workspace.
// *realtime.Tracker satisfies this interface.
type PresenceReader interface {
	State(workspaceID string) domain.PresenceState
}
