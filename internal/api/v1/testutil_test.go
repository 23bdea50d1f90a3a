package v1_test

import (
	"context"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers inject identity into the context for GetCtx.
// ---------------------------------------------------------------------------

func userCtx(userID string) context.Context {
	return middleware.WithIdentity(context.Background(), domain.Identity{UserID: userID, Role: domain.RoleEditor})
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	boards domain.BoardRepository
}

func (m *mockDataStore) Boards() domain.BoardRepository { return m.boards }

// ---------------------------------------------------------------------------
// Mock BoardRepository
// ---------------------------------------------------------------------------

type mockBoardRepo struct {
	getSnapshotFunc func(ctx context.Context, boardID string) (*domain.Snapshot, error)
}

func (m *mockBoardRepo) GetSnapshot(ctx context.Context, boardID string) (*domain.Snapshot, error) {
	return m.getSnapshotFunc(ctx, boardID)
}

// ---------------------------------------------------------------------------
// Mock PresenceReader
// ---------------------------------------------------------------------------

type mockPresence struct {
	stateFunc func(workspaceID string) domain.PresenceState
}

func (m *mockPresence) State(workspaceID string) domain.PresenceState {
	return m.stateFunc(workspaceID)
}
