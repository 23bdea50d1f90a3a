package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/server/middleware"
)

type GetBoardInput struct {
	BoardID string `path:"boardID" minLength:"1" maxLength:"128" doc:"Board (workspace) ID"`
}

type GetBoardOutput struct {
	Body *domain.Snapshot
}

type GetPresenceOutput struct {
	Body domain.PresenceState
}

// RegisterBoardRoutes mounts the snapshot route clients load on join and
// reconnect. The relay carries no history, so this is the only way to
// catch up.
func RegisterBoardRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}",
		Summary:     "Get the authoritative board snapshot",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *GetBoardInput) (*GetBoardOutput, error) {
		if _, ok := middleware.IdentityFromContext(ctx); !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		snap, err := store.Boards().GetSnapshot(ctx, input.BoardID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("board not found")
		}
		if err != nil {
			log.Error().Err(err).Str("workspace_id", input.BoardID).Msg("v1: load snapshot")
			return nil, huma.Error500InternalServerError("failed to load board", err)
		}
		if snap.Columns == nil {
			snap.Columns = []domain.Column{}
		}

		return &GetBoardOutput{Body: snap}, nil
	})
}

// RegisterPresenceRoutes mounts a read-only view of who is on a board as
// seen by this node.
func RegisterPresenceRoutes(api huma.API, presence PresenceReader) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board-presence",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}/presence",
		Summary:     "Get participants and editors of a board",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *GetBoardInput) (*GetPresenceOutput, error) {
		if _, ok := middleware.IdentityFromContext(ctx); !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}
		return &GetPresenceOutput{Body: presence.State(input.BoardID)}, nil
	})
}
