package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/boardsync/internal/api/v1"
	"github.com/gosuda/boardsync/internal/api/ws"
)

func registerAPIRoutes(api huma.API, store v1.DataStore, presence v1.PresenceReader) {
	v1.RegisterBoardRoutes(api, store)
	v1.RegisterPresenceRoutes(api, presence)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/board", hub.ServeBoard)
}
