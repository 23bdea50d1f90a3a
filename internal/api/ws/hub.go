package ws

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
	"github.com/gosuda/boardsync/internal/server/middleware"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 10 * time.Second
)

// Options tunes per-session behaviour.
type Options struct {
	SendQueue      int
	CursorRate     float64
	CursorBurst    int
	OriginPatterns []string
}

// Hub accepts board websocket sessions and feeds their frames to the
// realtime engine.
type Hub struct {
	engine *realtime.Engine
	opts   Options
	active atomic.Int64
}

// NewHub creates a new WebSocket hub.
func NewHub(engine *realtime.Engine, opts Options) *Hub {
	if opts.SendQueue < 1 {
		opts.SendQueue = 64
	}
	if opts.CursorRate <= 0 {
		opts.CursorRate = 30
	}
	if opts.CursorBurst < 1 {
		opts.CursorBurst = 10
	}
	return &Hub{engine: engine, opts: opts}
}

// Sessions returns the number of open sessions on this node.
func (h *Hub) Sessions() int64 {
	return h.active.Load()
}

// session is the transport half of a peer. Outbound frames are queued and
// written by a dedicated goroutine; a full queue drops the frame.
type session struct {
	id   uuid.UUID
	send chan []byte

	once sync.Once
	done chan struct{}
}

func newSession(queue int) *session {
	return &session{
		id:   uuid.New(),
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (s *session) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		log.Debug().Str("session_id", s.id.String()).Msg("ws: send queue full, frame dropped")
		return false
	}
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *session) writeLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case frame := <-s.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			wcancel()
			if err != nil {
				log.Debug().Err(err).Str("session_id", s.id.String()).Msg("websocket write")
				return
			}
		}
	}
}

// ServeBoard handles WebSocket connections for board synchronization. The
// identity is set by the auth middleware; the first frame sent is
// session:welcome carrying the id stamped on this session's mutations.
func (h *Hub) ServeBoard(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing identity"}`, http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := newSession(h.opts.SendQueue)
	peer := realtime.NewPeer(s.id, identity, s)
	logger := log.With().Str("session_id", s.id.String()).Str("user_id", identity.UserID).Logger()

	epoch, err := h.engine.Relay.Epoch(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("websocket welcome")
		_ = conn.Close(websocket.StatusInternalError, "version store unavailable")
		return
	}
	welcome, err := domain.EncodeFrame(domain.EventSessionWelcome, domain.SessionWelcome{SessionID: s.id.String(), Epoch: epoch})
	if err != nil {
		logger.Error().Err(err).Msg("websocket welcome")
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, welcome); err != nil {
		logger.Debug().Err(err).Msg("websocket welcome")
		return
	}

	h.active.Add(1)
	defer h.active.Add(-1)
	logger.Info().Msg("ws: session opened")

	go s.writeLoop(ctx, conn, cancel)

	defer func() {
		// Leave events must still reach the rest of the room after the
		// request context is gone.
		h.engine.Close(context.WithoutCancel(ctx), peer)
		s.close()
		logger.Info().Msg("ws: session closed")
	}()

	cursor := rate.NewLimiter(rate.Limit(h.opts.CursorRate), h.opts.CursorBurst)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}

		f, err := domain.DecodeFrame(data)
		if err != nil {
			logger.Debug().Err(err).Msg("ws: drop frame")
			continue
		}
		if f.Type == domain.EventCursorMove && !cursor.Allow() {
			continue
		}

		if err := h.engine.Handle(ctx, peer, f); err != nil {
			ws, _ := h.engine.Rooms.RoomOf(peer.ID)
			logger.Debug().Err(err).Str("event", f.Type).Str("workspace_id", ws).Msg("ws: drop event")
		}
	}
}
