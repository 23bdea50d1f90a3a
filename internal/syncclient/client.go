package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/domain"
)

// ErrNotConnected is returned by emit helpers while no session is open.
var ErrNotConnected = errors.New("syncclient: not connected") //nolint:gochecknoglobals // sentinel error

const readLimit = 1 << 20

// Options configures a Client.
type Options struct {
	ServerURL   string // http(s)://host[:port]
	BoardID     string
	Token       string
	Participant domain.Participant
	// Source defaults to an HTTPSource against ServerURL.
	Source     SnapshotSource
	HTTPClient *http.Client
	// OnEvent, when set, is called from the read loop after each inbound
	// frame has been folded.
	OnEvent func(Event)
}

// Event describes one inbound frame after folding.
type Event struct {
	Frame    domain.Frame
	Mutation *domain.Mutation
	Outcome  Outcome
	Snapshot *domain.Snapshot
}

// Client keeps one board snapshot in sync with the room over a websocket.
type Client struct {
	opts     Options
	adapter  *Adapter
	presence *PresenceView

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

// New returns an unconnected Client.
func New(opts Options) *Client {
	if opts.Source == nil {
		opts.Source = &HTTPSource{BaseURL: opts.ServerURL, Token: opts.Token, HTTPClient: opts.HTTPClient}
	}
	return &Client{
		opts:     opts,
		adapter:  NewAdapter(NewEchoFilter()),
		presence: NewPresenceView(),
	}
}

func (c *Client) Adapter() *Adapter         { return c.adapter }
func (c *Client) Presence() *PresenceView   { return c.presence }
func (c *Client) Snapshot() *domain.Snapshot { return c.adapter.Snapshot() }

// SessionID returns the id the server assigned to the current connection.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) boardURL() (string, error) {
	u, err := url.Parse(c.opts.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/board"
	if c.opts.Token != "" {
		q := u.Query()
		q.Set("token", c.opts.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect dials the server, joins the board room, loads the authoritative
// snapshot and announces presence. Joining happens before the fetch so that
// nothing relayed in between is lost.
func (c *Client) Connect(ctx context.Context) error {
	target, err := c.boardURL()
	if err != nil {
		return fmt.Errorf("syncclient.Client.Connect: %w", err)
	}

	opts := &websocket.DialOptions{HTTPClient: c.opts.HTTPClient}
	if c.opts.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.opts.Token}}
	}
	conn, resp, err := websocket.Dial(ctx, target, opts)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("syncclient.Client.Connect: dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	welcome, err := readWelcome(ctx, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "expected welcome")
		return fmt.Errorf("syncclient.Client.Connect: %w", err)
	}
	c.adapter.Echo().SetSelf(welcome.SessionID)
	c.adapter.SetEpoch(welcome.Epoch)

	c.mu.Lock()
	c.conn = conn
	c.sessionID = welcome.SessionID
	c.mu.Unlock()

	if err := c.join(ctx); err != nil {
		c.abandon(conn)
		return fmt.Errorf("syncclient.Client.Connect: %w", err)
	}
	return nil
}

func (c *Client) join(ctx context.Context) error {
	if err := c.send(ctx, domain.EventBoardJoin, domain.BoardJoin{WorkspaceID: c.opts.BoardID}); err != nil {
		return err
	}

	snap, err := c.opts.Source.FetchSnapshot(ctx, c.opts.BoardID)
	if err != nil {
		return err
	}
	c.adapter.Reset(snap)

	join := domain.PresenceJoin{WorkspaceID: c.opts.BoardID, Participant: c.opts.Participant}
	return c.send(ctx, domain.EventPresenceJoin, join)
}

// abandon drops a half-joined connection so the server releases its room
// membership.
func (c *Client) abandon(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.sessionID = ""
	}
	c.mu.Unlock()
	_ = conn.CloseNow()
}

func readWelcome(ctx context.Context, conn *websocket.Conn) (domain.SessionWelcome, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return domain.SessionWelcome{}, fmt.Errorf("read welcome: %w", err)
	}
	f, err := domain.DecodeFrame(data)
	if err != nil {
		return domain.SessionWelcome{}, err
	}
	if f.Type != domain.EventSessionWelcome {
		return domain.SessionWelcome{}, fmt.Errorf("first frame %q: %w", f.Type, domain.ErrMalformedEvent)
	}
	return domain.DecodePayload[domain.SessionWelcome](f.Payload)
}

// Run reads and folds frames until the connection ends. A normal closure
// returns nil.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("syncclient.Client.Run: %w", err)
		}

		f, err := domain.DecodeFrame(data)
		if err != nil {
			log.Debug().Err(err).Msg("syncclient: drop frame")
			continue
		}
		c.handle(f)
	}
}

func (c *Client) handle(f domain.Frame) {
	ev := Event{Frame: f}

	if _, isMutation := domain.KindForEvent(f.Type); isMutation {
		m, err := domain.DecodePayload[domain.Mutation](f.Payload)
		if err != nil {
			log.Debug().Err(err).Str("event", f.Type).Msg("syncclient: drop mutation")
			return
		}
		outcome, err := c.adapter.ApplyInbound(m)
		if err != nil {
			log.Debug().Err(err).Str("event", f.Type).Msg("syncclient: fold mutation")
			return
		}
		ev.Mutation = &m
		ev.Outcome = outcome
	} else if _, err := c.presence.Apply(f); err != nil {
		log.Debug().Err(err).Str("event", f.Type).Msg("syncclient: fold presence")
		return
	}

	ev.Snapshot = c.adapter.Snapshot()
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

// Sync connects and runs, reconnecting with exponential backoff until ctx
// is done. Every reconnect re-joins the room and reloads the snapshot.
func (c *Client) Sync(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = 30 * time.Second

	op := func() error {
		if err := c.Connect(ctx); err != nil {
			return err
		}
		b.Reset()
		return c.Run(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Str("board_id", c.opts.BoardID).Msg("syncclient: connection lost")
	}

	for {
		err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("syncclient.Client.Sync: %w", err)
		}
		// Clean server-side close: reconnect straight away.
	}
}

// Close ends the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		return fmt.Errorf("syncclient.Client.Close: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, event string, payload any) error {
	frame, err := domain.EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// mutate folds the change into the local snapshot first, then emits it.
func (c *Client) mutate(ctx context.Context, kind domain.Kind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("syncclient.Client: %s: %w", kind, err)
	}
	m := domain.Mutation{WorkspaceID: c.opts.BoardID, Kind: kind, Payload: raw}
	if _, err := c.adapter.ApplyLocal(m); err != nil {
		return fmt.Errorf("syncclient.Client: %s: %w", kind, err)
	}
	if err := c.send(ctx, kind.Event(), payload); err != nil {
		return fmt.Errorf("syncclient.Client: %w", err)
	}
	return nil
}

// CreateCard mints an id when card.ID is empty and returns the id used.
func (c *Client) CreateCard(ctx context.Context, columnID string, card domain.Card) (string, error) {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	card.ColumnID = columnID
	now := time.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now
	p := domain.CardCreated{WorkspaceID: c.opts.BoardID, ColumnID: columnID, Card: card}
	return card.ID, c.mutate(ctx, domain.KindCardCreated, p)
}

func (c *Client) UpdateCard(ctx context.Context, columnID, cardID string, patch domain.CardPatch) error {
	p := domain.CardUpdated{WorkspaceID: c.opts.BoardID, ColumnID: columnID, CardID: cardID, Updates: patch}
	return c.mutate(ctx, domain.KindCardUpdated, p)
}

func (c *Client) DeleteCard(ctx context.Context, columnID, cardID string) error {
	p := domain.CardDeleted{WorkspaceID: c.opts.BoardID, ColumnID: columnID, CardID: cardID}
	return c.mutate(ctx, domain.KindCardDeleted, p)
}

func (c *Client) MoveCard(ctx context.Context, cardID, fromColumnID, toColumnID string, newIndex int) error {
	p := domain.CardMoved{
		WorkspaceID:  c.opts.BoardID,
		CardID:       cardID,
		FromColumnID: fromColumnID,
		ToColumnID:   toColumnID,
		NewIndex:     newIndex,
	}
	return c.mutate(ctx, domain.KindCardMoved, p)
}

// CreateColumn mints an id when column.ID is empty and returns the id used.
func (c *Client) CreateColumn(ctx context.Context, column domain.Column) (string, error) {
	if column.ID == "" {
		column.ID = uuid.NewString()
	}
	column.BoardID = c.opts.BoardID
	p := domain.ColumnCreated{WorkspaceID: c.opts.BoardID, Column: column}
	return column.ID, c.mutate(ctx, domain.KindColumnCreated, p)
}

func (c *Client) UpdateColumn(ctx context.Context, columnID string, patch domain.ColumnPatch) error {
	p := domain.ColumnUpdated{WorkspaceID: c.opts.BoardID, ColumnID: columnID, Updates: patch}
	return c.mutate(ctx, domain.KindColumnUpdated, p)
}

func (c *Client) DeleteColumn(ctx context.Context, columnID string) error {
	p := domain.ColumnDeleted{WorkspaceID: c.opts.BoardID, ColumnID: columnID}
	return c.mutate(ctx, domain.KindColumnDeleted, p)
}

func (c *Client) UpdateBoard(ctx context.Context, patch domain.BoardPatch) error {
	p := domain.BoardUpdated{WorkspaceID: c.opts.BoardID, Updates: patch}
	return c.mutate(ctx, domain.KindBoardUpdated, p)
}

func (c *Client) MoveCursor(ctx context.Context, cursor domain.Cursor) error {
	return c.send(ctx, domain.EventCursorMove, domain.CursorMove{WorkspaceID: c.opts.BoardID, Cursor: cursor})
}

func (c *Client) BeginEdit(ctx context.Context, key domain.EntityKey) error {
	return c.send(ctx, domain.EventEditingBegin, domain.EditingSignal{EntityType: key.Type, EntityID: key.ID})
}

func (c *Client) EndEdit(ctx context.Context, key domain.EntityKey) error {
	return c.send(ctx, domain.EventEditingEnd, domain.EditingSignal{EntityType: key.Type, EntityID: key.ID})
}

// Leave announces presence leave and leaves the room without closing the
// connection.
func (c *Client) Leave(ctx context.Context) error {
	if err := c.send(ctx, domain.EventPresenceLeave, domain.PresenceLeave{WorkspaceID: c.opts.BoardID, ParticipantID: c.opts.Participant.ID}); err != nil {
		return err
	}
	return c.send(ctx, domain.EventBoardLeave, domain.BoardJoin{WorkspaceID: c.opts.BoardID})
}
