// Package client talks to a parley server over its websocket endpoint. A
// Client is a play.Driver, so the playtest frontends can run against a live
// server the same way they run against a local engine.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/types"
)

const (
	writeWait      = 10 * time.Second
	frameQueueSize = 64

	// DefaultSettle is how long a call keeps listening after a
	// conversation ends, in case the server has more to say.
	DefaultSettle = 100 * time.Millisecond
	// DefaultTimeout bounds one call.
	DefaultTimeout = 5 * time.Second
)

var (
	ErrTimeout = errors.New("timed out waiting for the server")
	ErrClosed  = errors.New("connection closed")
)

// ServerError is a request the server refused.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server: " + e.Message }

// Options configures a Client.
type Options struct {
	Player types.EntityRef
	// Catalog, when set, makes the server leave text out of pages. The
	// client fills it in from here.
	Catalog *catalog.Catalog
	Settle  time.Duration
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client is one player's connection.
type Client struct {
	conn    *websocket.Conn
	player  types.EntityRef
	cat     *catalog.Catalog
	settle  time.Duration
	timeout time.Duration
	log     *zap.Logger

	frames  chan codec.Frame
	done    chan struct{}
	readErr error
	closing chan struct{}
	once    sync.Once

	npcs    map[string]types.EntityRef
	pending types.EntityRef
}

// Dial connects to the server at base, an http(s) or ws(s) URL of the
// server root.
func Dial(ctx context.Context, base string, opts Options) (*Client, error) {
	if opts.Player == "" {
		return nil, errors.New("player is required")
	}
	u, err := endpoint(base, "ws", "/ws")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("id", string(opts.Player))
	if opts.Catalog != nil {
		q.Set("asset", "1")
	}
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Client{
		conn:    conn,
		player:  opts.Player,
		cat:     opts.Catalog,
		settle:  opts.Settle,
		timeout: opts.Timeout,
		log:     opts.Logger,
		frames:  make(chan codec.Frame, frameQueueSize),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		npcs:    make(map[string]types.EntityRef),
	}
	if c.settle <= 0 {
		c.settle = DefaultSettle
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	go c.readLoop()
	return c, nil
}

// FetchCatalog downloads the server's dialogue asset for client-side text.
func FetchCatalog(ctx context.Context, base string) (*catalog.Catalog, error) {
	u, err := endpoint(base, "http", "/asset")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset: %s", resp.Status)
	}
	return catalog.LoadClient(resp.Body)
}

// endpoint rewrites base to the given scheme family and path.
func endpoint(base, family, path string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	secure := u.Scheme == "https" || u.Scheme == "wss"
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Scheme = family
	if secure {
		u.Scheme += "s"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u, nil
}

// Close says goodbye and drops the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closing)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		f, err := codec.DecodeFrame(data)
		if err != nil {
			c.log.Debug("discarding malformed frame", zap.Error(err))
			continue
		}
		select {
		case c.frames <- f:
		case <-c.closing:
			return
		}
	}
}

func (c *Client) Start(npc types.EntityRef) ([]types.Event, error) {
	c.pending = npc
	return c.exchange(codec.Start{NPC: npc})
}

func (c *Client) Select(sessionID string, index int) ([]types.Event, error) {
	if index < 0 || index > 0xFF {
		return nil, fmt.Errorf("response index %d out of range", index)
	}
	return c.exchange(codec.Select{Session: sessionID, Index: uint8(index)})
}

func (c *Client) End(sessionID string) ([]types.Event, error) {
	return c.exchange(codec.End{Session: sessionID})
}

// exchange sends f and collects the frames it causes. A page or an error
// answers the request. After a conversation ends the call waits for the
// settle period in case an error follows.
func (c *Client) exchange(f codec.Frame) ([]types.Event, error) {
	data, err := codec.EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return nil, fmt.Errorf("send %s: %w", f.Op(), err)
	}

	timeout := time.NewTimer(c.timeout)
	defer timeout.Stop()
	var settle <-chan time.Time
	var evs []types.Event
	for {
		select {
		case f := <-c.frames:
			switch f := f.(type) {
			case codec.PageEntered:
				return append(evs, c.pageEvent(f)), nil
			case codec.ConversationEnded:
				evs = append(evs, c.endEvent(f))
				settle = time.After(c.settle)
			case codec.Error:
				return evs, &ServerError{Message: f.Message}
			default:
				c.log.Debug("ignoring frame", zap.String("op", f.Op().String()))
			}
		case <-settle:
			return evs, nil
		case <-c.done:
			return evs, fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		case <-timeout.C:
			return evs, ErrTimeout
		}
	}
}

func (c *Client) npcFor(session string) types.EntityRef {
	if npc, ok := c.npcs[session]; ok {
		return npc
	}
	return c.pending
}

func (c *Client) pageEvent(f codec.PageEntered) types.Event {
	npc := c.npcFor(f.Session)
	c.npcs[f.Session] = npc
	ev := types.Event{
		Kind:       types.EventPageEntered,
		SessionID:  f.Session,
		Initiator:  c.player,
		NPC:        npc,
		DialogueID: f.Dialogue,
		PageID:     f.Page,
		Text:       f.Text,
		Responses:  f.Responses,
	}
	if !f.HasText {
		c.fillText(&ev)
	}
	return ev
}

func (c *Client) endEvent(f codec.ConversationEnded) types.Event {
	npc := c.npcFor(f.Session)
	delete(c.npcs, f.Session)
	return types.Event{
		Kind:      types.EventConversationEnded,
		SessionID: f.Session,
		Initiator: c.player,
		NPC:       npc,
		Reason:    f.Reason,
	}
}

// fillText copies page and response text from the local catalog.
func (c *Client) fillText(ev *types.Event) {
	if c.cat == nil {
		return
	}
	d, ok := c.cat.Get(ev.DialogueID)
	if !ok {
		c.log.Warn("page from unknown dialogue", zap.Uint16("dialogue", ev.DialogueID))
		return
	}
	page := dialogue.Page(d, ev.PageID)
	if page == nil {
		c.log.Warn("unknown page", zap.Uint16("dialogue", ev.DialogueID), zap.Uint16("page", ev.PageID))
		return
	}
	ev.Text = page.Text
	for i, r := range ev.Responses {
		if int(r.Index) < len(page.Responses) {
			ev.Responses[i].Text = page.Responses[r.Index].Text
		}
	}
}
