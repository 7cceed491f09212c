// Package ws implements the live message source and transport over the relay's
// /chats WebSocket. One connection serves every subscribed room.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/auth"
	"github.com/vovakirdan/village-chat/internal/client/live"
	"github.com/vovakirdan/village-chat/internal/core"
	"github.com/vovakirdan/village-chat/internal/proto"
)

// ErrClosed is returned after the connection has gone away.
var ErrClosed = errors.New("websocket connection closed")

const (
	feedBuffer   = 64
	leaveTimeout = 2 * time.Second
)

// Client is a relay connection.
type Client struct {
	conn *websocket.Conn
	self string
	log  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	feeds   map[int64]*live.Feed
	pending map[int64]chan error
	sends   map[string]chan error
	err     error
}

// Option configures Dial.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// Dial connects to wsURL with a bearer token. The token's subject identifies the
// user so that join acknowledgements can be matched.
func Dial(ctx context.Context, wsURL, token string, opts ...Option) (*Client, error) {
	self, err := auth.SubjectFromToken(token)
	if err != nil {
		return nil, fmt.Errorf("read token subject: %w", err)
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("protocol", strconv.Itoa(proto.ProtocolVersion))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	nop := zerolog.Nop()
	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		self:    self,
		log:     &nop,
		ctx:     readCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		feeds:   make(map[int64]*live.Feed),
		pending: make(map[int64]chan error),
		sends:   make(map[string]chan error),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c, nil
}

// Self returns the user id the connection is authenticated as.
func (c *Client) Self() string {
	return c.self
}

// Subscribe implements core.LiveSource. It joins the room and waits for the relay
// to acknowledge or reject the join.
func (c *Client) Subscribe(ctx context.Context, roomID string) (core.Subscription, error) {
	id, err := proto.ParseRoomID(roomID)
	if err != nil {
		return nil, err
	}

	ack := make(chan error, 1)
	var feed *live.Feed
	feed = live.NewFeed(feedBuffer, func() error { return c.leave(id, feed) })

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	if _, dup := c.feeds[id]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("room %s already subscribed", roomID)
	}
	c.feeds[id] = feed
	c.pending[id] = ack
	c.mu.Unlock()

	abandon := func(cause error, joinSent bool) (core.Subscription, error) {
		c.mu.Lock()
		if c.feeds[id] == feed {
			delete(c.feeds, id)
		}
		delete(c.pending, id)
		closed := c.err != nil
		c.mu.Unlock()
		feed.End(cause)

		// The relay may still accept the join.
		if joinSent && !closed {
			if err := c.writeLeave(id); err != nil {
				c.log.Debug().Err(err).Str("room", roomID).Msg("leave after abandoned join failed")
			}
		}
		return nil, cause
	}

	if err := c.write(ctx, proto.InboundTypeJoin, proto.RoomData{RoomID: id}); err != nil {
		return abandon(fmt.Errorf("join room %s: %w", roomID, err), false)
	}

	select {
	case err := <-ack:
		if err != nil {
			return abandon(fmt.Errorf("join room %s: %w", roomID, err), false)
		}
		c.log.Debug().Str("room", roomID).Msg("joined room")
		return feed, nil
	case <-ctx.Done():
		return abandon(fmt.Errorf("join room %s: %w", roomID, ctx.Err()), true)
	case <-c.done:
		return abandon(fmt.Errorf("join room %s: %w", roomID, c.Err()), false)
	}
}

// Send implements core.Transport. The relay answers a send either with the message
// echoed to every member, the author included, or with an error envelope carrying the
// client id. Send waits for that answer; a rejection is returned as a *proto.Error.
// Messages without a client id cannot be matched and return once written.
func (c *Client) Send(ctx context.Context, msg core.Outgoing) error {
	id, err := proto.ParseRoomID(msg.Room)
	if err != nil {
		return err
	}
	data := proto.SendData{RoomID: id, Message: msg.Text, ClientID: msg.ClientID}
	if msg.ClientID == "" {
		if err := c.Err(); err != nil {
			return err
		}
		return c.write(ctx, proto.InboundTypeSend, data)
	}

	ack := make(chan error, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	if _, dup := c.sends[msg.ClientID]; dup {
		c.mu.Unlock()
		return fmt.Errorf("message %s already in flight", msg.ClientID)
	}
	c.sends[msg.ClientID] = ack
	c.mu.Unlock()

	if err := c.write(ctx, proto.InboundTypeSend, data); err != nil {
		c.forgetSend(msg.ClientID)
		return err
	}

	select {
	case err := <-ack:
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.forgetSend(msg.ClientID)
		return fmt.Errorf("await relay answer: %w", ctx.Err())
	case <-c.done:
		c.forgetSend(msg.ClientID)
		return c.Err()
	}
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection and ends every subscription.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.cancel()
	<-c.done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}

func (c *Client) leave(id int64, feed *live.Feed) error {
	c.mu.Lock()
	if c.feeds[id] != feed {
		c.mu.Unlock()
		return nil
	}
	delete(c.feeds, id)
	closed := c.err != nil
	c.mu.Unlock()

	feed.End(nil)
	if closed {
		return nil
	}
	return c.writeLeave(id)
}

func (c *Client) writeLeave(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := c.write(ctx, proto.InboundTypeLeave, proto.RoomData{RoomID: id}); err != nil {
		return fmt.Errorf("leave room %d: %w", id, err)
	}
	return nil
}

func (c *Client) forgetSend(clientID string) {
	c.mu.Lock()
	delete(c.sends, clientID)
	c.mu.Unlock()
}

// answerSend resolves an in-flight send and reports whether one was waiting.
func (c *Client) answerSend(clientID string, err error) bool {
	c.mu.Lock()
	ack, ok := c.sends[clientID]
	delete(c.sends, clientID)
	c.mu.Unlock()

	if ok {
		ack <- err
	}
	return ok
}

func (c *Client) write(ctx context.Context, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var out proto.RawOutbound
		if err := wsjson.Read(c.ctx, c.conn, &out); err != nil {
			c.fail(err)
			return
		}

		switch out.Type {
		case proto.OutboundTypeEvent:
			c.handleEvent(out)
		case proto.OutboundTypeError:
			c.handleError(out.Error)
		default:
			c.log.Debug().Str("type", out.Type).Msg("ignoring unknown frame")
		}
	}
}

func (c *Client) handleEvent(out proto.RawOutbound) {
	switch out.Event {
	case proto.EventMessage:
		var msg proto.ChatMessage
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed message event")
			return
		}
		c.mu.Lock()
		feed := c.feeds[msg.RoomID]
		c.mu.Unlock()
		if feed != nil {
			feed.Push(live.FromChatMessage(msg))
		}
		if msg.Sender == c.self && msg.ClientID != "" {
			c.answerSend(msg.ClientID, nil)
		}
	case proto.EventJoined:
		var ev proto.MemberEvent
		if err := json.Unmarshal(out.Data, &ev); err != nil {
			c.log.Warn().Err(err).Msg("malformed joined event")
			return
		}
		if ev.User == c.self {
			c.resolve(ev.RoomID, nil)
		}
	case proto.EventLeft:
	default:
		c.log.Debug().Str("event", out.Event).Msg("ignoring unknown event")
	}
}

func (c *Client) handleError(perr *proto.Error) {
	if perr == nil {
		return
	}
	if perr.ClientID != "" {
		if !c.answerSend(perr.ClientID, perr) {
			c.log.Warn().Str("code", perr.Code).Str("client_id", perr.ClientID).Msg(perr.Msg)
		}
		return
	}
	if perr.RoomID != 0 && c.resolve(perr.RoomID, perr) {
		return
	}
	c.log.Warn().Str("code", perr.Code).Int64("room_id", perr.RoomID).Msg(perr.Msg)
}

// resolve answers a pending join and reports whether one was waiting.
func (c *Client) resolve(roomID int64, err error) bool {
	c.mu.Lock()
	ack, ok := c.pending[roomID]
	delete(c.pending, roomID)
	c.mu.Unlock()

	if ok {
		ack <- err
	}
	return ok
}

func (c *Client) fail(err error) {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
		err = ErrClosed
	} else {
		err = fmt.Errorf("%w: %w", ErrClosed, err)
	}

	c.mu.Lock()
	c.err = err
	feeds := c.feeds
	c.feeds = make(map[int64]*live.Feed)
	pending := c.pending
	c.pending = make(map[int64]chan error)
	sends := c.sends
	c.sends = make(map[string]chan error)
	c.mu.Unlock()

	for _, ack := range pending {
		ack <- err
	}
	for _, ack := range sends {
		ack <- err
	}
	for _, feed := range feeds {
		feed.End(err)
	}
	close(c.done)
}

var (
	_ core.LiveSource = (*Client)(nil)
	_ core.Transport  = (*Client)(nil)
)
