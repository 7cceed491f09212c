package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/proto"
	"github.com/vovakirdan/village-chat/internal/service/rooms"
	"github.com/vovakirdan/village-chat/internal/store"
)

const defaultPersistTimeout = 5 * time.Second

// RoomService is the subset of the room service the hub needs.
type RoomService interface {
	Authorize(ctx context.Context, userID string, roomID int64) (*store.Room, error)
	Post(ctx context.Context, userID string, roomID int64, body, clientID string) (*store.Message, error)
}

type envelope struct {
	client *Client
	cmd    *Command
}

// Hub owns all joined rooms. Every membership change and fan-out happens on the
// goroutine running Run; clients talk to it through their Commands channel.
type Hub struct {
	rooms RoomService
	log   *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbox      chan envelope
	done       chan struct{}

	clients  map[*Client]struct{}
	channels map[int64]*Room
}

// NewHub creates a hub backed by the given room service.
func NewHub(rs RoomService, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		rooms:      rs,
		log:        logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbox:      make(chan envelope, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		channels:   make(map[int64]*Room),
	}
}

// RegisterClient attaches a client. It returns false if the hub has stopped.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient removes a client from every room and closes its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run processes commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.detach(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.forward(ctx, c)
			h.log.Debug().Str("client_id", c.ID).Str("user", c.UserID).Msg("client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.detach(c)
				h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
			}
		case env := <-h.inbox:
			if _, ok := h.clients[env.client]; !ok {
				continue
			}
			h.handle(ctx, env.client, env.cmd)
		}
	}
}

func (h *Hub) forward(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.inbox <- envelope{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) detach(c *Client) {
	for roomID := range c.rooms {
		if room, ok := h.channels[roomID]; ok {
			room.RemoveClient(c)
			room.Broadcast(&Event{Kind: EventLeft, Room: roomID, User: c.UserID})
			if room.Empty() {
				delete(h.channels, roomID)
			}
		}
	}
	c.rooms = make(map[int64]struct{})
	delete(h.clients, c)
	close(c.done)
	close(c.Events)
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandJoinRoom:
		h.join(ctx, c, cmd.Room)
	case CommandLeaveRoom:
		h.leave(c, cmd.Room)
	case CommandSendMessage:
		h.send(ctx, c, cmd)
	default:
		c.deliver(errorEvent(cmd.Room, proto.ErrCodeInvalidMessage, "unknown command"))
	}
}

func (h *Hub) join(ctx context.Context, c *Client, roomID int64) {
	if _, ok := c.rooms[roomID]; ok {
		c.deliver(&Event{Kind: EventJoined, Room: roomID, User: c.UserID})
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultPersistTimeout)
	defer cancel()
	if _, err := h.rooms.Authorize(opCtx, c.UserID, roomID); err != nil {
		c.deliver(h.failure(roomID, c, "join", err))
		return
	}

	room, ok := h.channels[roomID]
	if !ok {
		room = NewRoom(roomID)
		h.channels[roomID] = room
	}
	room.AddClient(c)
	c.rooms[roomID] = struct{}{}

	room.Broadcast(&Event{Kind: EventJoined, Room: roomID, User: c.UserID})
	h.log.Info().Int64("room_id", roomID).Str("user", c.UserID).Int("members", room.Len()).Msg("joined room")
}

func (h *Hub) leave(c *Client, roomID int64) {
	room, ok := h.channels[roomID]
	if !ok || !room.Has(c) {
		c.deliver(errorEvent(roomID, proto.ErrCodeNotInRoom, "not in room"))
		return
	}

	room.Broadcast(&Event{Kind: EventLeft, Room: roomID, User: c.UserID})
	room.RemoveClient(c)
	delete(c.rooms, roomID)
	if room.Empty() {
		delete(h.channels, roomID)
	}
	h.log.Info().Int64("room_id", roomID).Str("user", c.UserID).Msg("left room")
}

func (h *Hub) send(ctx context.Context, c *Client, cmd *Command) {
	room, ok := h.channels[cmd.Room]
	if !ok || !room.Has(c) {
		c.deliver(rejectSend(cmd, errorEvent(cmd.Room, proto.ErrCodeNotInRoom, "join the room before sending")))
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultPersistTimeout)
	defer cancel()
	msg, err := h.rooms.Post(opCtx, c.UserID, cmd.Room, cmd.Text, cmd.ClientID)
	if err != nil {
		c.deliver(rejectSend(cmd, h.failure(cmd.Room, c, "send", err)))
		return
	}

	if dropped := room.Broadcast(&Event{Kind: EventMessage, Room: cmd.Room, User: c.UserID, Message: msg}); dropped > 0 {
		h.log.Warn().Int64("room_id", cmd.Room).Int("dropped", dropped).Msg("slow consumers dropped message")
	}
}

func (h *Hub) failure(roomID int64, c *Client, op string, err error) *Event {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		return errorEvent(roomID, proto.ErrCodeRoomNotFound, "room not found")
	case errors.Is(err, rooms.ErrNotParticipant):
		return errorEvent(roomID, proto.ErrCodeNotParticipant, "not a participant of this room")
	case errors.Is(err, rooms.ErrEmptyMessage), errors.Is(err, rooms.ErrMessageTooLong):
		return errorEvent(roomID, proto.ErrCodeBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Int64("room_id", roomID).Str("user", c.UserID).Str("op", op).Msg("room command failed")
		return errorEvent(roomID, proto.ErrCodeInternal, "internal error")
	}
}

func errorEvent(roomID int64, code, msg string) *Event {
	return &Event{Kind: EventError, Room: roomID, Error: &Error{Code: code, Message: msg}}
}

// rejectSend tags a send failure with the message's client id.
func rejectSend(cmd *Command, ev *Event) *Event {
	ev.Error.ClientID = cmd.ClientID
	return ev
}
