package proto

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	// ProtocolVersion is sent by clients as the "protocol" query parameter of /chats.
	ProtocolVersion = 1

	InboundTypeJoin  = "join-room"
	InboundTypeLeave = "leave-room"
	InboundTypeSend  = "send-message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventMessage = "message"
	EventJoined  = "joined"
	EventLeft    = "left"
)

// RoomData names the room a join or leave applies to.
type RoomData struct {
	RoomID int64 `json:"room_id"`
}

// SendData is a chat message from the client. The relay takes the sender from the
// authenticated connection; Sender is only used by broker transports.
type SendData struct {
	RoomID   int64  `json:"room_id"`
	Sender   string `json:"sender,omitempty"`
	Message  string `json:"message"`
	ClientID string `json:"client_id,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// RawOutbound is Outbound as seen by a client before the payload is decoded.
type RawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// ChatMessage is a message fanned out to room members. It is also the payload
// published on broker subjects.
type ChatMessage struct {
	ID       int64  `json:"id,omitempty"`
	RoomID   int64  `json:"room_id"`
	Sender   string `json:"sender"`
	Message  string `json:"message"`
	ClientID string `json:"client_id,omitempty"`
	TS       int64  `json:"ts"`
}

// MemberEvent reports a user joining or leaving a room.
type MemberEvent struct {
	RoomID int64  `json:"room_id"`
	User   string `json:"user"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code   string `json:"code"`
	Msg    string `json:"msg"`
	RoomID int64  `json:"room_id,omitempty"`

	// ClientID echoes the client id of a rejected send-message.
	ClientID string `json:"client_id,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// Error codes shared by the relay and its clients.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeRoomNotFound   = "room_not_found"
	ErrCodeNotParticipant = "not_participant"
	ErrCodeNotInRoom      = "not_in_room"
	ErrCodeInternal       = "internal_error"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnsupported    = "unsupported_version"
)

// ParseRoomID converts the string room id used by the session core into the wire form.
func ParseRoomID(roomID string) (int64, error) {
	id, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id %q", roomID)
	}
	return id, nil
}

// FormatRoomID is the inverse of ParseRoomID.
func FormatRoomID(id int64) string {
	return strconv.FormatInt(id, 10)
}
