package relay

import "github.com/vovakirdan/village-chat/internal/store"

// EventKind is a notification the hub emits to clients.
type EventKind int

const (
	// EventMessage carries a persisted chat message of a room.
	EventMessage EventKind = iota
	// EventJoined notifies room members about a user joining.
	EventJoined
	// EventLeft notifies room members about a user leaving.
	EventLeft
	// EventError reports a rejected command to the client that issued it.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in a room.
type Event struct {
	Kind    EventKind
	Room    int64
	User    string
	Message *store.Message
	Error   *Error
}

// Error is a rejected command. Code is one of the proto error codes.
type Error struct {
	Code    string
	Message string

	// ClientID identifies the rejected message for send commands.
	ClientID string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}
