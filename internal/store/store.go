package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Room is a two-party chat room tied to one listing.
type Room struct {
	ID               int64
	PostID           int64
	Writer           string
	User             string
	WriterProfileImg string
	UserProfileImg   string
	CreatedAt        time.Time
}

// HasParticipant reports whether userID is the writer or the user of the room.
func (r *Room) HasParticipant(userID string) bool {
	return userID != "" && (r.Writer == userID || r.User == userID)
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	RoomID    int64
	Sender    string
	Body      string
	ClientID  string
	CreatedAt time.Time
}

// RoomListing is a room together with its most recent message, if any.
type RoomListing struct {
	Room        *Room
	LastMessage *Message
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom inserts a room and returns it with ID and CreatedAt set.
	CreateRoom(ctx context.Context, room *Room) (*Room, error)

	// GetRoomByID retrieves a room by ID. Returns ErrNotFound if missing.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// ListRooms lists rooms where userID is the writer or the user, most recent activity first.
	ListRooms(ctx context.Context, userID string) ([]*RoomListing, error)

	// DeleteRoom removes a room and its messages.
	DeleteRoom(ctx context.Context, id int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message to storage and sets its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves messages from a room with pagination, in chronological order.
	// If beforeID is provided, returns messages older than that ID.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
