package core

import "time"

// DeliveryState tracks what happened to a locally authored message.
type DeliveryState int

const (
	// DeliveryNone marks messages that came from history or the live stream.
	DeliveryNone DeliveryState = iota
	// DeliveryPending is set on optimistic append, before the transport answers.
	DeliveryPending
	// DeliverySent means the transport accepted the message.
	DeliverySent
	// DeliveryDelivered means the message came back through the live stream.
	DeliveryDelivered
	// DeliveryFailed means the transport rejected the message. It stays in the log.
	DeliveryFailed
)

func (d DeliveryState) String() string {
	switch d {
	case DeliveryNone:
		return "none"
	case DeliveryPending:
		return "pending"
	case DeliverySent:
		return "sent"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Draft is a message before the store numbers it.
type Draft struct {
	Sender string
	Text   string
}

// Message is the domain model for a chat message inside one room's log.
// Seq is assigned by the store, never by the network.
type Message struct {
	Seq         int
	Sender      string
	Text        string
	ClientID    string
	Local       bool
	Delivery    DeliveryState
	DeliveryErr string
	CreatedAt   time.Time
}

// Failed reports whether the transport rejected this message.
func (m Message) Failed() bool {
	return m.Delivery == DeliveryFailed
}

// RoomInfo describes the two participants of a room and the listing it belongs to.
type RoomInfo struct {
	ID               string
	PostID           int64
	Writer           string
	User             string
	WriterProfileImg string
	UserProfileImg   string
}

// Counterpart returns the other participant as seen by self.
func (r RoomInfo) Counterpart(self string) string {
	if self == r.Writer {
		return r.User
	}
	return r.Writer
}

// ProfileImages returns (mine, theirs) profile image URLs as seen by self.
func (r RoomInfo) ProfileImages(self string) (string, string) {
	if self == r.Writer {
		return r.WriterProfileImg, r.UserProfileImg
	}
	return r.UserProfileImg, r.WriterProfileImg
}

// History is what a room repository returns on room entry.
type History struct {
	Room     RoomInfo
	Messages []Draft
}
