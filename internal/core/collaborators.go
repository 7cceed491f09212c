package core

import "context"

// RoomRepository fetches persisted room state.
type RoomRepository interface {
	// FetchHistory returns room info and the message backlog in server order.
	FetchHistory(ctx context.Context, roomID string) (*History, error)
}

// Incoming is one message delivered by a live source.
type Incoming struct {
	Room     string
	Sender   string
	Text     string
	ClientID string
}

// Subscription is an active live stream for one room.
type Subscription interface {
	// Messages is closed when the subscription ends.
	Messages() <-chan Incoming
	// Err reports why Messages was closed. It is nil after Close.
	Err() error
	// Close unsubscribes. It is safe to call more than once.
	Close() error
}

// LiveSource produces live messages for a room until unsubscribed.
// ctx bounds the Subscribe call itself; the subscription lives until Close.
type LiveSource interface {
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

// Outgoing is a message handed to a Transport.
type Outgoing struct {
	Room     string
	Sender   string
	Text     string
	ClientID string
}

// Transport dispatches outgoing messages.
type Transport interface {
	Send(ctx context.Context, msg Outgoing) error
}
