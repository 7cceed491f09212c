package relay

// Client is a connected participant as seen by the hub.
type Client struct {
	ID       string
	UserID   string
	Commands chan *Command
	Events   chan *Event

	rooms map[int64]struct{}
	done  chan struct{}
}

// NewClient constructs a client with initialized channels.
// buffer sizes the event queue; events beyond it are dropped.
func NewClient(id, userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
		rooms:    make(map[int64]struct{}),
		done:     make(chan struct{}),
	}
}

// deliver queues an event without blocking the hub.
func (c *Client) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}
