package core

// State is the lifecycle state of a room session.
type State int

const (
	// StateIdle is the state before Enter and after Leave.
	StateIdle State = iota
	// StateLoading means history is being fetched.
	StateLoading
	// StateActive means history is merged and live messages flow.
	StateActive
	// StateFailed means the fetch or the subscription failed. Enter restarts the cycle.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Row is one rendered message.
type Row struct {
	Message Message
	Grouped bool
	Mine    bool
}

// ShowAvatar reports whether the row starts a new sender block.
func (r Row) ShowAvatar() bool {
	return !r.Grouped
}

// View is the ordered, grouped message sequence published after every state change.
type View struct {
	Room  string
	Info  RoomInfo
	State State
	Rows  []Row
	Err   error
}

// Messages returns the messages of the view in order.
func (v View) Messages() []Message {
	out := make([]Message, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Message
	}
	return out
}

// Sink receives published views. Publish must not block and must not call back into the session.
type Sink interface {
	Publish(View)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(View)

// Publish calls f.
func (f SinkFunc) Publish(v View) { f(v) }

// ChannelSink delivers views over a buffered channel. Every view is a full snapshot,
// so when the reader lags the oldest pending view is dropped in favor of the newest.
type ChannelSink struct {
	ch chan View
}

// NewChannelSink creates a sink buffering up to size views.
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{ch: make(chan View, size)}
}

// Views returns the channel the presentation layer reads from.
func (s *ChannelSink) Views() <-chan View {
	return s.ch
}

// Publish enqueues v without blocking.
func (s *ChannelSink) Publish(v View) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
