// Package live holds the pieces shared by the live message adapters.
package live

import (
	"sync"

	"github.com/vovakirdan/village-chat/internal/core"
)

// Feed implements core.Subscription on top of a producer goroutine.
// The producer calls Push for each message and End once it stops; the consumer calls Close.
type Feed struct {
	ch      chan core.Incoming
	done    chan struct{}
	onClose func() error

	// sendMu keeps End from closing ch under an in-flight Push.
	sendMu sync.Mutex

	mu       sync.Mutex
	err      error
	ended    bool
	closed   bool
	closeErr error
}

// NewFeed creates a feed. onClose runs once on the first Close and should stop the producer.
func NewFeed(buffer int, onClose func() error) *Feed {
	return &Feed{
		ch:      make(chan core.Incoming, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Messages implements core.Subscription.
func (f *Feed) Messages() <-chan core.Incoming {
	return f.ch
}

// Push hands a message to the consumer. It blocks until the message is queued or the
// feed is closed, and reports whether the message was queued.
func (f *Feed) Push(in core.Incoming) bool {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	ended := f.ended
	f.mu.Unlock()
	if ended {
		return false
	}

	select {
	case <-f.done:
		return false
	default:
	}
	select {
	case f.ch <- in:
		return true
	case <-f.done:
		return false
	}
}

// Done is closed when the consumer calls Close.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// End closes Messages. err is reported by Err unless the consumer closed the feed first.
// Later calls are no-ops. End waits for a blocked Push to finish.
func (f *Feed) End(err error) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ended {
		return
	}
	f.ended = true
	if !f.closed {
		f.err = err
	}
	close(f.ch)
}

// Err implements core.Subscription.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close implements core.Subscription.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		err := f.closeErr
		f.mu.Unlock()
		return err
	}
	f.closed = true
	f.err = nil
	close(f.done)
	f.mu.Unlock()

	var err error
	if f.onClose != nil {
		err = f.onClose()
	}

	f.mu.Lock()
	f.closeErr = err
	f.mu.Unlock()
	return err
}

var _ core.Subscription = (*Feed)(nil)
