// Package natsbus carries live room messages over NATS core subjects, one subject per room.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/client/live"
	"github.com/vovakirdan/village-chat/internal/core"
	"github.com/vovakirdan/village-chat/internal/proto"
)

// ErrConnectionClosed ends subscriptions when the NATS connection is closed.
var ErrConnectionClosed = errors.New("nats connection closed")

const (
	feedBuffer   = 64
	flushTimeout = 5 * time.Second
)

// Subject returns the subject a room's messages are published on.
func Subject(prefix, roomID string) string {
	return prefix + ".room." + roomID
}

// Bus is a core.LiveSource and core.Transport backed by a NATS connection.
// NATS delivers a publisher's own messages back to it, which confirms local sends.
type Bus struct {
	nc     *nats.Conn
	prefix string
	log    *zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("village-chat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && logger != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return New(nc, prefix, logger), nil
}

// New wraps an existing connection. Subscriptions end with ErrConnectionClosed once
// nc is closed; a closed handler already set on nc keeps running.
func New(nc *nats.Conn, prefix string, logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &Bus{nc: nc, prefix: prefix, log: logger, closed: make(chan struct{})}

	prev := nc.ClosedHandler()
	nc.SetClosedHandler(func(conn *nats.Conn) {
		b.markClosed()
		if prev != nil {
			prev(conn)
		}
	})
	if nc.IsClosed() {
		b.markClosed()
	}
	return b
}

func (b *Bus) markClosed() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Subscribe implements core.LiveSource.
func (b *Bus) Subscribe(ctx context.Context, roomID string) (core.Subscription, error) {
	if _, err := proto.ParseRoomID(roomID); err != nil {
		return nil, err
	}
	subject := Subject(b.prefix, roomID)

	msgs := make(chan *nats.Msg, feedBuffer)
	sub, err := b.nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := b.flush(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	stopped := make(chan struct{})
	feed := live.NewFeed(feedBuffer, func() error {
		err := sub.Unsubscribe()
		<-stopped
		if err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			return fmt.Errorf("unsubscribe %s: %w", subject, err)
		}
		return nil
	})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-feed.Done():
				feed.End(nil)
				return
			case <-b.closed:
				feed.End(ErrConnectionClosed)
				return
			case m := <-msgs:
				in, err := live.Decode(m.Data)
				if err != nil {
					b.log.Warn().Err(err).Str("subject", m.Subject).Msg("dropping malformed message")
					continue
				}
				feed.Push(in)
			}
		}
	}()

	b.log.Debug().Str("subject", subject).Msg("subscribed")
	return feed, nil
}

// Send implements core.Transport.
func (b *Bus) Send(ctx context.Context, msg core.Outgoing) error {
	data, err := live.Encode(msg)
	if err != nil {
		return err
	}
	subject := Subject(b.prefix, msg.Room)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := b.flush(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close closes the NATS connection.
func (b *Bus) Close() error {
	b.nc.Close()
	return nil
}

// flush waits for the server to process everything published so far.
func (b *Bus) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return b.nc.FlushWithContext(ctx)
}

var (
	_ core.LiveSource = (*Bus)(nil)
	_ core.Transport  = (*Bus)(nil)
)
