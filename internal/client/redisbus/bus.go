// Package redisbus carries live room messages over Redis pub/sub, one channel per room.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/client/live"
	"github.com/vovakirdan/village-chat/internal/core"
	"github.com/vovakirdan/village-chat/internal/proto"
)

// ErrClosed ends subscriptions when the bus is closed.
var ErrClosed = errors.New("redis bus closed")

const feedBuffer = 64

// Channel returns the pub/sub channel for a room.
func Channel(prefix, roomID string) string {
	return prefix + ":room:" + roomID
}

// Bus is a core.LiveSource and core.Transport backed by Redis pub/sub.
// Subscribers on the publishing connection receive their own messages, which
// confirms local sends.
type Bus struct {
	rdb    *redis.Client
	prefix string
	log    *zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect creates a client for addr and checks it with PING.
func Connect(ctx context.Context, addr, prefix string, logger *zerolog.Logger) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(rdb, prefix, logger), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, prefix string, logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{rdb: rdb, prefix: prefix, log: logger, closed: make(chan struct{})}
}

// Subscribe implements core.LiveSource.
func (b *Bus) Subscribe(ctx context.Context, roomID string) (core.Subscription, error) {
	if _, err := proto.ParseRoomID(roomID); err != nil {
		return nil, err
	}
	channel := Channel(b.prefix, roomID)

	ps := b.rdb.Subscribe(ctx, channel)
	// Receive waits for the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	stopped := make(chan struct{})
	feed := live.NewFeed(feedBuffer, func() error {
		err := ps.Close()
		<-stopped
		if err != nil {
			return fmt.Errorf("unsubscribe %s: %w", channel, err)
		}
		return nil
	})

	msgs := ps.Channel()
	go func() {
		defer close(stopped)
		for {
			select {
			case <-feed.Done():
				feed.End(nil)
				return
			case <-b.closed:
				feed.End(ErrClosed)
				return
			case m, ok := <-msgs:
				if !ok {
					feed.End(fmt.Errorf("redis channel %s closed", channel))
					return
				}
				in, err := live.Decode([]byte(m.Payload))
				if err != nil {
					b.log.Warn().Err(err).Str("channel", m.Channel).Msg("dropping malformed message")
					continue
				}
				feed.Push(in)
			}
		}
	}()

	b.log.Debug().Str("channel", channel).Msg("subscribed")
	return feed, nil
}

// Send implements core.Transport.
func (b *Bus) Send(ctx context.Context, msg core.Outgoing) error {
	data, err := live.Encode(msg)
	if err != nil {
		return err
	}
	channel := Channel(b.prefix, msg.Room)
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close ends every subscription with ErrClosed and closes the Redis client.
// The client reconnects on its own after network errors, so only Close ends feeds.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return b.rdb.Close()
}

var (
	_ core.LiveSource = (*Bus)(nil)
	_ core.Transport  = (*Bus)(nil)
)
