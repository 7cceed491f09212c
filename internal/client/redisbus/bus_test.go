package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vovakirdan/village-chat/internal/core"
)

type staticHistory core.History

func (h staticHistory) FetchHistory(context.Context, string) (*core.History, error) {
	history := core.History(h)
	return &history, nil
}

func receive(ctx context.Context, t *testing.T, sub core.Subscription) core.Incoming {
	t.Helper()
	select {
	case in, ok := <-sub.Messages():
		require.True(t, ok, "subscription ended: %v", sub.Err())
		return in
	case <-ctx.Done():
		t.Fatalf("no message received")
		return core.Incoming{}
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "village:room:42", Channel("village", "42"))
}

func TestConnectUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, "127.0.0.1:1", "village", nil)
	assert.Error(t, err)
}

func TestSubscribeRejectsBadRoom(t *testing.T) {
	b := New(nil, "village", nil)

	_, err := b.Subscribe(context.Background(), "lobby")
	assert.Error(t, err)
}

func TestSendReachesSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := Connect(ctx, srv.Addr(), "village", nil)
	require.NoError(t, err)
	defer b.Close()

	sub, err := b.Subscribe(ctx, "7")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "8")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, b.Send(ctx, core.Outgoing{Room: "7", Sender: "bob", Text: "hi", ClientID: "c-1"}))
	assert.Equal(t, core.Incoming{Room: "7", Sender: "bob", Text: "hi", ClientID: "c-1"}, receive(ctx, t, sub))

	require.NoError(t, sub.Close())
	_, open := <-sub.Messages()
	assert.False(t, open)
	assert.NoError(t, sub.Err())

	select {
	case in := <-other.Messages():
		t.Fatalf("room 8 received a room 7 message: %+v", in)
	default:
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := Connect(ctx, srv.Addr(), "village", nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, "7")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, open := <-sub.Messages()
	assert.False(t, open)
	assert.ErrorIs(t, sub.Err(), ErrClosed)
	_ = sub.Close()
}

func TestSubscriptionSurvivesServerRestart(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b, err := Connect(ctx, srv.Addr(), "village", nil)
	require.NoError(t, err)
	defer b.Close()

	sub, err := b.Subscribe(ctx, "7")
	require.NoError(t, err)
	defer sub.Close()

	srv.Close()
	require.NoError(t, srv.Restart())

	// The client resubscribes in the background; publish until it is back.
	for {
		_ = b.Send(ctx, core.Outgoing{Room: "7", Sender: "bob", Text: "back?"})
		select {
		case in, ok := <-sub.Messages():
			require.True(t, ok, "subscription ended: %v", sub.Err())
			assert.Equal(t, "back?", in.Text)
			return
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			t.Fatalf("no message after restart")
		}
	}
}

func TestSessionConfirmsOwnMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := Connect(ctx, srv.Addr(), "village", nil)
	require.NoError(t, err)
	defer b.Close()

	s := core.NewSession(core.SessionConfig{
		Self:       "bob",
		Repository: staticHistory{Messages: []core.Draft{{Sender: "alice", Text: "still available"}}},
		Live:       b,
		Transport:  b,
	})
	require.NoError(t, s.Enter(ctx, "7"))

	_, err = s.Send(ctx, "great, I'll take it")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.View().Messages()[1].Delivery == core.DeliveryDelivered
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, s.Count(), "own echo must not append")

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return s.State() == core.StateFailed }, 3*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, s.Err(), core.ErrSubscriptionClosed)
	assert.ErrorIs(t, s.Err(), ErrClosed)
	require.NoError(t, s.Leave())
}
