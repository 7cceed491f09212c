package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEnterMergesHistoryThenAppendsLive(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &fakeRepo{history: map[string]*History{
		"5": {Room: RoomInfo{ID: "5", PostID: 42, Writer: "A", User: "B"}, Messages: []Draft{{Sender: "A", Text: "x"}}},
	}}
	live := &fakeLive{}
	s := newTestSession("B", repo, live, &fakeTransport{}, nil)

	require.NoError(t, s.Enter(context.Background(), "5"))
	require.Equal(t, StateActive, s.State())
	assert.Equal(t, "A", s.Info().Counterpart("B"))
	assert.Equal(t, int64(42), s.Info().PostID)

	live.last(t).ch <- Incoming{Room: "5", Sender: "B", Text: "y"}
	waitFor(t, "live append", func() bool { return s.Count() == 2 })

	view := s.View()
	got := view.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, Message{Seq: 0, Sender: "A", Text: "x"}, stripTime(got[0]))
	assert.Equal(t, Message{Seq: 1, Sender: "B", Text: "y"}, stripTime(got[1]))
	assert.False(t, view.Rows[0].Grouped)
	assert.False(t, view.Rows[1].Grouped)
	assert.False(t, view.Rows[0].Mine)
	assert.True(t, view.Rows[1].Mine)

	require.NoError(t, s.Leave())
}

func TestHistoryGroupingFlags(t *testing.T) {
	repo := &fakeRepo{history: map[string]*History{
		"1": {Messages: []Draft{{Sender: "A", Text: "hi"}, {Sender: "A", Text: "yo"}, {Sender: "B", Text: "hey"}}},
	}}
	s := newTestSession("A", repo, &fakeLive{}, &fakeTransport{}, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))
	defer s.Leave()

	view := s.View()
	flags := make([]bool, len(view.Rows))
	for i, r := range view.Rows {
		flags[i] = r.Grouped
	}
	assert.Equal(t, []bool{false, true, false}, flags)
	assert.True(t, view.Rows[0].ShowAvatar())
	assert.Equal(t, "1", s.Info().ID)
}

func TestEnterFetchFailureMovesToFailed(t *testing.T) {
	repo := &fakeRepo{err: errOffline}
	live := &fakeLive{}
	s := newTestSession("A", repo, live, &fakeTransport{}, nil)

	err := s.Enter(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, errOffline))
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, err, s.Err())
	assert.Empty(t, live.subs, "no subscription after failed fetch")

	_, err = s.Send(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrInvalidState))

	// Retry is caller-initiated.
	repo.err = nil
	require.NoError(t, s.Enter(context.Background(), "1"))
	assert.Equal(t, StateActive, s.State())
	assert.NoError(t, s.Err())
	require.NoError(t, s.Leave())
}

func TestEnterSubscribeFailure(t *testing.T) {
	s := newTestSession("A", &fakeRepo{}, &fakeLive{err: errOffline}, &fakeTransport{}, nil)

	err := s.Enter(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNetwork, CodeOf(err))
	assert.Equal(t, StateFailed, s.State())
}

func TestLeaveDuringFetchDiscardsLateHistory(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	repo := &fakeRepo{history: map[string]*History{
		"5": {Messages: []Draft{{Sender: "A", Text: "late"}}},
	}}
	repo.setGate(gate)
	live := &fakeLive{}
	s := newTestSession("B", repo, live, &fakeTransport{}, nil)

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Enter(context.Background(), "5") }()
	waitFor(t, "history request", func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.calls == 1
	})
	require.Equal(t, StateLoading, s.State())

	require.NoError(t, s.Leave())
	require.Equal(t, StateIdle, s.State())

	repo.mu.Lock()
	repo.history["5"] = nil
	repo.mu.Unlock()
	repo.setGate(nil)
	require.NoError(t, s.Enter(context.Background(), "5"))
	require.Equal(t, 0, s.Count())

	close(gate)
	err := <-firstErr
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, StateActive, s.State())
	assert.Len(t, live.subs, 1, "abandoned enter never subscribes")

	require.NoError(t, s.Leave())
}

func TestSendIsOptimistic(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{release: release, err: errOffline}
	s := newTestSession("A", &fakeRepo{}, &fakeLive{}, tr, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))
	defer s.Leave()

	type result struct {
		msg Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := s.Send(context.Background(), "hello")
		done <- result{m, err}
	}()

	waitFor(t, "optimistic append", func() bool { return s.Count() == 1 })
	pending := s.View().Rows[0].Message
	assert.Equal(t, DeliveryPending, pending.Delivery)
	assert.True(t, pending.Local)
	assert.Equal(t, "hello", pending.Text)

	close(release)
	res := <-done
	require.Error(t, res.err)
	assert.True(t, errors.Is(res.err, ErrDeliveryFailed))
	assert.True(t, errors.Is(res.err, errOffline))
	assert.True(t, res.msg.Failed())

	assert.Equal(t, 1, s.Count(), "failure report does not remove the message")
	row := s.View().Rows[0].Message
	assert.Equal(t, DeliveryFailed, row.Delivery)
	assert.Equal(t, "offline", row.DeliveryErr)

	out := tr.outgoing()
	require.Len(t, out, 1)
	assert.Equal(t, Outgoing{Room: "1", Sender: "A", Text: "hello", ClientID: "cid-1"}, out[0])
}

func TestEchoConfirmsLocalMessage(t *testing.T) {
	live := &fakeLive{}
	s := newTestSession("A", &fakeRepo{}, live, &fakeTransport{}, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))
	defer s.Leave()

	m, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, DeliverySent, m.Delivery)

	live.last(t).ch <- Incoming{Room: "1", Sender: "B", Text: "hi back"}
	live.last(t).ch <- Incoming{Room: "1", Sender: "A", Text: "hello", ClientID: m.ClientID}
	waitFor(t, "echo", func() bool {
		rows := s.View().Rows
		return len(rows) == 2 && rows[0].Message.Delivery == DeliveryDelivered
	})

	rows := s.View().Rows
	assert.Equal(t, []string{"A", "B"}, senders(s.View().Messages()))
	assert.Equal(t, 0, rows[0].Message.Seq, "local message keeps its position")
	assert.Equal(t, 2, s.Count())
}

func TestEchoWithoutClientIDMatchesText(t *testing.T) {
	live := &fakeLive{}
	s := newTestSession("A", &fakeRepo{}, live, &fakeTransport{}, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))
	defer s.Leave()

	_, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	live.last(t).ch <- Incoming{Sender: "A", Text: "hello"}
	live.last(t).ch <- Incoming{Sender: "A", Text: "typed on another device"}
	waitFor(t, "second device message", func() bool { return s.Count() == 2 })
	assert.Equal(t, DeliveryDelivered, s.View().Rows[0].Message.Delivery)
}

func TestLiveMessagesForOtherRoomsAreIgnored(t *testing.T) {
	live := &fakeLive{}
	s := newTestSession("A", &fakeRepo{}, live, &fakeTransport{}, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))
	defer s.Leave()

	live.last(t).ch <- Incoming{Room: "2", Sender: "B", Text: "wrong room"}
	live.last(t).ch <- Incoming{Room: "1", Sender: "B", Text: "right room"}
	waitFor(t, "right room message", func() bool { return s.Count() == 1 })
	assert.Equal(t, "right room", s.View().Rows[0].Message.Text)
}

func TestReenterTearsDownPreviousSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	live := &fakeLive{}
	s := newTestSession("A", &fakeRepo{}, live, &fakeTransport{}, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))
	first := live.last(t)

	require.NoError(t, s.Enter(context.Background(), "2"))
	second := live.last(t)
	require.NotSame(t, first, second)
	assert.Equal(t, 1, first.closeCount())
	assert.Equal(t, "2", s.Room())

	first.ch <- Incoming{Sender: "B", Text: "stale"}
	second.ch <- Incoming{Sender: "B", Text: "fresh"}
	waitFor(t, "fresh message", func() bool { return s.Count() == 1 })
	assert.Equal(t, "fresh", s.View().Rows[0].Message.Text)

	require.NoError(t, s.Leave())
	assert.Equal(t, 1, second.closeCount())
}

func TestSubscriptionErrorMovesToFailed(t *testing.T) {
	live := &fakeLive{}
	s := newTestSession("A", &fakeRepo{}, live, &fakeTransport{}, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))

	sub := live.last(t)
	sub.fail(errOffline)
	waitFor(t, "failed state", func() bool { return s.State() == StateFailed })

	err := s.Err()
	assert.True(t, errors.Is(err, ErrSubscriptionClosed))
	assert.True(t, errors.Is(err, errOffline))
	assert.Equal(t, 1, sub.closeCount())

	_, err = s.Send(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrInvalidState))

	require.NoError(t, s.Enter(context.Background(), "1"))
	assert.Equal(t, StateActive, s.State())
	require.NoError(t, s.Leave())
}

func TestLeaveStopsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	live := &fakeLive{}
	s := newTestSession("A", &fakeRepo{}, live, &fakeTransport{}, nil)
	require.NoError(t, s.Enter(context.Background(), "1"))
	sub := live.last(t)

	require.NoError(t, s.Leave())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, sub.closeCount())
	assert.Equal(t, "", s.Room())

	sub.ch <- Incoming{Sender: "B", Text: "after leave"}
	assert.Equal(t, 0, s.Count())
	assert.Empty(t, s.View().Rows)

	// Leave on an idle session is a no-op.
	require.NoError(t, s.Leave())
}

func TestSendValidation(t *testing.T) {
	s := newTestSession("A", &fakeRepo{}, &fakeLive{}, &fakeTransport{}, nil)

	_, err := s.Send(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrInvalidState))

	require.NoError(t, s.Enter(context.Background(), "1"))
	defer s.Leave()
	_, err = s.Send(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, 0, s.Count())

	assert.True(t, errors.Is(s.Enter(context.Background(), ""), ErrInvalidState))
}

func TestSinkReceivesOrderedViews(t *testing.T) {
	sink := NewChannelSink(64)
	live := &fakeLive{}
	repo := &fakeRepo{history: map[string]*History{"1": {Messages: []Draft{{Sender: "B", Text: "h"}}}}}
	s := newTestSession("A", repo, live, &fakeTransport{}, sink)

	require.NoError(t, s.Enter(context.Background(), "1"))
	_, err := s.Send(context.Background(), "mine")
	require.NoError(t, err)
	live.last(t).ch <- Incoming{Sender: "B", Text: "theirs"}
	waitFor(t, "live append", func() bool { return s.Count() == 3 })
	require.NoError(t, s.Leave())

	var states []State
	var last View
	for len(sink.Views()) > 0 {
		v := <-sink.Views()
		states = append(states, v.State)
		for i, r := range v.Rows {
			require.Equal(t, i, r.Message.Seq)
		}
		if len(v.Rows) > 0 {
			last = v
		}
	}
	assert.Equal(t, StateLoading, states[0])
	assert.Equal(t, StateIdle, states[len(states)-1])
	assert.Equal(t, []string{"B", "A", "B"}, senders(last.Messages()))
}

func TestChannelSinkKeepsNewest(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Publish(View{Room: "old"})
	sink.Publish(View{Room: "new"})

	v := <-sink.Views()
	assert.Equal(t, "new", v.Room)
}

// stripTime keeps the fields that identify a message in the log.
func stripTime(m Message) Message {
	return Message{Seq: m.Seq, Sender: m.Sender, Text: m.Text}
}
