package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeRepo struct {
	mu      sync.Mutex
	calls   int
	history map[string]*History
	err     error
	// gate, when set, blocks FetchHistory until closed. The fetch ignores ctx on purpose
	// so that tests can deliver a late response after Leave.
	gate chan struct{}
}

func (r *fakeRepo) FetchHistory(_ context.Context, roomID string) (*History, error) {
	r.mu.Lock()
	r.calls++
	gate := r.gate
	h := r.history[roomID]
	err := r.err
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if h == nil {
		return &History{Room: RoomInfo{ID: roomID}}, nil
	}
	return h, nil
}

func (r *fakeRepo) setGate(gate chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = gate
}

type fakeSub struct {
	room    string
	ch      chan Incoming
	once    sync.Once
	mu      sync.Mutex
	closed  int
	failErr error
}

func (s *fakeSub) Messages() <-chan Incoming { return s.ch }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSub) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fail ends the stream with err, as a broken connection would.
func (s *fakeSub) fail(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

type fakeLive struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

func (l *fakeLive) Subscribe(_ context.Context, roomID string) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	sub := &fakeSub{room: roomID, ch: make(chan Incoming, 16)}
	l.subs = append(l.subs, sub)
	return sub, nil
}

func (l *fakeLive) last(t *testing.T) *fakeSub {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.subs) == 0 {
		t.Fatalf("no subscription")
	}
	return l.subs[len(l.subs)-1]
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []Outgoing
	err  error
	// release, when set, blocks Send until closed.
	release chan struct{}
}

func (t *fakeTransport) Send(_ context.Context, msg Outgoing) error {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	release := t.release
	err := t.err
	t.mu.Unlock()

	if release != nil {
		<-release
	}
	return err
}

func (t *fakeTransport) outgoing() []Outgoing {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Outgoing, len(t.sent))
	copy(out, t.sent)
	return out
}

var errOffline = errors.New("offline")

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestSession(self string, repo *fakeRepo, live *fakeLive, tr *fakeTransport, sink Sink) *Session {
	n := 0
	var mu sync.Mutex
	return NewSession(SessionConfig{
		Self:       self,
		Repository: repo,
		Live:       live,
		Transport:  tr,
		Sink:       sink,
		NewClientID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return "cid-" + strconv.Itoa(n)
		},
	})
}

func senders(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Sender
	}
	return out
}
