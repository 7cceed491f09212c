package relay

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/village-chat/internal/service/rooms"
	"github.com/vovakirdan/village-chat/internal/store"
	"github.com/vovakirdan/village-chat/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events closed while waiting for %v", kind)
			}
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// startHub runs a hub over an in-memory store seeded with one room between alice and bob.
func startHub(t *testing.T) (*Hub, store.Store, *store.Room) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	room, err := st.CreateRoom(context.Background(), &store.Room{PostID: 1, Writer: "alice", User: "bob"})
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}

	hub := NewHub(rooms.New(st), nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	t.Cleanup(func() {
		cancel()
		<-stopped
		_ = st.Close()
	})
	return hub, st, room
}
