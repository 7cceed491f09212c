package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/auth"
	"github.com/vovakirdan/village-chat/internal/config"
	"github.com/vovakirdan/village-chat/internal/relay"
	"github.com/vovakirdan/village-chat/internal/service/rooms"
	"github.com/vovakirdan/village-chat/internal/store"
	"github.com/vovakirdan/village-chat/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := e.auth.IssueToken(userID, "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// startTestServer runs the relay over an in-memory store.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	disabledLogger := zerolog.New(nil)
	roomService := rooms.New(st)
	hub := relay.NewHub(roomService, &disabledLogger)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cfg := config.Default()
	cfg.Addr = ":0"
	server := NewServer(hub, authService, roomService, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-stopped
		_ = st.Close()
	})

	return &testEnv{ts: ts, store: st, auth: authService}
}
