package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/village-chat/internal/proto"
	"github.com/vovakirdan/village-chat/internal/store"
)

func doJSON(t *testing.T, env *testEnv, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, env.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp := doJSON(t, env, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoomEndpointsRequireToken(t *testing.T) {
	env := startTestServer(t)

	resp := doJSON(t, env, http.MethodGet, "/chat/room", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, env, http.MethodGet, "/chat/room", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoomLifecycle(t *testing.T) {
	env := startTestServer(t)
	bob := env.token(t, "bob")
	alice := env.token(t, "alice")

	// Bob asks about Alice's post.
	resp := doJSON(t, env, http.MethodPost, "/chat/room", bob, proto.CreateRoomRequest{PostID: 9, Writer: "alice", WriterProfileImg: "alice.png"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created proto.RoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "bob", created.User)
	assert.Equal(t, "alice", created.Writer)
	assert.Empty(t, created.ChatLog)

	for _, m := range []struct{ from, text string }{{"bob", "hi"}, {"bob", "still available?"}, {"alice", "yes"}} {
		require.NoError(t, env.store.SaveMessage(t.Context(), &store.Message{RoomID: created.RoomID, Sender: m.from, Body: m.text}))
	}

	path := "/chat/room/" + proto.FormatRoomID(created.RoomID)
	resp = doJSON(t, env, http.MethodGet, path, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var room proto.RoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	assert.Equal(t, "alice.png", room.WriterProfileImg)
	assert.Equal(t, []proto.ChatLogEntry{
		{Sender: "bob", Message: "hi", Count: 0},
		{Sender: "bob", Message: "still available?", Count: 1},
		{Sender: "alice", Message: "yes", Count: 2},
	}, room.ChatLog)

	resp = doJSON(t, env, http.MethodGet, "/chat/room", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []proto.RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].Counterpart)
	assert.Equal(t, "yes", list[0].LastChat)

	outsider := env.token(t, "carol")
	resp = doJSON(t, env, http.MethodGet, path, outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, env, http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, env, http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRoomValidation(t *testing.T) {
	env := startTestServer(t)
	bob := env.token(t, "bob")

	resp := doJSON(t, env, http.MethodPost, "/chat/room", bob, map[string]any{"writer": "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "post_id is required")

	resp = doJSON(t, env, http.MethodPost, "/chat/room", bob, proto.CreateRoomRequest{PostID: 1, Writer: "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "self chat")

	resp = doJSON(t, env, http.MethodGet, "/chat/room/abc", bob, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
