// Package rest implements the room repository over the relay's HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/core"
	"github.com/vovakirdan/village-chat/internal/proto"
)

// Sentinel errors for non-2xx responses; StatusError wraps them.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses to sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Client talks to the relay REST endpoints with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// New creates a client for the relay at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchHistory implements core.RoomRepository.
func (c *Client) FetchHistory(ctx context.Context, roomID string) (*core.History, error) {
	room, err := c.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	history := &core.History{
		Room: core.RoomInfo{
			ID:               proto.FormatRoomID(room.RoomID),
			PostID:           room.PostID,
			Writer:           room.Writer,
			User:             room.User,
			WriterProfileImg: room.WriterProfileImg,
			UserProfileImg:   room.UserProfileImg,
		},
		Messages: make([]core.Draft, 0, len(room.ChatLog)),
	}
	for _, entry := range room.ChatLog {
		history.Messages = append(history.Messages, core.Draft{Sender: entry.Sender, Text: entry.Message})
	}
	c.log.Debug().Str("room", roomID).Int("messages", len(history.Messages)).Msg("fetched history")
	return history, nil
}

// GetRoom returns room info with its chat log.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*proto.RoomResponse, error) {
	var room proto.RoomResponse
	if err := c.do(ctx, http.MethodGet, "/chat/room/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &room, nil
}

// ListRooms returns the caller's rooms, most recently active first.
func (c *Client) ListRooms(ctx context.Context) ([]proto.RoomSummary, error) {
	var rooms []proto.RoomSummary
	if err := c.do(ctx, http.MethodGet, "/chat/room", nil, &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// CreateRoom opens a room with a post's writer.
func (c *Client) CreateRoom(ctx context.Context, req proto.CreateRoomRequest) (*proto.RoomResponse, error) {
	var room proto.RoomResponse
	if err := c.do(ctx, http.MethodPost, "/chat/room", req, &room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return &room, nil
}

// DeleteRoom removes a room.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.do(ctx, http.MethodDelete, "/chat/room/"+url.PathEscape(roomID), nil, nil); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr proto.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return &StatusError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ core.RoomRepository = (*Client)(nil)
