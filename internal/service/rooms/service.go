package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/village-chat/internal/store"
)

// Common errors for room operations.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotParticipant = errors.New("not a participant of this room")
	ErrSelfChat       = errors.New("cannot open a chat with yourself")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
)

// DefaultHistoryLimit bounds the chat log returned with a room.
const DefaultHistoryLimit = 500

// CreateParams describes a new room. The caller becomes the room's user.
type CreateParams struct {
	PostID           int64
	Writer           string
	WriterProfileImg string
	UserProfileImg   string
}

// Service provides chat room business logic.
type Service struct {
	store        store.Store
	historyLimit int
	maxRunes     int
}

// Option tweaks a Service.
type Option func(*Service)

// WithHistoryLimit sets how many messages Get returns.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithMaxMessageRunes limits the length of posted messages. Zero disables the check.
func WithMaxMessageRunes(n int) Option {
	return func(s *Service) { s.maxRunes = n }
}

// New creates a new room service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:        st,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a room between userID and the listing writer.
func (s *Service) Create(ctx context.Context, userID string, p CreateParams) (*store.Room, error) {
	writer := strings.TrimSpace(p.Writer)
	if writer == userID {
		return nil, ErrSelfChat
	}

	room, err := s.store.CreateRoom(ctx, &store.Room{
		PostID:           p.PostID,
		Writer:           writer,
		User:             userID,
		WriterProfileImg: p.WriterProfileImg,
		UserProfileImg:   p.UserProfileImg,
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// List returns the rooms userID participates in, most recently active first.
func (s *Service) List(ctx context.Context, userID string) ([]*store.RoomListing, error) {
	listings, err := s.store.ListRooms(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return listings, nil
}

// Authorize returns the room if userID participates in it.
func (s *Service) Authorize(ctx context.Context, userID string, roomID int64) (*store.Room, error) {
	room, err := s.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	if !room.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return room, nil
}

// Get returns the room and its chat log in chronological order.
func (s *Service) Get(ctx context.Context, userID string, roomID int64) (*store.Room, []*store.Message, error) {
	room, err := s.Authorize(ctx, userID, roomID)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.store.ListMessages(ctx, roomID, s.historyLimit, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	return room, messages, nil
}

// Post persists a message authored by userID.
func (s *Service) Post(ctx context.Context, userID string, roomID int64, body, clientID string) (*store.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}
	if s.maxRunes > 0 && utf8.RuneCountInString(body) > s.maxRunes {
		return nil, ErrMessageTooLong
	}
	if _, err := s.Authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		RoomID:   roomID,
		Sender:   userID,
		Body:     body,
		ClientID: clientID,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// Delete removes a room and its history. Only participants may delete.
func (s *Service) Delete(ctx context.Context, userID string, roomID int64) error {
	if _, err := s.Authorize(ctx, userID, roomID); err != nil {
		return err
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
