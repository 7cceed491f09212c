package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/proto"
	"github.com/vovakirdan/village-chat/internal/service/rooms"
	"github.com/vovakirdan/village-chat/internal/store"
)

// RoomHandlers provides HTTP handlers for chat room endpoints.
type RoomHandlers struct {
	rooms *rooms.Service
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(rs *rooms.Service, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms: rs,
		log:   logger,
	}
}

// CreateRoom opens a chat about a post with its writer.
// POST /chat/room
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req proto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), uid, rooms.CreateParams{
		PostID:           req.PostID,
		Writer:           req.Writer,
		WriterProfileImg: req.WriterProfileImg,
		UserProfileImg:   req.UserProfileImg,
	})
	if err != nil {
		if errors.Is(err, rooms.ErrSelfChat) {
			c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Int64("post_id", req.PostID).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("room_id", room.ID).Int64("post_id", room.PostID).Str("user", uid).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room, nil))
}

// ListRooms lists the caller's rooms with their latest message.
// GET /chat/room
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}

	listings, err := h.rooms.List(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user", uid).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.RoomSummary, 0, len(listings))
	for _, l := range listings {
		summary := proto.RoomSummary{
			RoomID:      l.Room.ID,
			PostID:      l.Room.PostID,
			Writer:      l.Room.Writer,
			User:        l.Room.User,
			Counterpart: l.Room.Writer,
		}
		if l.Room.Writer == uid {
			summary.Counterpart = l.Room.User
		}
		if l.LastMessage != nil {
			summary.LastChat = l.LastMessage.Body
			summary.LastChatAt = l.LastMessage.CreatedAt.Format(time.RFC3339)
		}
		response = append(response, summary)
	}

	h.log.Debug().Str("user", uid).Int("room_count", len(response)).Msg("rooms listed")
	c.JSON(http.StatusOK, response)
}

// GetRoom returns room info and its chat log.
// GET /chat/room/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, err := proto.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
		return
	}

	room, messages, err := h.rooms.Get(c.Request.Context(), uid, roomID)
	if err != nil {
		h.writeRoomError(c, roomID, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse(room, messages))
}

// DeleteRoom removes a room and its history.
// DELETE /chat/room/:id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, err := proto.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.rooms.Delete(c.Request.Context(), uid, roomID); err != nil {
		h.writeRoomError(c, roomID, err)
		return
	}
	h.log.Info().Int64("room_id", roomID).Str("user", uid).Msg("room deleted")
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) writeRoomError(c *gin.Context, roomID int64, err error) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, proto.ErrorResponse{Error: "room not found"})
	case errors.Is(err, rooms.ErrNotParticipant):
		c.JSON(http.StatusForbidden, proto.ErrorResponse{Error: "not a participant of this room"})
	default:
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("room request failed")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
	}
}

func roomResponse(room *store.Room, messages []*store.Message) proto.RoomResponse {
	resp := proto.RoomResponse{
		RoomID:           room.ID,
		PostID:           room.PostID,
		Writer:           room.Writer,
		User:             room.User,
		WriterProfileImg: room.WriterProfileImg,
		UserProfileImg:   room.UserProfileImg,
		ChatLog:          make([]proto.ChatLogEntry, 0, len(messages)),
	}
	for i, m := range messages {
		resp.ChatLog = append(resp.ChatLog, proto.ChatLogEntry{
			Sender:  m.Sender,
			Message: m.Body,
			Count:   i,
		})
	}
	return resp
}
