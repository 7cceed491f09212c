package proto

// ChatLogEntry is one message of a room's history. Count is its position in the log.
type ChatLogEntry struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// RoomResponse is returned by GET /chat/room/:id.
type RoomResponse struct {
	RoomID           int64          `json:"room_id"`
	PostID           int64          `json:"post_id"`
	Writer           string         `json:"writer"`
	User             string         `json:"user"`
	WriterProfileImg string         `json:"writer_profile_img,omitempty"`
	UserProfileImg   string         `json:"user_profile_img,omitempty"`
	ChatLog          []ChatLogEntry `json:"chat_log"`
}

// RoomSummary is one entry of GET /chat/room.
type RoomSummary struct {
	RoomID      int64  `json:"room_id"`
	PostID      int64  `json:"post_id"`
	Writer      string `json:"writer"`
	User        string `json:"user"`
	LastChat    string `json:"last_chat,omitempty"`
	LastChatAt  string `json:"last_chat_date,omitempty"`
	Counterpart string `json:"counterpart"`
}

// CreateRoomRequest is the body of POST /chat/room. The caller becomes the room's user.
type CreateRoomRequest struct {
	PostID           int64  `json:"post_id" binding:"required,min=1"`
	Writer           string `json:"writer" binding:"required,min=1,max=64"`
	WriterProfileImg string `json:"writer_profile_img,omitempty"`
	UserProfileImg   string `json:"user_profile_img,omitempty"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}
