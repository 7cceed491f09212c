package live

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vovakirdan/village-chat/internal/core"
	"github.com/vovakirdan/village-chat/internal/proto"
)

// Encode renders an outgoing message as the proto.ChatMessage published on brokers.
func Encode(msg core.Outgoing) ([]byte, error) {
	roomID, err := proto.ParseRoomID(msg.Room)
	if err != nil {
		return nil, err
	}
	return json.Marshal(proto.ChatMessage{
		RoomID:   roomID,
		Sender:   msg.Sender,
		Message:  msg.Text,
		ClientID: msg.ClientID,
		TS:       time.Now().Unix(),
	})
}

// Decode parses a broker payload.
func Decode(data []byte) (core.Incoming, error) {
	var msg proto.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return core.Incoming{}, fmt.Errorf("decode chat message: %w", err)
	}
	return FromChatMessage(msg), nil
}

// FromChatMessage converts a wire message into a live delivery.
func FromChatMessage(msg proto.ChatMessage) core.Incoming {
	return core.Incoming{
		Room:     proto.FormatRoomID(msg.RoomID),
		Sender:   msg.Sender,
		Text:     msg.Message,
		ClientID: msg.ClientID,
	}
}
