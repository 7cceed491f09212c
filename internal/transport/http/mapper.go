package http

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/village-chat/internal/proto"
	"github.com/vovakirdan/village-chat/internal/relay"
)

// inboundToCommand maps a client frame to a hub command. A *proto.Error is answered to
// the client; a plain error means the frame could not be decoded at all.
func inboundToCommand(inbound proto.Inbound) (*relay.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", inbound.Type, err)
		}
		if data.RoomID <= 0 {
			return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		kind := relay.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeave {
			kind = relay.CommandLeaveRoom
		}
		return &relay.Command{Kind: kind, Room: data.RoomID}, nil, nil
	case proto.InboundTypeSend:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", inbound.Type, err)
		}
		if data.RoomID <= 0 {
			return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "room_id is required", ClientID: data.ClientID}, nil
		}
		// The sender is always the authenticated user; data.Sender is ignored here.
		return &relay.Command{
			Kind:     relay.CommandSendMessage,
			Room:     data.RoomID,
			Text:     data.Message,
			ClientID: data.ClientID,
		}, nil, nil
	default:
		return nil, &proto.Error{Code: proto.ErrCodeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *relay.Event) proto.Outbound {
	switch event.Kind {
	case relay.EventMessage:
		if event.Message == nil {
			break
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data: proto.ChatMessage{
				ID:       event.Message.ID,
				RoomID:   event.Message.RoomID,
				Sender:   event.Message.Sender,
				Message:  event.Message.Body,
				ClientID: event.Message.ClientID,
				TS:       event.Message.CreatedAt.Unix(),
			},
		}
	case relay.EventJoined, relay.EventLeft:
		name := proto.EventJoined
		if event.Kind == relay.EventLeft {
			name = proto.EventLeft
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  proto.MemberEvent{RoomID: event.Room, User: event.User},
		}
	case relay.EventError:
		if event.Error == nil {
			break
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{
				Code:     event.Error.Code,
				Msg:      event.Error.Message,
				RoomID:   event.Room,
				ClientID: event.Error.ClientID,
			},
		}
	}
	return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: proto.ErrCodeInternal, Msg: "unknown event"}}
}
