package http

import (
	"encoding/json"

	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

func invalidMessage(msg string) *proto.Error {
	return &proto.Error{Code: proto.ErrCodeInvalidMessage, Msg: msg}
}

// inboundToCommand maps a client frame to a hub command. Hello frames are
// handled by the connection itself and never reach here.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoinProject:
		var join proto.JoinProjectData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, invalidMessage("malformed joinProject data")
		}
		if join.ProjectID == "" {
			return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "projectId is required"}
		}
		return &core.Command{
			Kind:      core.CommandJoinProject,
			ProjectID: join.ProjectID,
			UserID:    join.UserID,
			RequestID: join.RequestID,
		}, nil
	case proto.InboundTypeLeaveProject:
		var leave proto.LeaveProjectData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &leave); err != nil {
				return nil, invalidMessage("malformed leaveProject data")
			}
		}
		return &core.Command{
			Kind:      core.CommandLeaveProject,
			RequestID: leave.RequestID,
		}, nil
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, invalidMessage("malformed sendMessage data")
		}
		return &core.Command{
			Kind:      core.CommandSendMessage,
			ProjectID: msg.ProjectID,
			Content:   msg.Content,
			UserID:    msg.UserID,
			RequestID: msg.RequestID,
		}, nil
	default:
		return nil, invalidMessage("unknown message type")
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:      proto.OutboundTypeEvent,
			Event:     proto.EventReceiveMessage,
			ProjectID: event.ProjectID,
			Data:      chatMessageFromStore(event.Message),
		}
	case core.EventPresence:
		online := event.Online
		if online == nil {
			online = []string{}
		}
		return proto.Outbound{
			Type:      proto.OutboundTypeEvent,
			Event:     proto.EventUpdateOnlineUsers,
			ProjectID: event.ProjectID,
			Data:      online,
		}
	case core.EventMessageAck:
		return proto.Outbound{
			Type:      proto.OutboundTypeEvent,
			Event:     proto.EventMessageAck,
			ProjectID: event.ProjectID,
			RequestID: event.RequestID,
			Data:      proto.MessageAck{RequestID: event.RequestID, ID: event.Message.ID},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, RequestID: event.RequestID, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:      proto.OutboundTypeError,
			RequestID: event.RequestID,
			Error:     &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func chatMessageFromStore(msg *store.Message) proto.ChatMessage {
	return proto.ChatMessage{
		ID:        msg.ID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		ProjectID: msg.ProjectID,
		UserID:    msg.UserID,
		Author:    proto.Author{ID: msg.Author.ID, Name: msg.Author.Name},
	}
}
