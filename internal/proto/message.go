package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello        = "hello"
	InboundTypeJoinProject  = "joinProject"
	InboundTypeLeaveProject = "leaveProject"
	InboundTypeSendMessage  = "sendMessage"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReceiveMessage    = "receiveMessage"
	EventUpdateOnlineUsers = "update-online-users"
	EventMessageAck        = "messageAck"
)

// Error codes produced by the transport itself. Domain codes come from core.
const (
	ErrCodeProtocolMismatch = "protocol_mismatch"
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeBadRequest       = "bad_request"
)

// HelloData authenticates a connection that did not present a token at upgrade.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinProjectData requests to join a project room. UserID, when present,
// must match the authenticated user.
type JoinProjectData struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// LeaveProjectData leaves the current room.
type LeaveProjectData struct {
	RequestID string `json:"requestId,omitempty"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	ProjectID string `json:"projectId,omitempty"`
	Content   string `json:"content"`
	UserID    string `json:"userId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type      string `json:"type"`
	Event     string `json:"event,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// Author is the public profile attached to a chat message.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessage is a stored message as seen by clients.
type ChatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Author    Author    `json:"author"`
}

// MessageAck confirms a stored message to its sender.
type MessageAck struct {
	RequestID string `json:"requestId,omitempty"`
	ID        string `json:"id"`
}

// OnlineUsers is the REST representation of a presence snapshot.
type OnlineUsers struct {
	ProjectID string   `json:"projectId"`
	Online    []string `json:"online"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
