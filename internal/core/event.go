package core

import "github.com/vovakirdan/projectchat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage delivers a stored chat message to a room member.
	EventReceiveMessage EventKind = iota
	// EventPresence delivers the room's online users after a membership change.
	EventPresence
	// EventMessageAck confirms to the sender that its message was stored.
	EventMessageAck
	// EventError notifies a client about a rejected command.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReceiveMessage:
		return "receive_message"
	case EventPresence:
		return "presence"
	case EventMessageAck:
		return "message_ack"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated.
type Event struct {
	Kind      EventKind
	ProjectID string
	Message   *store.Message // EventReceiveMessage, EventMessageAck
	Online    []string       // EventPresence
	RequestID string         // EventMessageAck, EventError
	Error     *CoreError
}

func errorEvent(requestID string, err *CoreError) *Event {
	return &Event{Kind: EventError, RequestID: requestID, Error: err}
}
