package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinProject subscribes the connection to a project room,
	// leaving any room it was in before.
	CommandJoinProject CommandKind = iota
	// CommandSendMessage persists a chat message and relays it to the room.
	CommandSendMessage
	// CommandLeaveProject unsubscribes the connection from its current room.
	CommandLeaveProject
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinProject:
		return "join_project"
	case CommandSendMessage:
		return "send_message"
	case CommandLeaveProject:
		return "leave_project"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind      CommandKind
	ProjectID string
	Content   string
	// UserID is the identity the client claims. It is optional; when set it
	// must match the identity bound to the connection.
	UserID string
	// RequestID is echoed back in the ack or error for this command.
	RequestID string
}
