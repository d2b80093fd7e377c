package core

import "sync"

const defaultClientBuffer = 32

// Client is one live connection as seen by the core layer.
//
// The transport writes to Commands and reads Events until it is closed.
// Only the hub sends on or closes Events.
type Client struct {
	ID       string
	UserID   string
	Commands chan *Command
	Events   chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client bound to an authenticated user.
// A non-positive buffer selects the default size.
func NewClient(id, userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// deliver places an event onto the outbound channel without blocking.
func (c *Client) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		close(c.Events)
	})
}
