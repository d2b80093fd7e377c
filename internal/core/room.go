package core

import "sort"

// Room groups the connections joined to the same project.
// It keeps a per-user connection count so presence is derived without scanning.
type Room struct {
	ProjectID string
	clients   map[*Client]struct{}
	users     map[string]int
}

// NewRoom constructs a room with no clients.
func NewRoom(projectID string) *Room {
	return &Room{
		ProjectID: projectID,
		clients:   make(map[*Client]struct{}),
		users:     make(map[string]int),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	r.users[c.UserID]++
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	if r.users[c.UserID] <= 1 {
		delete(r.users, c.UserID)
	} else {
		r.users[c.UserID]--
	}
	return true
}

// Presence returns the distinct user IDs in the room, sorted.
func (r *Room) Presence() []string {
	online := make([]string, 0, len(r.users))
	for userID := range r.users {
		online = append(online, userID)
	}
	sort.Strings(online)
	return online
}

// Broadcast sends an event to all clients in the room and returns the clients
// whose buffers were full.
func (r *Room) Broadcast(event *Event) []*Client {
	var dropped []*Client
	for client := range r.clients {
		if !client.deliver(event) {
			dropped = append(dropped, client)
		}
	}
	return dropped
}

// Len returns the number of connections in the room.
func (r *Room) Len() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
