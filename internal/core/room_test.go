package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomPresenceCountsUsersOnce(t *testing.T) {
	room := NewRoom("proj1")
	a1 := NewClient("a1", "alice", 1)
	a2 := NewClient("a2", "alice", 1)
	b := NewClient("b", "bob", 1)

	require.True(t, room.AddClient(b))
	require.True(t, room.AddClient(a1))
	require.True(t, room.AddClient(a2))
	require.False(t, room.AddClient(a2))

	require.Equal(t, 3, room.Len())
	require.Equal(t, []string{"alice", "bob"}, room.Presence())

	require.True(t, room.RemoveClient(a1))
	require.False(t, room.RemoveClient(a1))
	require.Equal(t, []string{"alice", "bob"}, room.Presence())

	require.True(t, room.RemoveClient(a2))
	require.Equal(t, []string{"bob"}, room.Presence())

	require.True(t, room.RemoveClient(b))
	require.True(t, room.Empty())
	require.Empty(t, room.Presence())
}

func TestRoomBroadcastReportsFullBuffers(t *testing.T) {
	room := NewRoom("proj1")
	fast := NewClient("fast", "u1", 4)
	slow := NewClient("slow", "u2", 1)
	room.AddClient(fast)
	room.AddClient(slow)

	first := &Event{Kind: EventPresence, ProjectID: "proj1"}
	require.Empty(t, room.Broadcast(first))

	dropped := room.Broadcast(&Event{Kind: EventPresence, ProjectID: "proj1"})
	require.Equal(t, []*Client{slow}, dropped)

	require.Len(t, fast.Events, 2)
	require.Len(t, slow.Events, 1)
	require.Same(t, first, <-slow.Events)
}
