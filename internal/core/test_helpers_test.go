package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

// memoryStore is an in-process Store: every listed user is a member of every
// project unless explicitly excluded.
type memoryStore struct {
	mu       sync.Mutex
	seq      int
	outsider map[string]bool
	messages []*store.Message
}

func newMemoryStore(outsiders ...string) *memoryStore {
	s := &memoryStore{outsider: make(map[string]bool)}
	for _, u := range outsiders {
		s.outsider[u] = true
	}
	return s
}

func (s *memoryStore) AppendMessage(_ context.Context, content, projectID, userID string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg := &store.Message{
		ID:        fmt.Sprintf("m%d", s.seq),
		Content:   content,
		CreatedAt: time.Now().UTC(),
		ProjectID: projectID,
		UserID:    userID,
		Author:    store.Author{ID: userID, Name: "name-" + userID},
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memoryStore) IsProjectMember(_ context.Context, _, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.outsider[userID], nil
}

func (s *memoryStore) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func startHub(t *testing.T, st Store, opts ...Option) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(st, opts...)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(hub *Hub, id, userID string) *Client {
	c := NewClient(id, userID, 64)
	hub.RegisterClient(c)
	return c
}

// joinAndWait joins a project and waits until the client sees itself in the room.
func joinAndWait(t *testing.T, c *Client, projectID string) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinProject, ProjectID: projectID}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events:
			if !ok {
				t.Fatalf("client %s closed while joining", c.ID)
			}
			if ev.Kind == EventPresence && ev.ProjectID == projectID && slices.Contains(ev.Online, c.UserID) {
				return
			}
		case <-deadline:
			t.Fatalf("client %s did not join %s", c.ID, projectID)
		}
	}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed before event kind %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

// waitPresence reads until a presence event for projectID equals want.
func waitPresence(t *testing.T, ch <-chan *Event, projectID string, want []string) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	var last []string
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed waiting for presence %v", want)
			}
			if ev.Kind != EventPresence || ev.ProjectID != projectID {
				continue
			}
			last = ev.Online
			if slices.Equal(ev.Online, want) {
				return
			}
		case <-deadline:
			t.Fatalf("presence for %s: want %v, last seen %v", projectID, want, last)
		}
	}
}

func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timeout := time.After(wait)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		case <-timeout:
			return
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
