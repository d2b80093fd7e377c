package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProject(t *testing.T, s *SQLiteStore) (*store.User, *store.Project) {
	t.Helper()
	ctx := context.Background()

	owner, err := s.CreateUser(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)

	project, err := s.CreateProject(ctx, "Website", "marketing site", owner.ID)
	require.NoError(t, err)

	return owner, project
}

func TestAppendMessageReturnsEnrichedMessage(t *testing.T) {
	s := newTestStore(t)
	owner, project := seedProject(t, s)

	msg, err := s.AppendMessage(context.Background(), "hello", project.ID, owner.ID)
	require.NoError(t, err)

	require.NotEmpty(t, msg.ID)
	require.False(t, msg.CreatedAt.IsZero())
	require.Equal(t, "hello", msg.Content)
	require.Equal(t, project.ID, msg.ProjectID)
	require.Equal(t, store.Author{ID: owner.ID, Name: "Alice"}, msg.Author)
}

func TestAppendMessageUnknownUserWritesNothing(t *testing.T) {
	s := newTestStore(t)
	_, project := seedProject(t, s)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "ghost", project.ID, "missing-user")
	require.Error(t, err)

	messages, err := s.ListMessages(ctx, project.ID, 10, "")
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestListMessagesOldestFirstWithCursor(t *testing.T) {
	s := newTestStore(t)
	owner, project := seedProject(t, s)
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"one", "two", "three", "four"} {
		msg, err := s.AppendMessage(ctx, text, project.ID, owner.ID)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	tests := []struct {
		name     string
		limit    int
		beforeID string
		expected []string
	}{
		{name: "all", limit: 10, expected: []string{"one", "two", "three", "four"}},
		{name: "latest two", limit: 2, expected: []string{"three", "four"}},
		{name: "before third", limit: 10, beforeID: ids[2], expected: []string{"one", "two"}},
		{name: "default limit", limit: 0, expected: []string{"one", "two", "three", "four"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := s.ListMessages(ctx, project.ID, tt.limit, tt.beforeID)
			require.NoError(t, err)

			contents := make([]string, 0, len(messages))
			for _, m := range messages {
				contents = append(contents, m.Content)
				require.Equal(t, "Alice", m.Author.Name)
			}
			require.Equal(t, tt.expected, contents)
		})
	}
}

func TestListMessagesIsolatedByProject(t *testing.T) {
	s := newTestStore(t)
	owner, project := seedProject(t, s)
	ctx := context.Background()

	other, err := s.CreateProject(ctx, "Mobile", "", owner.ID)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, "web", project.ID, owner.ID)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "mobile", other.ID, owner.ID)
	require.NoError(t, err)

	messages, err := s.ListMessages(ctx, other.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "mobile", messages[0].Content)
}

func TestListMessagesRejectsForeignCursor(t *testing.T) {
	s := newTestStore(t)
	owner, project := seedProject(t, s)
	ctx := context.Background()

	other, err := s.CreateProject(ctx, "Mobile", "", owner.ID)
	require.NoError(t, err)
	foreign, err := s.AppendMessage(ctx, "mobile", other.ID, owner.ID)
	require.NoError(t, err)

	for _, beforeID := range []string{"missing", foreign.ID} {
		_, err := s.ListMessages(ctx, project.ID, 10, beforeID)
		require.True(t, errors.Is(err, store.ErrNotFound), "cursor %q: expected ErrNotFound, got %v", beforeID, err)
	}
}

func TestProjectMembership(t *testing.T) {
	s := newTestStore(t)
	owner, project := seedProject(t, s)
	ctx := context.Background()

	bob, err := s.CreateUser(ctx, "bob@example.com", "Bob")
	require.NoError(t, err)

	ok, err := s.IsProjectMember(ctx, project.ID, owner.ID)
	require.NoError(t, err)
	require.True(t, ok, "owner should be a member")

	ok, err = s.IsProjectMember(ctx, project.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.AddMember(ctx, project.ID, bob.ID, store.MemberRoleMember))
	// Adding twice is a no-op.
	require.NoError(t, s.AddMember(ctx, project.ID, bob.ID, store.MemberRoleMember))

	ok, err = s.IsProjectMember(ctx, project.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGetUserByID(t *testing.T) {
	s := newTestStore(t)
	owner, _ := seedProject(t, s)
	ctx := context.Background()

	user, err := s.GetUserByID(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.WithinDuration(t, owner.CreatedAt, user.CreatedAt, time.Second)

	_, err = s.GetUserByID(ctx, "nope")
	require.True(t, errors.Is(err, store.ErrNotFound), "expected ErrNotFound, got %v", err)
}
