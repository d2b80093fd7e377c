package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is the public profile of an account.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Project groups members, tasks and the project chat room.
type Project struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	CreatedAt   time.Time
}

// MemberRole defines a member's permissions within a project.
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleMember MemberRole = "MEMBER"
)

// Author is the public identity attached to a chat message.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a persisted chat message enriched with its author.
// It is immutable once returned by the store.
type Message struct {
	ID        string
	Content   string
	CreatedAt time.Time
	ProjectID string
	UserID    string
	Author    Author
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user.
	CreateUser(ctx context.Context, email, name string) (*User, error)

	// GetUserByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// ProjectStore handles projects and their membership.
type ProjectStore interface {
	// CreateProject creates a project and adds the owner as an admin member.
	CreateProject(ctx context.Context, name, description, ownerID string) (*Project, error)

	// AddMember adds a user to a project. Adding an existing member is a no-op.
	AddMember(ctx context.Context, projectID, userID string, role MemberRole) error

	// IsProjectMember checks if the user belongs to the project.
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// AppendMessage durably stores a message and returns it with a server-assigned
	// id, timestamp and author profile. Either the message is stored and returned,
	// or an error is returned and nothing is written.
	AppendMessage(ctx context.Context, content, projectID, userID string) (*Message, error)

	// ListMessages returns up to limit messages of a project, oldest first.
	// If beforeID is set, only messages written before that message are returned;
	// a beforeID that is not a message of the project yields ErrNotFound.
	ListMessages(ctx context.Context, projectID string, limit int, beforeID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ProjectStore
	MessageStore

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}

// ClampLimit bounds a requested page size to [1, maxLimit], using def when unset.
func ClampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
