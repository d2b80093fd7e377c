package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Schema is the SQLite schema applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL REFERENCES users(id),
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS project_members (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role       TEXT NOT NULL DEFAULT 'MEMBER',
	joined_at  DATETIME NOT NULL,
	PRIMARY KEY (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id),
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, seq);
CREATE INDEX IF NOT EXISTS idx_project_members_user ON project_members(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store, applies the schema and runs a setup function.
// Useful for tests to seed data without going through the CLI.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, name string) (*store.User, error) {
	user := &store.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	query := `
		INSERT INTO users (id, email, name, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, email, name, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== ProjectStore implementation ====

// CreateProject creates a project and adds the owner as an admin member.
func (s *SQLiteStore) CreateProject(ctx context.Context, name, description, ownerID string) (*store.Project, error) {
	project := &store.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.Description, project.OwnerID, project.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`, project.ID, ownerID, store.MemberRoleAdmin, project.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return project, nil
}

// AddMember adds a user to a project.
func (s *SQLiteStore) AddMember(ctx context.Context, projectID, userID string, role store.MemberRole) error {
	query := `
		INSERT OR IGNORE INTO project_members (project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, projectID, userID, role, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// IsProjectMember checks if user is a member of the project.
func (s *SQLiteStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	query := `
		SELECT 1 FROM project_members
		WHERE project_id = ? AND user_id = ?
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, projectID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ==== MessageStore implementation ====

// AppendMessage stores a message and returns it with its author in one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, content, projectID, userID string) (*store.Message, error) {
	msg := &store.Message{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
		ProjectID: projectID,
		UserID:    userID,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, project_id, user_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ProjectID, msg.UserID, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	err = tx.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = ?`, userID).
		Scan(&msg.Author.ID, &msg.Author.Name)
	if err != nil {
		return nil, fmt.Errorf("query author: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves the latest messages of a project, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, projectID string, limit int, beforeID string) ([]*store.Message, error) {
	limit = store.ClampLimit(limit, defaultListLimit, maxListLimit)

	var (
		rows *sql.Rows
		err  error
	)
	if beforeID != "" {
		var cursor int64
		err = s.db.QueryRowContext(ctx,
			`SELECT seq FROM messages WHERE id = ? AND project_id = ?`, beforeID, projectID,
		).Scan(&cursor)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", beforeID, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("query cursor: %w", err)
		}

		rows, err = s.db.QueryContext(ctx, `
			SELECT m.id, m.content, m.created_at, m.project_id, m.user_id, u.id, u.name
			FROM messages m
			JOIN users u ON u.id = m.user_id
			WHERE m.project_id = ?
			  AND m.seq < ?
			ORDER BY m.seq DESC
			LIMIT ?
		`, projectID, cursor, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT m.id, m.content, m.created_at, m.project_id, m.user_id, u.id, u.name
			FROM messages m
			JOIN users u ON u.id = m.user_id
			WHERE m.project_id = ?
			ORDER BY m.seq DESC
			LIMIT ?
		`, projectID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.Content,
			&msg.CreatedAt,
			&msg.ProjectID,
			&msg.UserID,
			&msg.Author.ID,
			&msg.Author.Name,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Fetched newest first for the LIMIT; callers want oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
