package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		owner_id    TEXT NOT NULL REFERENCES users(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS project_members (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role       TEXT NOT NULL DEFAULT 'MEMBER',
		joined_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (project_id, user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq        BIGSERIAL PRIMARY KEY,
		id         TEXT NOT NULL UNIQUE,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL REFERENCES users(id),
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, seq);`,
	`CREATE INDEX IF NOT EXISTS idx_project_members_user ON project_members(user_id);`,
}

// messageRow mirrors the joined message/author projection.
type messageRow struct {
	Seq        int64     `db:"seq"`
	ID         string    `db:"id"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
	ProjectID  string    `db:"project_id"`
	UserID     string    `db:"user_id"`
	AuthorName string    `db:"author_name"`
}

func (r messageRow) toMessage() *store.Message {
	return &store.Message{
		ID:        r.ID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		ProjectID: r.ProjectID,
		UserID:    r.UserID,
		Author:    store.Author{ID: r.UserID, Name: r.AuthorName},
	}
}

// Store is a sqlx-backed Postgres implementation of store.Store.
type Store struct {
	db *sqlx.DB
}

// New connects to Postgres using the given DSN.
func New(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser creates a new user.
func (s *Store) CreateUser(ctx context.Context, email, name string) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO users (id, email, name) VALUES ($1, $2, $3) RETURNING id, email, name, created_at`,
		uuid.NewString(), email, name,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowxContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// CreateProject creates a project and adds the owner as an admin member.
func (s *Store) CreateProject(ctx context.Context, name, description, ownerID string) (*store.Project, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var project store.Project
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO projects (id, name, description, owner_id) VALUES ($1, $2, $3, $4)
		 RETURNING id, name, description, owner_id, created_at`,
		uuid.NewString(), name, description, ownerID,
	).Scan(&project.ID, &project.Name, &project.Description, &project.OwnerID, &project.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)`,
		project.ID, ownerID, store.MemberRoleAdmin,
	); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &project, nil
}

// AddMember adds a user to a project.
func (s *Store) AddMember(ctx context.Context, projectID, userID string, role store.MemberRole) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, user_id) DO NOTHING`,
		projectID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// IsProjectMember checks if the user belongs to the project.
func (s *Store) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

// AppendMessage stores a message and returns it with its author in a single statement.
func (s *Store) AppendMessage(ctx context.Context, content, projectID, userID string) (*store.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, `
		WITH ins AS (
			INSERT INTO messages (id, project_id, user_id, content)
			VALUES ($1, $2, $3, $4)
			RETURNING id, content, created_at, project_id, user_id
		)
		SELECT ins.id, ins.content, ins.created_at, ins.project_id, ins.user_id, u.name AS author_name
		FROM ins
		JOIN users u ON u.id = ins.user_id
	`, uuid.NewString(), projectID, userID, content)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return row.toMessage(), nil
}

// ListMessages retrieves the latest messages of a project, oldest first.
func (s *Store) ListMessages(ctx context.Context, projectID string, limit int, beforeID string) ([]*store.Message, error) {
	limit = store.ClampLimit(limit, defaultListLimit, maxListLimit)

	// Zero means no cursor; BIGSERIAL starts at 1.
	var cursor int64
	if beforeID != "" {
		err := s.db.GetContext(ctx, &cursor,
			`SELECT seq FROM messages WHERE id = $1 AND project_id = $2`, beforeID, projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", beforeID, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("query cursor: %w", err)
		}
	}

	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM (
			SELECT m.seq, m.id, m.content, m.created_at, m.project_id, m.user_id, u.name AS author_name
			FROM messages m
			JOIN users u ON u.id = m.user_id
			WHERE m.project_id = $1
			  AND ($2::bigint = 0 OR m.seq < $2::bigint)
			ORDER BY m.seq DESC
			LIMIT $3
		) page
		ORDER BY page.seq ASC
	`, projectID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]*store.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toMessage())
	}
	return messages, nil
}
