// Package store persists named chat sessions in SQLite.
//
// Each session has a stable UUID and a unique, user-chosen name. Saving
// under an existing name replaces that session's messages in one
// transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arin/llmchat/internal/history"
)

const maxNameLength = 100

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidName = errors.New("invalid session name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Summary describes a saved session without its messages.
type Summary struct {
	ID        string
	Name      string
	Provider  string
	Model     string
	Messages  int
	UpdatedAt time.Time
}

// Session is a saved conversation.
type Session struct {
	Summary
	History []history.Message
}

// Store is a SQLite-backed session store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return open(path)
}

// OpenInMemory creates a throwaway database, used by tests.
func OpenInMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			image_path TEXT,
			image_mime TEXT,
			image_data TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
			UNIQUE(session_id, message_index)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
		ON messages(session_id, message_index);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ValidateName checks a session name: letters, digits, '_' and '-', at most
// 100 characters.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLength)
	case !namePattern.MatchString(name):
		return fmt.Errorf("%w: use only letters, digits, '_' and '-'", ErrInvalidName)
	}
	return nil
}

// Save writes msgs under name, replacing any session with the same name.
func (s *Store) Save(ctx context.Context, name, provider, model string, msgs []history.Message) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	var id string
	err = tx.QueryRowContext(ctx, "SELECT id FROM sessions WHERE name = ?", name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			"INSERT INTO sessions (id, name, provider, model, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			id, name, provider, model, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET provider = ?, model = ?, updated_at = ? WHERE id = ?",
			provider, model, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear old messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session_id, message_index, role, content, image_path, image_mime, image_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		var path, mime, data any
		if m.Image != nil {
			path, mime, data = m.Image.Path, m.Image.MIME, m.Image.Data
		}
		if _, err := stmt.ExecContext(ctx, id, i, string(m.Role), m.Content, path, mime, data); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads the session saved under name.
func (s *Store) Load(ctx context.Context, name string) (*Session, error) {
	sess := &Session{}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, provider, model, updated_at FROM sessions WHERE name = ?", name).
		Scan(&sess.ID, &sess.Name, &sess.Provider, &sess.Model, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	sess.UpdatedAt = time.Unix(0, updated)

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, image_path, image_mime, image_data
		FROM messages WHERE session_id = ? ORDER BY message_index ASC`, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	sess.History = []history.Message{}
	for rows.Next() {
		var (
			m                history.Message
			role             string
			path, mime, data sql.NullString
		)
		if err := rows.Scan(&role, &m.Content, &path, &mime, &data); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = history.Role(role)
		if data.Valid {
			m.Image = &history.Image{Path: path.String, MIME: mime.String, Data: data.String}
		}
		sess.History = append(sess.History, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	sess.Messages = len(sess.History)
	return sess, nil
}

// List returns all saved sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.provider, s.model, s.updated_at, COUNT(m.id)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Summary{}
	for rows.Next() {
		var sum Summary
		var updated int64
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Provider, &sum.Model, &updated, &sum.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, updated)
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes the session saved under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, "SELECT id FROM sessions WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to query session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

// DeleteAll removes every saved session and returns how many there were.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions")
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(n), nil
}
