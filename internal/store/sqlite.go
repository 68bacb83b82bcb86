package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

var _ Store = (*SQLiteStore)(nil)

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			why TEXT,
			what TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			block_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			block_type TEXT NOT NULL,
			content TEXT,
			input TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_session ON blocks(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession journals a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, question, why, what, created_at) VALUES (?, ?, ?, ?, ?)`,
		session.SessionID, session.Question, session.Why, session.What, session.CreatedAt)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	var session SessionRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, question, why, what, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.Question, &session.Why, &session.What, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateBlock journals a notebook block.
func (s *SQLiteStore) CreateBlock(ctx context.Context, block *BlockRecord) error {
	input := ""
	if block.Input != nil {
		input = string(block.Input)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocks (block_id, session_id, block_type, content, input, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		block.BlockID, block.SessionID, block.BlockType, block.Content, input, block.CreatedAt)
	return err
}

// ListBlocks retrieves the blocks of a session in creation order.
func (s *SQLiteStore) ListBlocks(ctx context.Context, sessionID string) ([]BlockRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT block_id, session_id, block_type, content, input, created_at FROM blocks WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []BlockRecord
	for rows.Next() {
		var block BlockRecord
		var content, input sql.NullString
		if err := rows.Scan(&block.BlockID, &block.SessionID, &block.BlockType, &content, &input, &block.CreatedAt); err != nil {
			return nil, err
		}
		if content.Valid {
			block.Content = content.String
		}
		if input.Valid && input.String != "" {
			block.Input = json.RawMessage(input.String)
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}

// CreateEvent journals a stream event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *EventRecord) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Ts, event.Type, payload)
	return err
}

// ListEvents retrieves events for a session.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]EventRecord, error) {
	query := `SELECT event_id, session_id, ts, type, payload FROM events WHERE session_id = ?`
	args := []interface{}{sessionID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	query += ` ORDER BY ts ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var event EventRecord
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
