// Package store journals sessions, notebook blocks and stream events to
// SQLite for inspection and replay. Journaling is best-effort: in-process
// session state stays authoritative and a write failure never aborts a
// session.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// SessionRecord is one journaled session.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Why       string    `json:"why"`
	What      string    `json:"what"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockRecord is one journaled notebook block.
type BlockRecord struct {
	BlockID   string          `json:"block_id"`
	SessionID string          `json:"session_id"`
	BlockType string          `json:"block_type"`
	Content   string          `json:"content,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventRecord is one journaled stream event.
type EventRecord struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Store is the journal interface.
type Store interface {
	CreateSession(ctx context.Context, session *SessionRecord) error
	CreateBlock(ctx context.Context, block *BlockRecord) error
	CreateEvent(ctx context.Context, event *EventRecord) error
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	ListBlocks(ctx context.Context, sessionID string) ([]BlockRecord, error)
	ListEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]EventRecord, error)
	Close() error
}
