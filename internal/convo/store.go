package convo

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Schema creates the history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	vip BOOLEAN NOT NULL DEFAULT 0,
	open BOOLEAN NOT NULL DEFAULT 1,
	assigned_agent TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	closed_at DATETIME
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);

CREATE TABLE IF NOT EXISTS agent_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	description TEXT NOT NULL,
	score REAL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_conversation ON agent_events(conversation_id, id);
`

// Store persists conversation history and audit events to sqlite. It is
// an append-only sink for the pipeline; the in-memory Manager stays the
// source of truth for live turns.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateConversation records a new conversation.
func (s *Store) CreateConversation(id string, vip bool, createdAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO conversations (id, vip, open, created_at) VALUES (?, ?, 1, ?)`,
		id, vip, createdAt)
	return err
}

// CloseConversation marks a conversation resolved.
func (s *Store) CloseConversation(id string) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET open = 0, assigned_agent = '', closed_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// SetAssignedAgent records the current human assignment.
func (s *Store) SetAssignedAgent(id, agentID string) error {
	_, err := s.db.Exec(`UPDATE conversations SET assigned_agent = ? WHERE id = ?`, agentID, id)
	return err
}

// AppendMessage persists a message.
func (s *Store) AppendMessage(conversationID string, msg Message) error {
	meta := ""
	if len(msg.Metadata) > 0 {
		if b, err := json.Marshal(msg.Metadata); err == nil {
			meta = string(b)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (conversation_id, role, text, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		conversationID, msg.Role, msg.Text, meta, msg.Timestamp)
	return err
}

// AppendEvent persists an audit event.
func (s *Store) AppendEvent(conversationID string, ev AgentEvent) error {
	var score sql.NullFloat64
	if ev.Score != nil {
		score = sql.NullFloat64{Float64: *ev.Score, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO agent_events (conversation_id, kind, description, score, created_at) VALUES (?, ?, ?, ?, ?)`,
		conversationID, ev.Kind, ev.Description, score, ev.Timestamp)
	return err
}

// RecentMessages returns up to limit trailing messages for a conversation,
// oldest first.
func (s *Store) RecentMessages(conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT role, text, metadata, created_at FROM (
			SELECT id, role, text, metadata, created_at
			FROM messages WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var meta string
		if err := rows.Scan(&m.Role, &m.Text, &meta, &m.Timestamp); err != nil {
			return nil, err
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Events returns the audit trail for a conversation, most recent first.
func (s *Store) Events(conversationID string, limit int) ([]AgentEvent, error) {
	rows, err := s.db.Query(`
		SELECT kind, description, score, created_at
		FROM agent_events WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentEvent
	for rows.Next() {
		var ev AgentEvent
		var score sql.NullFloat64
		if err := rows.Scan(&ev.Kind, &ev.Description, &score, &ev.Timestamp); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			ev.Score = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
