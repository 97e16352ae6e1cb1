// Package sqlite implements core.MessageStore on a local SQLite database
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/session"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Store persists chat messages in SQLite. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

var _ core.MessageStore = (*Store)(nil)

// Open creates or opens the database at path. MemoryDSN gives a volatile
// database.
func Open(path string) (*Store, error) {
	dsn := MemoryDSN
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == MemoryDSN {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		message_type TEXT NOT NULL,
		content TEXT NOT NULL,
		agent_type TEXT,
		metadata_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PostMessage inserts a message and returns its new ID.
func (s *Store) PostMessage(ctx context.Context, sessionID string, req core.PostMessageRequest) (core.PostMessageResponse, error) {
	if sessionID == "" {
		return core.PostMessageResponse{}, session.ErrInvalidSession
	}
	meta, err := encodeMetadata(req.Metadata)
	if err != nil {
		return core.PostMessageResponse{}, err
	}

	id := core.NewID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, message_type, content, agent_type, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, req.MessageType, req.Content, req.AgentType, meta, time.Now().UTC().UnixMilli())
	if err != nil {
		return core.PostMessageResponse{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return core.PostMessageResponse{ID: id}, nil
}

// UpdateMessage patches content and merges metadata keys in one
// transaction.
func (s *Store) UpdateMessage(ctx context.Context, sessionID, messageID string, req core.UpdateMessageRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		content string
		metaRaw sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT content, metadata_json FROM messages WHERE session_id = ? AND id = ?`,
		sessionID, messageID).Scan(&content, &metaRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s message %s: %w", sessionID, messageID, session.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}

	if req.Content != nil {
		content = *req.Content
	}
	meta, err := decodeMetadata(metaRaw)
	if err != nil {
		return err
	}
	if len(req.Metadata) > 0 {
		if meta == nil {
			meta = make(map[string]any, len(req.Metadata))
		}
		for k, v := range req.Metadata {
			meta[k] = v
		}
	}
	encoded, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET content = ?, metadata_json = ? WHERE session_id = ? AND id = ?`,
		content, encoded, sessionID, messageID); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns a page of a session's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]core.StoredMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, message_type, content, agent_type, metadata_json, created_at
		 FROM messages WHERE session_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := []core.StoredMessage{}
	for rows.Next() {
		var (
			m         core.StoredMessage
			agentType sql.NullString
			metaRaw   sql.NullString
			createdMS int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MessageType, &m.Content, &agentType, &metaRaw, &createdMS); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.AgentType = agentType.String
		m.CreatedAt = time.UnixMilli(createdMS).UTC()
		if m.Metadata, err = decodeMetadata(metaRaw); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func encodeMetadata(meta map[string]any) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return meta, nil
}
