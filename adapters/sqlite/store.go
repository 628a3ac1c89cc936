package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/domain/repositories"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK(role IN ('user', 'assistant', 'system')),
    content TEXT NOT NULL,
    metadata JSON,
    timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp DESC);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    summary TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_active DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active DESC);

CREATE TABLE IF NOT EXISTS personality (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT UNIQUE NOT NULL,
    value TEXT NOT NULL,
    confidence REAL DEFAULT 1.0 CHECK(confidence >= 0 AND confidence <= 1),
    last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    category TEXT CHECK(category IN ('audio', 'visualization', 'behavior', 'system')),
    last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the SQLite-backed persistence collaborator.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ repositories.Store = (*Store)(nil)

// New opens the database file and ensures the schema.
func New(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("SQLite store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMessage persists one conversation message and refreshes the
// session's last-active marker.
func (s *Store) SaveMessage(ctx context.Context, msg *entities.ConversationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, role, content, metadata) VALUES (?, ?, ?, ?)`,
		msg.SessionID, string(msg.Role), msg.Content, string(metadata))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		msg.ID = id
	}

	return s.TouchSession(ctx, msg.SessionID)
}

// GetConversations returns the most recent messages of a session in
// chronological order.
func (s *Store) GetConversations(ctx context.Context, sessionID string, limit int) ([]entities.ConversationMessage, error) {
	return s.queryMessages(ctx,
		`SELECT id, session_id, role, content, metadata, timestamp
		 FROM conversations WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit)
}

// GetRecentContext is the prompt-history window: same shape as
// GetConversations, kept separate so callers state their intent.
func (s *Store) GetRecentContext(ctx context.Context, sessionID string, limit int) ([]entities.ConversationMessage, error) {
	return s.GetConversations(ctx, sessionID, limit)
}

// SearchConversations does a case-insensitive substring search over
// message content.
func (s *Store) SearchConversations(ctx context.Context, query string, sessionID string, limit int) ([]entities.ConversationMessage, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	pattern := "%" + strings.ToLower(trimmed) + "%"
	if sessionID != "" {
		return s.queryMessages(ctx,
			`SELECT id, session_id, role, content, metadata, timestamp
			 FROM conversations
			 WHERE lower(content) LIKE ? AND session_id = ?
			 ORDER BY id DESC LIMIT ?`, pattern, sessionID, limit)
	}
	return s.queryMessages(ctx,
		`SELECT id, session_id, role, content, metadata, timestamp
		 FROM conversations
		 WHERE lower(content) LIKE ?
		 ORDER BY id DESC LIMIT ?`, pattern, limit)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...interface{}) ([]entities.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []entities.ConversationMessage
	for rows.Next() {
		var msg entities.ConversationMessage
		var role, metadata string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &metadata, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = entities.MessageRole(role)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
				s.logger.Warn("Skipping unreadable message metadata", zap.Int64("id", msg.ID), zap.Error(err))
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows come back newest first; callers expect chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, title string) (*entities.Session, error) {
	if title == "" {
		title = time.Now().Format("Jan 2") + " Session"
	}

	session := &entities.Session{
		ID:         uuid.NewString(),
		Title:      title,
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title) VALUES (?, ?)`, session.ID, session.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSessions lists sessions by recency.
func (s *Store) GetSessions(ctx context.Context, limit int) ([]entities.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, COALESCE(summary, ''), created_at, last_active
		 FROM sessions ORDER BY last_active DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []entities.Session
	for rows.Next() {
		var sess entities.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Summary, &sess.CreatedAt, &sess.LastActive); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// TouchSession refreshes a session's last-active timestamp.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active = CURRENT_TIMESTAMP WHERE id = ?`, sessionID)
	return err
}

// GetPersonality returns all facts, highest confidence first.
func (s *Store) GetPersonality(ctx context.Context) ([]entities.PersonalityFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, confidence, last_updated FROM personality ORDER BY confidence DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query personality: %w", err)
	}
	defer rows.Close()

	var facts []entities.PersonalityFact
	for rows.Next() {
		var fact entities.PersonalityFact
		var value string
		if err := rows.Scan(&fact.Key, &value, &fact.Confidence, &fact.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		// Values are stored as JSON; plain strings fall back verbatim.
		var parsed interface{}
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			fact.Value = parsed
		} else {
			fact.Value = value
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// UpdatePersonality upserts one fact by key.
func (s *Store) UpdatePersonality(ctx context.Context, fact *entities.PersonalityFact) error {
	if err := fact.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(fact.Value)
	if err != nil {
		return fmt.Errorf("failed to encode fact value: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO personality (key, value, confidence, last_updated)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   confidence = excluded.confidence,
		   last_updated = CURRENT_TIMESTAMP`,
		fact.Key, string(value), fact.Confidence)
	if err != nil {
		return fmt.Errorf("failed to upsert fact: %w", err)
	}
	return nil
}

// DeletePersonality removes one fact by key.
func (s *Store) DeletePersonality(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM personality WHERE key = ?`, key)
	return err
}

// GetPreference returns a preference value, or nil when unset.
func (s *Store) GetPreference(ctx context.Context, key string) (interface{}, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preference: %w", err)
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return value, nil
	}
	return parsed, nil
}

// SetPreference upserts a preference.
func (s *Store) SetPreference(ctx context.Context, pref *entities.Preference) error {
	value, err := json.Marshal(pref.Value)
	if err != nil {
		return fmt.Errorf("failed to encode preference: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value, category, last_updated)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   last_updated = CURRENT_TIMESTAMP`,
		pref.Key, string(value), pref.Category)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}
