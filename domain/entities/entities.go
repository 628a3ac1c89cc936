package entities

import (
	"errors"
	"time"
)

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ConversationMessage is a single persisted message within a session.
// The engine creates messages and never mutates them afterwards.
type ConversationMessage struct {
	ID        int64                  `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	Role      MessageRole            `json:"role" db:"role"`
	Content   string                 `json:"content" db:"content"`
	Metadata  map[string]interface{} `json:"metadata" db:"metadata"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
}

// Session groups messages belonging to one conversation.
type Session struct {
	ID         string    `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Summary    string    `json:"summary" db:"summary"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastActive time.Time `json:"last_active" db:"last_active"`
}

// PersonalityFact is a confidence-scored long-term memory item about the
// user. Key is unique; Value is a string, a list, or a map, whatever the
// extraction model produced.
type PersonalityFact struct {
	Key         string      `json:"key" db:"key"`
	Value       interface{} `json:"value" db:"value"`
	Confidence  float64     `json:"confidence" db:"confidence"`
	LastUpdated time.Time   `json:"last_updated" db:"last_updated"`
}

// Preference is a persisted user toggle such as auto_converse.
type Preference struct {
	Key      string      `json:"key" db:"key"`
	Value    interface{} `json:"value" db:"value"`
	Category string      `json:"category" db:"category"`
}

// Domain validation methods
func (m *ConversationMessage) Validate() error {
	switch m.Role {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
	default:
		return errors.New("role must be user, assistant or system")
	}
	if m.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

func (f *PersonalityFact) Validate() error {
	if f.Key == "" {
		return errors.New("key is required")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return errors.New("confidence must be between 0 and 1")
	}
	return nil
}
