package repositories

import (
	"context"

	"github.com/orbvoice/orb/domain/entities"
)

// Store is the persistence collaborator for conversations, long-term
// personality facts and user preferences.
type Store interface {
	// Conversations
	SaveMessage(ctx context.Context, msg *entities.ConversationMessage) error
	GetConversations(ctx context.Context, sessionID string, limit int) ([]entities.ConversationMessage, error)
	GetRecentContext(ctx context.Context, sessionID string, limit int) ([]entities.ConversationMessage, error)
	SearchConversations(ctx context.Context, query string, sessionID string, limit int) ([]entities.ConversationMessage, error)

	// Sessions
	CreateSession(ctx context.Context, title string) (*entities.Session, error)
	GetSessions(ctx context.Context, limit int) ([]entities.Session, error)
	TouchSession(ctx context.Context, sessionID string) error

	// Personality facts
	GetPersonality(ctx context.Context) ([]entities.PersonalityFact, error)
	UpdatePersonality(ctx context.Context, fact *entities.PersonalityFact) error
	DeletePersonality(ctx context.Context, key string) error

	// Preferences
	GetPreference(ctx context.Context, key string) (interface{}, error)
	SetPreference(ctx context.Context, pref *entities.Preference) error
}
