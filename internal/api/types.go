package api

import (
	"time"

	"github.com/orbvoice/orb/domain/entities"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TokenResponse carries a freshly issued client token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StateResponse reports the engine's live status.
type StateResponse struct {
	State        entities.TurnState `json:"state"`
	AutoConverse bool               `json:"auto_converse"`
}

// FactRequest upserts one personality fact.
type FactRequest struct {
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
}

// HighlightResponse is the ranked subset of facts relevant to a context
// utterance, used by the UI to glow matching memories.
type HighlightResponse struct {
	Context string                     `json:"context"`
	Facts   []entities.PersonalityFact `json:"facts"`
}

// SessionRequest creates a new conversation session.
type SessionRequest struct {
	Title string `json:"title"`
}

// PreferenceRequest sets one preference value.
type PreferenceRequest struct {
	Value    interface{} `json:"value"`
	Category string      `json:"category"`
}

// PreferenceResponse returns one preference value.
type PreferenceResponse struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}
