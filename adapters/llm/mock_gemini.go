package llm

import (
	"context"

	"github.com/orbvoice/orb/domain/repositories"
)

// MockLLM returns canned replies in order; used without an API key and
// in tests.
type MockLLM struct {
	Replies []string
	Err     error
	Calls   [][]repositories.ChatMessage
}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

func NewMockLLM(replies ...string) *MockLLM {
	if len(replies) == 0 {
		replies = []string{"I'm listening."}
	}
	return &MockLLM{Replies: replies}
}

func (m *MockLLM) Chat(_ context.Context, messages []repositories.ChatMessage) (string, error) {
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	idx := len(m.Calls) - 1
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	return m.Replies[idx], nil
}
