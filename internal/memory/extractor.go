package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/domain/repositories"
)

const (
	// Utterances shorter than this carry too little signal to mine.
	minUtteranceRunes = 12

	// Confidence assigned when the model omits one.
	defaultConfidence = 0.7

	extractionInstruction = `You extract up to 3 JSON facts from a user/assistant exchange. Respond ONLY with JSON: {"facts":[{"key":"string","value":string|object,"confidence":0-1}]}.`
)

// Extractor mines long-term facts from a completed turn. It is strictly
// best-effort: every failure is logged and swallowed, and it never
// blocks or affects turn completion.
type Extractor struct {
	llm    repositories.LargeLanguageModel
	store  repositories.Store
	cache  *FactCache
	logger *zap.Logger
}

func NewExtractor(llm repositories.LargeLanguageModel, store repositories.Store, cache *FactCache, logger *zap.Logger) *Extractor {
	return &Extractor{llm: llm, store: store, cache: cache, logger: logger}
}

type extractedFact struct {
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
	Confidence *float64    `json:"confidence"`
}

type extractionResponse struct {
	Facts []extractedFact `json:"facts"`
}

// ExtractTurn asks the model for facts in the exchange and upserts
// them, then refreshes the cache.
func (e *Extractor) ExtractTurn(ctx context.Context, userText, assistantText string) {
	if len([]rune(userText)) < minUtteranceRunes {
		return
	}

	messages := []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: extractionInstruction},
		{Role: repositories.UserRole, Content: fmt.Sprintf("User said: %q\nAssistant replied: %q", userText, assistantText)},
	}

	raw, err := e.llm.Chat(ctx, messages)
	if err != nil {
		e.logger.Warn("Memory extraction skipped", zap.Error(err))
		return
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		e.logger.Warn("Memory extraction returned non-JSON payload", zap.Error(err))
		return
	}

	updated := 0
	for _, f := range parsed.Facts {
		if f.Key == "" || f.Value == nil {
			continue
		}
		confidence := defaultConfidence
		if f.Confidence != nil {
			confidence = *f.Confidence
		}

		fact := &entities.PersonalityFact{Key: f.Key, Value: f.Value, Confidence: confidence}
		if err := fact.Validate(); err != nil {
			e.logger.Warn("Discarding invalid extracted fact", zap.String("key", f.Key), zap.Error(err))
			continue
		}
		if err := e.store.UpdatePersonality(ctx, fact); err != nil {
			e.logger.Warn("Failed to persist extracted fact", zap.String("key", f.Key), zap.Error(err))
			continue
		}
		updated++
	}

	if updated > 0 {
		if err := e.cache.Refresh(ctx); err != nil {
			e.logger.Warn("Failed to refresh fact cache after extraction", zap.Error(err))
		}
		e.logger.Info("Extracted personality facts", zap.Int("count", updated))
	}
}
