package sqlite

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndReadMessages(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "Test Session")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	contents := []string{"hello there", "hi, how can I help?", "what's the weather"}
	roles := []entities.MessageRole{entities.MessageRoleUser, entities.MessageRoleAssistant, entities.MessageRoleUser}
	for i := range contents {
		msg := &entities.ConversationMessage{
			SessionID: session.ID,
			Role:      roles[i],
			Content:   contents[i],
			Metadata:  map[string]interface{}{"seq": i},
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
		if msg.ID == 0 {
			t.Error("Expected SaveMessage to backfill the row ID")
		}
	}

	messages, err := store.GetRecentContext(ctx, session.ID, 8)
	if err != nil {
		t.Fatalf("GetRecentContext failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.Content != contents[i] {
			t.Errorf("Expected chronological order, message %d is %q", i, msg.Content)
		}
	}

	// Window smaller than history keeps the most recent entries.
	window, err := store.GetRecentContext(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("GetRecentContext failed: %v", err)
	}
	if len(window) != 2 || window[0].Content != contents[1] {
		t.Errorf("Expected the last two messages, got %+v", window)
	}
}

func TestSaveMessageRejectsInvalidRole(t *testing.T) {
	store := setupStore(t)

	msg := &entities.ConversationMessage{SessionID: "s", Role: "robot", Content: "hi"}
	if err := store.SaveMessage(context.Background(), msg); err == nil {
		t.Error("Expected validation error for unknown role")
	}
}

func TestSearchConversations(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, "")
	for _, content := range []string{"I love jazz music", "Berlin is rainy", "jazz again tonight"} {
		store.SaveMessage(ctx, &entities.ConversationMessage{
			SessionID: session.ID, Role: entities.MessageRoleUser, Content: content,
		})
	}

	hits, err := store.SearchConversations(ctx, "JAZZ", "", 10)
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("Expected 2 hits, got %d", len(hits))
	}

	if hits, _ := store.SearchConversations(ctx, "   ", "", 10); hits != nil {
		t.Error("Expected nil result for blank query")
	}
}

func TestPersonalityUpsertAndOrdering(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	facts := []entities.PersonalityFact{
		{Key: "city", Value: "Berlin", Confidence: 0.5},
		{Key: "music", Value: "jazz", Confidence: 0.9},
		{Key: "hobbies", Value: []string{"chess"}, Confidence: 0.6},
	}
	for i := range facts {
		if err := store.UpdatePersonality(ctx, &facts[i]); err != nil {
			t.Fatalf("UpdatePersonality failed: %v", err)
		}
	}

	stored, err := store.GetPersonality(ctx)
	if err != nil {
		t.Fatalf("GetPersonality failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("Expected 3 facts, got %d", len(stored))
	}
	if stored[0].Key != "music" {
		t.Errorf("Expected highest confidence first, got %s", stored[0].Key)
	}

	// Upsert replaces by key.
	if err := store.UpdatePersonality(ctx, &entities.PersonalityFact{Key: "city", Value: "Lisbon", Confidence: 0.8}); err != nil {
		t.Fatalf("UpdatePersonality failed: %v", err)
	}
	stored, _ = store.GetPersonality(ctx)
	if len(stored) != 3 {
		t.Errorf("Expected upsert not to add a row, got %d facts", len(stored))
	}

	if err := store.DeletePersonality(ctx, "city"); err != nil {
		t.Fatalf("DeletePersonality failed: %v", err)
	}
	stored, _ = store.GetPersonality(ctx)
	if len(stored) != 2 {
		t.Errorf("Expected 2 facts after delete, got %d", len(stored))
	}
}

func TestPreferenceRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	missing, err := store.GetPreference(ctx, "auto_converse")
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unset preference, got %v", missing)
	}

	pref := &entities.Preference{Key: "auto_converse", Value: true, Category: "behavior"}
	if err := store.SetPreference(ctx, pref); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}

	value, err := store.GetPreference(ctx, "auto_converse")
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if enabled, ok := value.(bool); !ok || !enabled {
		t.Errorf("Expected true, got %v", value)
	}
}
