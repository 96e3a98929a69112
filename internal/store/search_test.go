package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nightjar/internal/llm"
)

func TestSearchFindsCommittedText(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	conv, err := s.Create("Physics questions")
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	err = s.Update(conv.ID, func(c *Conversation) error {
		c.Messages = append(c.Messages,
			Message{Role: llm.RoleUser, Content: "explain the quantum harmonic oscillator"},
			Message{Role: llm.RoleAssistant, Content: "The oscillator has evenly spaced energy levels."})
		return nil
	})
	if err != nil {
		t.Fatalf("failed to update conversation: %v", err)
	}

	hits, err := s.Search(ctx, "oscillator", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.ConversationID != conv.ID {
			t.Errorf("expected hit in conversation %s, got %s", conv.ID, h.ConversationID)
		}
		if h.Title != "Physics questions" {
			t.Errorf("expected conversation title on hit, got %q", h.Title)
		}
		if !strings.Contains(h.Snippet, "**oscillator**") {
			t.Errorf("expected highlighted snippet, got %q", h.Snippet)
		}
	}

	hits, err = s.Search(ctx, "nonexistentterm", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	conv, err := s.Create("Repetitive")
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	err = s.Update(conv.ID, func(c *Conversation) error {
		for i := 0; i < 5; i++ {
			c.Messages = append(c.Messages, Message{Role: llm.RoleUser, Content: "tell me about zebras"})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to update conversation: %v", err)
	}

	hits, err := s.Search(ctx, "zebras", 2)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits with limit 2, got %d", len(hits))
	}
}

func TestSearchExcludesDeletedConversations(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	conv, err := s.Create("Short lived")
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	err = s.Update(conv.ID, func(c *Conversation) error {
		c.Messages = append(c.Messages, Message{Role: llm.RoleUser, Content: "uniquesearchterm"})
		return nil
	})
	if err != nil {
		t.Fatalf("failed to update conversation: %v", err)
	}
	if err := s.Delete(conv.ID); err != nil {
		t.Fatalf("failed to delete conversation: %v", err)
	}

	hits, err := s.Search(ctx, "uniquesearchterm", 0)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits after delete, got %d", len(hits))
	}
}

func TestSearchIndexRebuiltAfterRemoval(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	conv, err := s.Create("Durable")
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	err = s.Update(conv.ID, func(c *Conversation) error {
		c.Messages = append(c.Messages, Message{Role: llm.RoleAssistant, Content: "the capital of austria is vienna"})
		return nil
	})
	if err != nil {
		t.Fatalf("failed to update conversation: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// The index is derived state: deleting it must not lose anything.
	if err := os.Remove(filepath.Join(dir, "search.db")); err != nil {
		t.Fatalf("failed to remove search index: %v", err)
	}
	os.Remove(filepath.Join(dir, "search.db-wal"))
	os.Remove(filepath.Join(dir, "search.db-shm"))

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	hits, err := reopened.Search(context.Background(), "vienna", 0)
	if err != nil {
		t.Fatalf("failed to search after rebuild: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit after rebuild, got %d", len(hits))
	}
	if hits[0].ConversationID != conv.ID {
		t.Errorf("expected hit in conversation %s, got %s", conv.ID, hits[0].ConversationID)
	}
	if hits[0].MessageIndex != 0 {
		t.Errorf("expected hit at message index 0, got %d", hits[0].MessageIndex)
	}
}
