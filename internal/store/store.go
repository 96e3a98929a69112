// Package store persists conversations as a single JSON document with
// whole-file atomic rewrites. A derived SQLite FTS index provides full-text
// search; it is rebuilt from the document on open and is never the source
// of truth.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nightjar/internal/llm"
)

// ErrNotFound is returned when a conversation ID does not exist.
var ErrNotFound = errors.New("conversation not found")

// DefaultTitle is the placeholder title a conversation carries until title
// generation or the user names it.
const DefaultTitle = "New conversation"

// Conversation is a stored chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one committed turn. Reasoning and ToolUses are present only on
// assistant messages that used them; once committed they are immutable.
type Message struct {
	Role      llm.Role           `json:"role"`
	Content   string             `json:"content"`
	Reasoning []ReasoningSegment `json:"reasoning,omitempty"`
	ToolUses  []ToolUse          `json:"tool_uses,omitempty"`
}

// ReasoningSegment is one extended-reasoning block in the order it streamed.
// The signature is kept so the segment can be replayed verbatim on requests
// that carry tools.
type ReasoningSegment struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ToolUse records one tool invocation made while producing a message.
type ToolUse struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Summary is a lightweight view of a conversation for listing.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SearchHit is one full-text match inside a stored conversation.
type SearchHit struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	MessageIndex   int    `json:"message_index"`
	Snippet        string `json:"snippet"`
}

// document is the on-disk shape of conversations.json.
type document struct {
	Conversations []*Conversation `json:"conversations"`
}

// Store owns the conversation document. All access goes through its mutex;
// Update is the only write path, so concurrent writers always operate on the
// freshly loaded state (read-then-write, never field-level patches).
type Store struct {
	mu    sync.Mutex
	path  string
	doc   document
	index *searchIndex
}

// DefaultDir returns the data directory for conversation storage.
func DefaultDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "nightjar"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "nightjar"), nil
}

// Open loads (or creates) the conversation document in dir and brings the
// search index in sync with it. A broken search index degrades search but
// never blocks conversation access.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &Store{path: filepath.Join(dir, "conversations.json")}
	if err := s.load(); err != nil {
		return nil, err
	}

	index, err := openSearchIndex(filepath.Join(dir, "search.db"))
	if err != nil {
		log.Warn().Err(err).Msg("conversation search unavailable")
		return s, nil
	}
	if err := index.rebuild(s.doc.Conversations); err != nil {
		log.Warn().Err(err).Msg("search index rebuild failed")
		index.close()
		return s, nil
	}
	s.index = index
	return s, nil
}

// Close releases the search index. The document itself needs no teardown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.close()
	s.index = nil
	return err
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read conversations: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return fmt.Errorf("parse conversations: %w", err)
	}
	return nil
}

// persistLocked rewrites the whole document atomically: marshal, write to a
// temp file in the same directory, rename over the old file.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize conversations: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".conversations-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write conversations: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace conversations: %w", err)
	}
	return nil
}

func (s *Store) findLocked(id string) (*Conversation, bool) {
	for _, c := range s.doc.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// List returns summaries of all conversations, most recently updated first.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]Summary, 0, len(s.doc.Conversations))
	for _, c := range s.doc.Conversations {
		summaries = append(summaries, Summary{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: len(c.Messages),
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries
}

// Create adds a new empty conversation and persists the document.
func (s *Store) Create(title string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.doc.Conversations = append(s.doc.Conversations, conv)
	if err := s.persistLocked(); err != nil {
		s.doc.Conversations = s.doc.Conversations[:len(s.doc.Conversations)-1]
		return nil, err
	}
	s.syncIndexLocked(conv)
	return conv.clone(), nil
}

// Get returns a copy of the conversation. Mutating the copy has no effect on
// stored state; all writes go through Update.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.findLocked(id)
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return conv.clone(), nil
}

// Update applies mutate to the current stored state of the conversation and
// persists the result. The mutator sees a fresh copy read under the store
// lock, so a well-behaved mutator that touches only the fields it owns will
// not clobber a concurrent writer's fields. A mutator error leaves the
// document untouched.
func (s *Store) Update(id string, mutate func(*Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.findLocked(id)
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	updated := conv.clone()
	if err := mutate(updated); err != nil {
		return err
	}
	updated.ID = conv.ID

	for i, c := range s.doc.Conversations {
		if c.ID == id {
			s.doc.Conversations[i] = updated
			break
		}
	}
	if err := s.persistLocked(); err != nil {
		for i, c := range s.doc.Conversations {
			if c.ID == id {
				s.doc.Conversations[i] = conv
				break
			}
		}
		return err
	}
	s.syncIndexLocked(updated)
	return nil
}

// Delete removes the conversation and persists the document.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, c := range s.doc.Conversations {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	removed := s.doc.Conversations[idx]
	s.doc.Conversations = append(s.doc.Conversations[:idx], s.doc.Conversations[idx+1:]...)
	if err := s.persistLocked(); err != nil {
		s.doc.Conversations = append(s.doc.Conversations, nil)
		copy(s.doc.Conversations[idx+1:], s.doc.Conversations[idx:])
		s.doc.Conversations[idx] = removed
		return err
	}
	if s.index != nil {
		if err := s.index.remove(id); err != nil {
			log.Warn().Err(err).Str("conversation", id).Msg("search index remove failed")
		}
	}
	return nil
}

// syncIndexLocked mirrors one conversation into the search index. Index
// failures are logged and otherwise ignored; the index is derived state.
func (s *Store) syncIndexLocked(conv *Conversation) {
	if s.index == nil {
		return
	}
	if err := s.index.sync(conv); err != nil {
		log.Warn().Err(err).Str("conversation", conv.ID).Msg("search index sync failed")
	}
}

func (c *Conversation) clone() *Conversation {
	out := *c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.clone()
		}
	}
	return &out
}

func (m Message) clone() Message {
	out := m
	if m.Reasoning != nil {
		out.Reasoning = make([]ReasoningSegment, len(m.Reasoning))
		copy(out.Reasoning, m.Reasoning)
	}
	if m.ToolUses != nil {
		out.ToolUses = make([]ToolUse, len(m.ToolUses))
		for i, t := range m.ToolUses {
			out.ToolUses[i] = ToolUse{Name: t.Name}
			if t.Input != nil {
				out.ToolUses[i].Input = append(json.RawMessage(nil), t.Input...)
			}
		}
	}
	return out
}
