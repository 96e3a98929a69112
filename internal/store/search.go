package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// searchIndex is a derived SQLite FTS5 index over message text. It lives
// next to the JSON document and is rebuilt from it on open, so it can be
// deleted at any time without losing data.
type searchIndex struct {
	db *sql.DB
}

const searchSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
    conversation_id UNINDEXED,
    title UNINDEXED,
    seq UNINDEXED,
    role UNINDEXED,
    content
);
`

func openSearchIndex(path string) (*searchIndex, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	if _, err := db.Exec(searchSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize search schema: %w", err)
	}
	return &searchIndex{db: db}, nil
}

func (x *searchIndex) close() error {
	return x.db.Close()
}

// rebuild drops all rows and re-indexes every conversation.
func (x *searchIndex) rebuild(convs []*Conversation) error {
	if _, err := x.db.Exec(`DELETE FROM conversations_fts`); err != nil {
		return fmt.Errorf("clear search index: %w", err)
	}
	for _, c := range convs {
		if err := x.sync(c); err != nil {
			return err
		}
	}
	return nil
}

// sync replaces the indexed rows for one conversation with its current
// messages.
func (x *searchIndex) sync(conv *Conversation) error {
	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("begin index sync: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM conversations_fts WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clear conversation rows: %w", err)
	}
	for i, m := range conv.Messages {
		if m.Content == "" {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO conversations_fts (conversation_id, title, seq, role, content)
			VALUES (?, ?, ?, ?, ?)`,
			conv.ID, conv.Title, i, string(m.Role), m.Content)
		if err != nil {
			return fmt.Errorf("index message: %w", err)
		}
	}
	return tx.Commit()
}

func (x *searchIndex) remove(conversationID string) error {
	_, err := x.db.Exec(`DELETE FROM conversations_fts WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("remove conversation rows: %w", err)
	}
	return nil
}

// Search runs a full-text query over message content and returns matches
// ranked by relevance. limit 0 means the default of 20.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	s.mu.Lock()
	index := s.index
	s.mu.Unlock()

	if index == nil {
		return nil, fmt.Errorf("search index unavailable")
	}
	if limit == 0 {
		limit = 20
	}

	rows, err := index.db.QueryContext(ctx, `
		SELECT conversation_id, title, seq, snippet(conversations_fts, 4, '**', '**', '...', 32)
		FROM conversations_fts
		WHERE conversations_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ConversationID, &h.Title, &h.MessageIndex, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
