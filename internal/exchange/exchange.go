// Package exchange drives one logical conversation turn against the
// inference endpoint: request assembly from the catalog and settings, the
// streamed tool-use loop, and the commit of the final message. At most one
// exchange runs per conversation; further Conduct and Regenerate calls
// queue on a per-conversation lock.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nightjar/internal/catalog"
	"nightjar/internal/llm"
	"nightjar/internal/settings"
	"nightjar/internal/store"
	"nightjar/internal/tools"
)

// ErrBusy is returned by Edit while an exchange holds the conversation.
// Edits target history the in-flight turn is about to extend, so they are
// refused rather than queued; Conduct and Regenerate queue.
var ErrBusy = errors.New("conversation busy")

// Config is the orchestrator's runtime configuration. The serve loop
// rebuilds it when settings change, so a credential edit takes effect on
// the next turn without restarting.
type Config struct {
	Client   llm.Streamer
	Settings *settings.Settings
}

// Orchestrator conducts exchanges against the endpoint and owns the only
// code path that creates assistant messages.
type Orchestrator struct {
	store    *store.Store
	registry *tools.Registry

	mu  sync.Mutex
	cfg Config

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	bg sync.WaitGroup
}

func New(st *store.Store, registry *tools.Registry, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		cfg:      cfg,
		locks:    make(map[string]chan struct{}),
	}
}

// Reconfigure swaps the endpoint client and settings snapshot. Turns
// already in flight keep the configuration they started with.
func (o *Orchestrator) Reconfigure(cfg Config) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

func (o *Orchestrator) snapshot() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// Wait blocks until background work (title generation) has finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

// Conduct runs one full turn: it appends userText as a user message,
// streams the assistant's answer (executing requested tools along the way)
// and commits both messages together. On failure nothing is persisted, so
// a failed turn never leaves a user message without a response.
func (o *Orchestrator) Conduct(ctx context.Context, conversationID, userText string, sink Sink) (*store.Message, error) {
	if sink == nil {
		sink = NopSink{}
	}
	msg, err := o.conduct(ctx, conversationID, userText, sink)
	if err != nil {
		sink.Error(err)
		return nil, err
	}
	sink.Done(msg)
	return msg, nil
}

func (o *Orchestrator) conduct(ctx context.Context, conversationID, userText string, sink Sink) (*store.Message, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, fmt.Errorf("empty message")
	}
	release, err := o.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	cfg := o.snapshot()
	if cfg.Client == nil {
		return nil, fmt.Errorf("no endpoint client configured")
	}
	conv, err := o.store.Get(conversationID)
	if err != nil {
		return nil, err
	}

	if conv.Title == "" || conv.Title == store.DefaultTitle {
		o.generateTitle(cfg, conversationID, userText)
	}

	history := append(historyMessages(conv.Messages), llm.UserText(userText))
	req := o.buildRequest(cfg.Settings, history)
	log.Debug().Str("conversation", conversationID).Str("model", req.Model).
		Int("history", len(history)).Msg("conducting exchange")

	msg, err := o.runTurn(ctx, cfg, req, sink)
	if err != nil {
		return nil, err
	}

	userMsg := store.Message{Role: llm.RoleUser, Content: userText}
	now := time.Now().UTC()
	if err := o.store.Update(conversationID, func(c *store.Conversation) error {
		c.Messages = append(c.Messages, userMsg, *msg)
		c.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, fmt.Errorf("committing exchange: %w", err)
	}
	return msg, nil
}

// Regenerate discards messages from fromIndex on and re-issues the turn
// for the user message at fromIndex-1. The truncation is committed before
// the endpoint call and kept even if the turn fails.
func (o *Orchestrator) Regenerate(ctx context.Context, conversationID string, fromIndex int, sink Sink) (*store.Message, error) {
	if sink == nil {
		sink = NopSink{}
	}
	msg, err := o.regenerate(ctx, conversationID, fromIndex, sink)
	if err != nil {
		sink.Error(err)
		return nil, err
	}
	sink.Done(msg)
	return msg, nil
}

func (o *Orchestrator) regenerate(ctx context.Context, conversationID string, fromIndex int, sink Sink) (*store.Message, error) {
	release, err := o.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	cfg := o.snapshot()
	if cfg.Client == nil {
		return nil, fmt.Errorf("no endpoint client configured")
	}
	conv, err := o.store.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if fromIndex < 1 || fromIndex > len(conv.Messages) {
		return nil, fmt.Errorf("message index %d out of range", fromIndex)
	}
	trimmed := conv.Messages[:fromIndex]
	if trimmed[fromIndex-1].Role != llm.RoleUser {
		return nil, fmt.Errorf("regeneration must start after a user message")
	}

	if fromIndex < len(conv.Messages) {
		if err := o.store.Update(conversationID, func(c *store.Conversation) error {
			if fromIndex > len(c.Messages) {
				return fmt.Errorf("message index %d out of range", fromIndex)
			}
			c.Messages = c.Messages[:fromIndex]
			c.UpdatedAt = time.Now().UTC()
			return nil
		}); err != nil {
			return nil, fmt.Errorf("truncating conversation: %w", err)
		}
	}

	req := o.buildRequest(cfg.Settings, historyMessages(trimmed))
	log.Debug().Str("conversation", conversationID).Int("from", fromIndex).Msg("regenerating")

	msg, err := o.runTurn(ctx, cfg, req, sink)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := o.store.Update(conversationID, func(c *store.Conversation) error {
		c.Messages = append(c.Messages, *msg)
		c.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, fmt.Errorf("committing exchange: %w", err)
	}
	return msg, nil
}

// Edit replaces the user message at index with newText and discards
// everything after it, without contacting the endpoint. It refuses with
// ErrBusy while an exchange is in flight.
func (o *Orchestrator) Edit(ctx context.Context, conversationID string, index int, newText string) (*store.Conversation, error) {
	if strings.TrimSpace(newText) == "" {
		return nil, fmt.Errorf("empty message")
	}
	release, ok := o.tryAcquire(conversationID)
	if !ok {
		return nil, ErrBusy
	}
	defer release()

	now := time.Now().UTC()
	if err := o.store.Update(conversationID, func(c *store.Conversation) error {
		if index < 0 || index >= len(c.Messages) {
			return fmt.Errorf("message index %d out of range", index)
		}
		if c.Messages[index].Role != llm.RoleUser {
			return fmt.Errorf("only user messages can be edited")
		}
		c.Messages = c.Messages[:index+1]
		c.Messages[index] = store.Message{Role: llm.RoleUser, Content: newText}
		c.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, err
	}
	return o.store.Get(conversationID)
}

// generateTitle names a still-placeholder conversation from its opening
// message, concurrently with the main exchange. The title is written
// through its own narrow mutator so it merges cleanly with the exchange
// commit racing on the same record.
func (o *Orchestrator) generateTitle(cfg Config, conversationID, userText string) {
	s := cfg.Settings
	if s == nil {
		s = &settings.Settings{}
	}
	mode := catalog.ResolveMode(s.Mode)

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		raw, err := cfg.Client.Complete(ctx, llm.Request{
			Model:     mode.Model,
			System:    titleInstruction,
			MaxTokens: 50,
			Messages:  []llm.Message{llm.UserText(userText)},
		})
		if err != nil {
			log.Warn().Err(err).Msg("title generation failed")
			return
		}
		title := cleanTitle(raw)
		if title == "" {
			return
		}
		if err := o.store.Update(conversationID, func(c *store.Conversation) error {
			if c.Title != "" && c.Title != store.DefaultTitle {
				return nil
			}
			c.Title = title
			return nil
		}); err != nil {
			log.Warn().Err(err).Msg("saving generated title failed")
		}
	}()
}

func (o *Orchestrator) buildRequest(s *settings.Settings, history []llm.Message) llm.Request {
	if s == nil {
		s = &settings.Settings{}
	}
	mode := catalog.ResolveMode(s.Mode)
	effective := catalog.EffectiveToggles(s.Toggles, s.Debug)
	toolNames := catalog.ActiveTools(effective)

	budget := s.ThinkingBudget
	if budget <= 0 {
		budget = mode.ReasoningBudget
	}
	if !mode.Reasoning {
		budget = 0
	}

	var diagnostics string
	for _, t := range effective {
		if t.Debug {
			diagnostics = diagnosticsFragment(mode, s.ThinkingBudget, budget, effective, toolNames)
			break
		}
	}

	return llm.Request{
		Model:          mode.Model,
		System:         systemPrompt(mode, effective, diagnostics),
		Messages:       history,
		Tools:          o.registry.Specs(toolNames...),
		MaxTokens:      mode.MaxTokens,
		ThinkingBudget: budget,
	}
}

// historyMessages replays committed turns as plain text. Reasoning and
// tool blocks are only replayed within the turn that produced them, never
// across turns.
func historyMessages(messages []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case llm.RoleUser:
			out = append(out, llm.UserText(m.Content))
		case llm.RoleAssistant:
			out = append(out, llm.AssistantText(m.Content))
		}
	}
	return out
}

func (o *Orchestrator) lockFor(id string) chan struct{} {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		o.locks[id] = l
	}
	return l
}

func (o *Orchestrator) acquire(ctx context.Context, id string) (func(), error) {
	l := o.lockFor(id)
	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) tryAcquire(id string) (func(), bool) {
	l := o.lockFor(id)
	select {
	case l <- struct{}{}:
		return func() { <-l }, true
	default:
		return nil, false
	}
}
