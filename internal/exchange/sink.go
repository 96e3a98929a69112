package exchange

import (
	"encoding/json"

	"nightjar/internal/store"
)

// Sink receives the presentation-side notifications of one turn, in event
// arrival order: zero or more text deltas, zero or more reasoning deltas
// tagged with their segment ordinal, zero or more tool-use notices, then
// exactly one terminal call (Done or Error).
type Sink interface {
	TextDelta(delta string)
	ReasoningDelta(segment int, delta string)
	ToolUse(name string, input json.RawMessage)
	Done(message *store.Message)
	Error(err error)
}

// NopSink discards every notification. Callers that only want the returned
// message pass it instead of nil.
type NopSink struct{}

func (NopSink) TextDelta(string) {}

func (NopSink) ReasoningDelta(int, string) {}

func (NopSink) ToolUse(string, json.RawMessage) {}

func (NopSink) Done(*store.Message) {}

func (NopSink) Error(error) {}
