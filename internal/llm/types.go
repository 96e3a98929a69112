package llm

import (
	"encoding/json"
	"time"
)

// Role identifies a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Part represents a single content part. Reasoning parts carry the
// endpoint's integrity signature; a reasoning part replayed without its
// signature is rejected.
type Part struct {
	Type PartType

	Text string

	Reasoning string
	Signature string

	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the output from executing a tool call, tagged with the
// call it answers.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

// StopReason is the endpoint's terminal classification for a turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Request represents a single model turn.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolSpec

	MaxTokens int
	// ThinkingBudget enables extended reasoning when positive. A request
	// carrying both tools and a budget goes through the interleaved
	// thinking surface; the endpoint rejects the combination otherwise.
	ThinkingBudget int
}

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventReasoningDone  EventType = "reasoning_done"
	EventToolCall       EventType = "tool_call"
	EventRetry          EventType = "retry"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event represents a streamed output update. Reasoning events carry the
// zero-based ordinal of the reasoning segment they extend; a turn with
// interleaved thinking produces several segments.
type Event struct {
	Type      EventType
	Text      string
	Segment   int
	Signature string
	Tool      *ToolCall
	Stop      StopReason
	Usage     *Usage
	Err       error

	RetryAttempt int
	RetryWait    time.Duration
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func UserText(text string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ReasoningPart(text, signature string) Part {
	return Part{Type: PartReasoning, Reasoning: text, Signature: signature}
}

func ToolCallPart(call ToolCall) Part {
	c := call
	return Part{Type: PartToolCall, ToolCall: &c}
}

// ToolResultsMessage bundles every result of one tool round into a
// single user turn, preserving result order.
func ToolResultsMessage(results []ToolResult) Message {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		res := r
		parts = append(parts, Part{Type: PartToolResult, ToolResult: &res})
	}
	return Message{Role: RoleUser, Parts: parts}
}
