package llm

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestToolCallAccumulatorInputJSONDelta(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Start(0, ToolCall{ID: "call-1", Name: "fetch_page"})

	acc.Append(0, `{"url":"https://example`)
	acc.Append(0, `.com/page"}`)

	final, ok := acc.Finish(0)
	if !ok {
		t.Fatalf("expected tool call")
	}

	var payload map[string]string
	if err := json.Unmarshal(final.Arguments, &payload); err != nil {
		t.Fatalf("failed to unmarshal args: %v", err)
	}
	if payload["url"] != "https://example.com/page" {
		t.Fatalf("url=%q", payload["url"])
	}
}

func TestToolCallAccumulatorFallbackArgs(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Start(1, ToolCall{
		ID:        "call-2",
		Name:      "wolfram_query",
		Arguments: json.RawMessage(`{"query":"mass of the moon"}`),
	})

	final, ok := acc.Finish(1)
	if !ok {
		t.Fatalf("expected tool call")
	}

	var payload map[string]string
	if err := json.Unmarshal(final.Arguments, &payload); err != nil {
		t.Fatalf("failed to unmarshal args: %v", err)
	}
	if payload["query"] != "mass of the moon" {
		t.Fatalf("query=%q", payload["query"])
	}
}

func TestBlockTrackerSegments(t *testing.T) {
	blocks := newBlockTracker()

	blocks.StartReasoning(0)
	blocks.StartTool(1)
	blocks.StartReasoning(2)

	if got := blocks.Segment(0); got != 0 {
		t.Errorf("first reasoning block segment = %d, want 0", got)
	}
	if got := blocks.Segment(2); got != 1 {
		t.Errorf("second reasoning block segment = %d, want 1", got)
	}
	if blocks.IsReasoning(1) {
		t.Error("tool block reported as reasoning")
	}
	if !blocks.IsReasoning(2) {
		t.Error("reasoning block not tracked")
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]StopReason{
		"tool_use":      StopToolUse,
		"end_turn":      StopEndTurn,
		"stop_sequence": StopEndTurn,
		"max_tokens":    StopMaxTokens,
		"refusal":       StopReason("refusal"),
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEffectiveMaxTokens(t *testing.T) {
	if got := effectiveMaxTokens(Request{MaxTokens: 8192}); got != 8192 {
		t.Errorf("plain request max = %d, want 8192", got)
	}
	if got := effectiveMaxTokens(Request{}); got != 4096 {
		t.Errorf("default max = %d, want 4096", got)
	}
	// Ceiling must stay above the thinking budget.
	if got := effectiveMaxTokens(Request{MaxTokens: 8192, ThinkingBudget: 8192}); got != 8192+4096 {
		t.Errorf("budget-adjusted max = %d, want %d", got, 8192+4096)
	}
	if got := effectiveMaxTokens(Request{MaxTokens: 16384, ThinkingBudget: 8192}); got != 16384 {
		t.Errorf("sufficient max adjusted to %d, want 16384", got)
	}
}

func TestSchemaRequired(t *testing.T) {
	schema := map[string]interface{}{
		"required": []interface{}{"url", 42, "query"},
	}
	got := schemaRequired(schema)
	if len(got) != 2 || got[0] != "url" || got[1] != "query" {
		t.Errorf("schemaRequired = %v, want [url query]", got)
	}
	if schemaRequired(map[string]interface{}{}) != nil {
		t.Error("missing required should yield nil")
	}
}

func TestBuildMessagesReplaysSignedReasoningOnly(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, Parts: []Part{
			ReasoningPart("unsigned thoughts", ""),
			ReasoningPart("signed thoughts", "sig-abc"),
			TextPart("the answer"),
		}},
	}
	out := buildMessages(msgs)
	if len(out) != 1 {
		t.Fatalf("messages = %d, want 1", len(out))
	}
	if out[0].Role != anthropic.MessageParamRoleAssistant {
		t.Fatalf("role = %v, want assistant", out[0].Role)
	}
	var thinking, text int
	for _, block := range out[0].Content {
		if block.OfThinking != nil {
			thinking++
		}
		if block.OfText != nil {
			text++
		}
	}
	if thinking != 1 {
		t.Errorf("thinking blocks = %d, want 1 (unsigned block must be dropped)", thinking)
	}
	if text != 1 {
		t.Errorf("text blocks = %d, want 1", text)
	}
}

func TestBuildMessagesToolRound(t *testing.T) {
	call := ToolCall{ID: "call-9", Name: "fetch_page", Arguments: json.RawMessage(`{"url":"https://x.test"}`)}
	msgs := []Message{
		UserText("look this up"),
		{Role: RoleAssistant, Parts: []Part{
			TextPart("let me check"),
			ToolCallPart(call),
		}},
		ToolResultsMessage([]ToolResult{
			{ID: "call-9", Name: "fetch_page", Content: "page text"},
		}),
	}
	out := buildMessages(msgs)
	if len(out) != 3 {
		t.Fatalf("messages = %d, want 3", len(out))
	}
	if out[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("turn 1 role = %v, want assistant", out[1].Role)
	}
	var toolUse int
	for _, block := range out[1].Content {
		if block.OfToolUse != nil {
			toolUse++
		}
	}
	if toolUse != 1 {
		t.Errorf("tool_use blocks = %d, want 1", toolUse)
	}
	// Tool results ride a user-role turn, one block per result.
	if out[2].Role != anthropic.MessageParamRoleUser {
		t.Errorf("result turn role = %v, want user", out[2].Role)
	}
	if len(out[2].Content) != 1 || out[2].Content[0].OfToolResult == nil {
		t.Errorf("result turn content = %+v, want one tool_result block", out[2].Content)
	}
	if got := out[2].Content[0].OfToolResult.ToolUseID; got != "call-9" {
		t.Errorf("tool_use_id = %q, want call-9", got)
	}
}
