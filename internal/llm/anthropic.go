package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"golang.org/x/time/rate"
)

// interleavedThinkingBeta lets thinking blocks appear between tool
// calls. The endpoint rejects a request that carries both tools and a
// thinking budget without this beta.
const interleavedThinkingBeta anthropic.AnthropicBeta = "interleaved-thinking-2025-05-14"

// ErrNoCredential is returned before any network activity when the
// client was built without an API key.
var ErrNoCredential = fmt.Errorf("llm: no API key configured")

// Client talks to the Anthropic Messages API. It is a plain value with
// no global state: callers construct a fresh Client whenever the
// credential changes and wire it through explicitly.
type Client struct {
	inner   anthropic.Client
	limiter *rate.Limiter
	authed  bool
}

// NewClient builds a client for the given API key. An empty key yields
// a client whose calls fail fast with ErrNoCredential.
func NewClient(apiKey string) *Client {
	return &Client{
		inner: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(2),
		),
		limiter: rate.NewLimiter(rate.Every(300*time.Millisecond), 4),
		authed:  apiKey != "",
	}
}

// Stream issues a streaming request. Requests that combine tools with a
// thinking budget go through the interleaved thinking surface; all
// others use the standard one.
func (c *Client) Stream(ctx context.Context, req Request) (Stream, error) {
	if !c.authed {
		return nil, ErrNoCredential
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if len(req.Tools) > 0 && req.ThinkingBudget > 0 {
		return c.streamInterleaved(ctx, req), nil
	}
	return c.streamStandard(ctx, req), nil
}

// Complete issues a non-streaming request and returns the concatenated
// text of the response. Used for short one-shot calls such as title
// generation.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.authed {
		return "", ErrNoCredential
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens(req.MaxTokens, 1024),
		Messages:  buildMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request error: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}

func (c *Client) streamStandard(ctx context.Context, req Request) Stream {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		accumulator := newToolCallAccumulator()
		blocks := newBlockTracker()

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(req.Model),
			MaxTokens: effectiveMaxTokens(req),
			Messages:  buildMessages(req.Messages),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}
		if req.ThinkingBudget > 0 {
			params.Thinking = anthropic.ThinkingConfigParamUnion{
				OfEnabled: &anthropic.ThinkingConfigEnabledParam{
					BudgetTokens: int64(req.ThinkingBudget),
				},
			}
		}

		var stop StopReason
		var usage *Usage

		stream := c.inner.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.InputJSONDelta:
					if delta.PartialJSON != "" {
						accumulator.Append(variant.Index, delta.PartialJSON)
					}
				case anthropic.TextDelta:
					if delta.Text != "" {
						events <- Event{Type: EventTextDelta, Text: delta.Text}
					}
				case anthropic.ThinkingDelta:
					emitReasoning(events, blocks.Segment(variant.Index), delta.Thinking, "")
				case anthropic.SignatureDelta:
					emitReasoning(events, blocks.Segment(variant.Index), "", delta.Signature)
				}
			case anthropic.ContentBlockStartEvent:
				switch block := variant.ContentBlock.AsAny().(type) {
				case anthropic.ThinkingBlock:
					blocks.StartReasoning(variant.Index)
					emitReasoning(events, blocks.Segment(variant.Index), block.Thinking, block.Signature)
				case anthropic.ToolUseBlock:
					blocks.StartTool(variant.Index)
					accumulator.Start(variant.Index, ToolCall{
						ID:        block.ID,
						Name:      block.Name,
						Arguments: toolInputToRaw(block.Input),
					})
				}
			case anthropic.ContentBlockStopEvent:
				if blocks.IsReasoning(variant.Index) {
					events <- Event{Type: EventReasoningDone, Segment: blocks.Segment(variant.Index)}
				}
				if toolCall, ok := accumulator.Finish(variant.Index); ok {
					events <- Event{Type: EventToolCall, Tool: &toolCall}
				}
			case anthropic.MessageDeltaEvent:
				if variant.Delta.StopReason != "" {
					stop = mapStopReason(string(variant.Delta.StopReason))
				}
				if variant.Usage.OutputTokens > 0 {
					usage = &Usage{
						InputTokens:  int(variant.Usage.InputTokens),
						OutputTokens: int(variant.Usage.OutputTokens),
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("anthropic streaming error: %w", err)
		}
		events <- Event{Type: EventDone, Stop: stop, Usage: usage}
		return nil
	})
}

func (c *Client) streamInterleaved(ctx context.Context, req Request) Stream {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		accumulator := newToolCallAccumulator()
		blocks := newBlockTracker()

		params := anthropic.BetaMessageNewParams{
			Model:     anthropic.Model(req.Model),
			MaxTokens: effectiveMaxTokens(req),
			Betas:     []anthropic.AnthropicBeta{interleavedThinkingBeta},
			Messages:  buildBetaMessages(req.Messages),
			Tools:     buildBetaTools(req.Tools),
			Thinking: anthropic.BetaThinkingConfigParamUnion{
				OfEnabled: &anthropic.BetaThinkingConfigEnabledParam{
					BudgetTokens: int64(req.ThinkingBudget),
				},
			},
		}
		if req.System != "" {
			params.System = []anthropic.BetaTextBlockParam{{Text: req.System}}
		}

		var stop StopReason
		var usage *Usage

		stream := c.inner.Beta.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.BetaRawContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.BetaInputJSONDelta:
					if delta.PartialJSON != "" {
						accumulator.Append(variant.Index, delta.PartialJSON)
					}
				case anthropic.BetaTextDelta:
					if delta.Text != "" {
						events <- Event{Type: EventTextDelta, Text: delta.Text}
					}
				case anthropic.BetaThinkingDelta:
					emitReasoning(events, blocks.Segment(variant.Index), delta.Thinking, "")
				case anthropic.BetaSignatureDelta:
					emitReasoning(events, blocks.Segment(variant.Index), "", delta.Signature)
				}
			case anthropic.BetaRawContentBlockStartEvent:
				switch block := variant.ContentBlock.AsAny().(type) {
				case anthropic.BetaThinkingBlock:
					blocks.StartReasoning(variant.Index)
					emitReasoning(events, blocks.Segment(variant.Index), block.Thinking, block.Signature)
				case anthropic.BetaToolUseBlock:
					blocks.StartTool(variant.Index)
					accumulator.Start(variant.Index, ToolCall{
						ID:        block.ID,
						Name:      block.Name,
						Arguments: toolInputToRaw(block.Input),
					})
				}
			case anthropic.BetaRawContentBlockStopEvent:
				if blocks.IsReasoning(variant.Index) {
					events <- Event{Type: EventReasoningDone, Segment: blocks.Segment(variant.Index)}
				}
				if toolCall, ok := accumulator.Finish(variant.Index); ok {
					events <- Event{Type: EventToolCall, Tool: &toolCall}
				}
			case anthropic.BetaRawMessageDeltaEvent:
				if variant.Delta.StopReason != "" {
					stop = mapStopReason(string(variant.Delta.StopReason))
				}
				if variant.Usage.OutputTokens > 0 {
					usage = &Usage{
						InputTokens:  int(variant.Usage.InputTokens),
						OutputTokens: int(variant.Usage.OutputTokens),
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("anthropic streaming error: %w", err)
		}
		events <- Event{Type: EventDone, Stop: stop, Usage: usage}
		return nil
	})
}

// blockTracker maps endpoint content-block indexes to reasoning
// segment ordinals so deltas can be tagged with the segment they
// extend.
type blockTracker struct {
	reasoning map[int64]int
	tools     map[int64]bool
	segments  int
}

func newBlockTracker() *blockTracker {
	return &blockTracker{
		reasoning: make(map[int64]int),
		tools:     make(map[int64]bool),
	}
}

func (b *blockTracker) StartReasoning(index int64) {
	b.reasoning[index] = b.segments
	b.segments++
}

func (b *blockTracker) StartTool(index int64) {
	b.tools[index] = true
}

func (b *blockTracker) IsReasoning(index int64) bool {
	_, ok := b.reasoning[index]
	return ok
}

func (b *blockTracker) Segment(index int64) int {
	return b.reasoning[index]
}

func emitReasoning(events chan<- Event, segment int, text, signature string) {
	if text == "" && signature == "" {
		return
	}
	events <- Event{
		Type:      EventReasoningDelta,
		Segment:   segment,
		Text:      text,
		Signature: signature,
	}
}

func mapStopReason(reason string) StopReason {
	switch reason {
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	case "end_turn", "stop_sequence":
		return StopEndTurn
	default:
		return StopReason(reason)
	}
}

func buildMessages(messages []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			blocks := buildBlocks(msg.Parts, false)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case RoleAssistant:
			blocks := buildBlocks(msg.Parts, true)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	return out
}

func buildBetaMessages(messages []Message) []anthropic.BetaMessageParam {
	var out []anthropic.BetaMessageParam
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			blocks := buildBetaBlocks(msg.Parts, false)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewBetaUserMessage(blocks...))
			}
		case RoleAssistant:
			blocks := buildBetaBlocks(msg.Parts, true)
			if len(blocks) > 0 {
				out = append(out, anthropic.BetaMessageParam{
					Role:    anthropic.BetaMessageParamRoleAssistant,
					Content: blocks,
				})
			}
		}
	}
	return out
}

func buildBlocks(parts []Part, allowToolUse bool) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case PartReasoning:
			// A reasoning block is only replayable with its signature.
			if allowToolUse && part.Signature != "" {
				blocks = append(blocks, anthropic.NewThinkingBlock(part.Signature, part.Reasoning))
			}
		case PartToolCall:
			if allowToolUse && part.ToolCall != nil {
				blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, part.ToolCall.Arguments, part.ToolCall.Name))
			}
		case PartToolResult:
			if part.ToolResult != nil {
				blocks = append(blocks, toolResultBlock(part.ToolResult))
			}
		}
	}
	return blocks
}

func buildBetaBlocks(parts []Part, allowToolUse bool) []anthropic.BetaContentBlockParamUnion {
	blocks := make([]anthropic.BetaContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewBetaTextBlock(part.Text))
			}
		case PartReasoning:
			if allowToolUse && part.Signature != "" {
				blocks = append(blocks, anthropic.NewBetaThinkingBlock(part.Signature, part.Reasoning))
			}
		case PartToolCall:
			if allowToolUse && part.ToolCall != nil {
				blocks = append(blocks, anthropic.NewBetaToolUseBlock(part.ToolCall.ID, part.ToolCall.Arguments, part.ToolCall.Name))
			}
		case PartToolResult:
			if part.ToolResult != nil {
				blocks = append(blocks, betaToolResultBlock(part.ToolResult))
			}
		}
	}
	return blocks
}

func toolResultBlock(result *ToolResult) anthropic.ContentBlockParamUnion {
	block := anthropic.ToolResultBlockParam{
		ToolUseID: result.ID,
		IsError:   anthropic.Bool(result.IsError),
		Content: []anthropic.ToolResultBlockParamContentUnion{
			{OfText: &anthropic.TextBlockParam{Text: result.Content}},
		},
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

func betaToolResultBlock(result *ToolResult) anthropic.BetaContentBlockParamUnion {
	block := anthropic.BetaToolResultBlockParam{
		ToolUseID: result.ID,
		IsError:   anthropic.Bool(result.IsError),
		Content: []anthropic.BetaToolResultBlockParamContentUnion{
			{OfText: &anthropic.BetaTextBlockParam{Text: result.Content}},
		},
	}
	return anthropic.BetaContentBlockParamUnion{OfToolResult: &block}
}

func buildTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.Schema["properties"],
			Required:   schemaRequired(spec.Schema),
		}
		tool := anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func buildBetaTools(specs []ToolSpec) []anthropic.BetaToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]anthropic.BetaToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		inputSchema := anthropic.BetaToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.Schema["properties"],
			Required:   schemaRequired(spec.Schema),
		}
		tools = append(tools, anthropic.BetaToolUnionParam{
			OfTool: &anthropic.BetaToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return tools
}

func schemaRequired(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toolInputToRaw(input any) json.RawMessage {
	switch v := input.(type) {
	case json.RawMessage:
		return v
	case []byte:
		return json.RawMessage(v)
	case string:
		return json.RawMessage(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return json.RawMessage(data)
	}
}

type toolCallAccumulator struct {
	calls    map[int64]ToolCall
	fallback map[int64]json.RawMessage
	partial  map[int64]*strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		calls:    make(map[int64]ToolCall),
		fallback: make(map[int64]json.RawMessage),
		partial:  make(map[int64]*strings.Builder),
	}
}

func (a *toolCallAccumulator) Start(index int64, call ToolCall) {
	if len(call.Arguments) > 0 {
		a.fallback[index] = call.Arguments
	}
	call.Arguments = nil
	a.calls[index] = call
}

func (a *toolCallAccumulator) Append(index int64, partial string) {
	if partial == "" {
		return
	}
	builder := a.partial[index]
	if builder == nil {
		builder = &strings.Builder{}
		a.partial[index] = builder
	}
	builder.WriteString(partial)
}

func (a *toolCallAccumulator) Finish(index int64) (ToolCall, bool) {
	call, ok := a.calls[index]
	if !ok {
		return ToolCall{}, false
	}
	if builder := a.partial[index]; builder != nil && builder.Len() > 0 {
		call.Arguments = json.RawMessage(builder.String())
	} else if fallback, ok := a.fallback[index]; ok {
		call.Arguments = fallback
	}
	delete(a.calls, index)
	delete(a.partial, index)
	delete(a.fallback, index)
	return call, true
}

// effectiveMaxTokens keeps the output ceiling above the thinking
// budget; the endpoint requires max_tokens > budget_tokens.
func effectiveMaxTokens(req Request) int64 {
	max := maxTokens(req.MaxTokens, 4096)
	if req.ThinkingBudget > 0 && max <= int64(req.ThinkingBudget) {
		max = int64(req.ThinkingBudget) + 4096
	}
	return max
}

func maxTokens(requested, fallback int) int64 {
	if requested > 0 {
		return int64(requested)
	}
	return int64(fallback)
}
