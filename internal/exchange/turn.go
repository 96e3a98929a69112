package exchange

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"nightjar/internal/llm"
	"nightjar/internal/store"
)

// maxToolRounds bounds the tool-use loop. The endpoint alone decides when
// to stop requesting tools, so a misbehaving one must not spin forever;
// exceeding the bound is treated as an endpoint error.
const maxToolRounds = 12

// segmentBuf accumulates one reasoning segment and its integrity
// signature as they stream in.
type segmentBuf struct {
	text      strings.Builder
	signature strings.Builder
}

// turnState is the transient state of one logical turn across all its
// rounds. It is dropped on commit or failure.
type turnState struct {
	text     strings.Builder
	segments []*segmentBuf
	toolUses []store.ToolUse
}

func (st *turnState) segment(i int) *segmentBuf {
	for len(st.segments) <= i {
		st.segments = append(st.segments, &segmentBuf{})
	}
	return st.segments[i]
}

// message builds the committed form of the turn. Empty reasoning segments
// are dropped; reasoning and tool lists are omitted entirely when unused.
func (st *turnState) message() store.Message {
	msg := store.Message{Role: llm.RoleAssistant, Content: st.text.String()}
	for _, seg := range st.segments {
		if seg.text.Len() == 0 {
			continue
		}
		msg.Reasoning = append(msg.Reasoning, store.ReasoningSegment{
			Text:      seg.text.String(),
			Signature: seg.signature.String(),
		})
	}
	if len(st.toolUses) > 0 {
		msg.ToolUses = append([]store.ToolUse(nil), st.toolUses...)
	}
	return msg
}

type roundResult struct {
	text  string
	calls []llm.ToolCall
	stop  llm.StopReason
}

// runTurn streams rounds until the endpoint stops requesting tools, then
// returns the built message. Each tool round replays the assistant's
// partial turn (reasoning blocks with their signatures, text, tool calls)
// and answers with a single user turn carrying every result.
func (o *Orchestrator) runTurn(ctx context.Context, cfg Config, req llm.Request, sink Sink) (*store.Message, error) {
	st := &turnState{}
	for round := 0; round < maxToolRounds; round++ {
		base := len(st.segments)
		res, err := o.streamRound(ctx, cfg.Client, req, sink, st, base)
		if err != nil {
			return nil, err
		}

		if res.stop == llm.StopToolUse && len(res.calls) > 0 {
			req.Messages = append(req.Messages, assistantPartialMessage(st.segments[base:], res.text, res.calls))
			req.Messages = append(req.Messages, llm.ToolResultsMessage(o.executeCalls(ctx, res.calls, st)))
			continue
		}

		msg := st.message()
		return &msg, nil
	}
	return nil, fmt.Errorf("endpoint requested tool use %d rounds in a row; giving up", maxToolRounds)
}

// streamRound consumes one physical request's event stream in arrival
// order, forwarding to the sink as it goes. base offsets this round's
// segment ordinals so they stay unique across rounds.
func (o *Orchestrator) streamRound(ctx context.Context, client llm.Streamer, req llm.Request, sink Sink, st *turnState, base int) (roundResult, error) {
	stream, err := client.Stream(ctx, req)
	if err != nil {
		return roundResult{}, err
	}
	defer stream.Close()

	var res roundResult
	var text strings.Builder
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return roundResult{}, err
		}

		switch event.Type {
		case llm.EventTextDelta:
			text.WriteString(event.Text)
			st.text.WriteString(event.Text)
			sink.TextDelta(event.Text)
		case llm.EventReasoningDelta:
			seg := st.segment(base + event.Segment)
			seg.text.WriteString(event.Text)
			seg.signature.WriteString(event.Signature)
			if event.Text != "" {
				sink.ReasoningDelta(base+event.Segment, event.Text)
			}
		case llm.EventToolCall:
			if event.Tool != nil {
				res.calls = append(res.calls, *event.Tool)
				sink.ToolUse(event.Tool.Name, event.Tool.Arguments)
			}
		case llm.EventRetry:
			log.Debug().Int("attempt", event.RetryAttempt).
				Dur("wait", event.RetryWait).Msg("endpoint retry")
		case llm.EventDone:
			res.stop = event.Stop
			if event.Usage != nil {
				log.Debug().Int("input_tokens", event.Usage.InputTokens).
					Int("output_tokens", event.Usage.OutputTokens).Msg("turn usage")
			}
		case llm.EventError:
			if event.Err != nil {
				return roundResult{}, event.Err
			}
		}
	}

	res.text = text.String()
	return res, nil
}

// executeCalls runs every pending call in the order received. Failures
// come back as text results the model can read; they never abort the turn.
func (o *Orchestrator) executeCalls(ctx context.Context, calls []llm.ToolCall, st *turnState) []llm.ToolResult {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		content, isError := o.registry.Run(ctx, call.Name, call.Arguments)
		results = append(results, llm.ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Content: content,
			IsError: isError,
		})
		st.toolUses = append(st.toolUses, store.ToolUse{Name: call.Name, Input: call.Arguments})
		log.Debug().Str("tool", call.Name).Bool("error", isError).Msg("tool executed")
	}
	return results
}

// assistantPartialMessage rebuilds the assistant's partial turn for the
// continuation request. Reasoning blocks replay only with their signature.
func assistantPartialMessage(segments []*segmentBuf, text string, calls []llm.ToolCall) llm.Message {
	var parts []llm.Part
	for _, seg := range segments {
		if seg.signature.Len() == 0 {
			continue
		}
		parts = append(parts, llm.ReasoningPart(seg.text.String(), seg.signature.String()))
	}
	if text != "" {
		parts = append(parts, llm.TextPart(text))
	}
	for _, call := range calls {
		parts = append(parts, llm.ToolCallPart(call))
	}
	return llm.Message{Role: llm.RoleAssistant, Parts: parts}
}
