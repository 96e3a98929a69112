package render

import (
	"html"
	"strings"
)

// MessageRenderer accumulates one streaming assistant turn and renders the
// whole fragment after every delta: reasoning sections in segment order,
// then tool-use chips, then the markdown body.
type MessageRenderer struct {
	text          strings.Builder
	reasoning     []*strings.Builder
	tools         []string
	showReasoning bool
	done          bool
	final         string
}

// NewMessageRenderer creates a renderer for one turn. showReasoning controls
// whether reasoning sections start expanded.
func NewMessageRenderer(showReasoning bool) *MessageRenderer {
	return &MessageRenderer{showReasoning: showReasoning}
}

// AppendText adds a streamed text delta.
func (r *MessageRenderer) AppendText(delta string) {
	if r.done {
		return
	}
	r.text.WriteString(delta)
}

// AppendReasoning adds a delta to the reasoning segment with the given
// ordinal. Segment ordinals arrive in order, interleaved with text and tool
// use.
func (r *MessageRenderer) AppendReasoning(segment int, delta string) {
	if r.done || segment < 0 {
		return
	}
	for len(r.reasoning) <= segment {
		r.reasoning = append(r.reasoning, &strings.Builder{})
	}
	r.reasoning[segment].WriteString(delta)
}

// NoteToolUse records a tool invocation chip.
func (r *MessageRenderer) NoteToolUse(name string) {
	if r.done {
		return
	}
	r.tools = append(r.tools, name)
}

// Text returns the raw accumulated body text.
func (r *MessageRenderer) Text() string {
	return r.text.String()
}

// Snapshot renders the current accumulated state.
func (r *MessageRenderer) Snapshot() string {
	if r.done {
		return r.final
	}
	return r.compose(transform(r.text.String(), false))
}

// Finalize runs the authoritative pass and freezes the renderer. Further
// Snapshot or Finalize calls return the same fragment, and for input whose
// blocks all closed it is byte-identical to the last Snapshot.
func (r *MessageRenderer) Finalize() string {
	if r.done {
		return r.final
	}
	r.final = r.compose(transform(r.text.String(), true))
	r.done = true
	return r.final
}

func (r *MessageRenderer) compose(body string) string {
	var b strings.Builder
	for _, seg := range r.reasoning {
		if seg.Len() == 0 {
			continue
		}
		b.WriteString(reasoningHTML(seg.String(), r.showReasoning))
	}
	for _, name := range r.tools {
		b.WriteString(`<div class="tool-use">` + html.EscapeString(name) + `</div>`)
	}
	b.WriteString(body)
	return Sanitize(b.String())
}

func reasoningHTML(text string, open bool) string {
	tag := `<details class="reasoning">`
	if open {
		tag = `<details class="reasoning" open>`
	}
	return tag + "<summary>Reasoning</summary><div>" +
		strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") +
		"</div></details>"
}
