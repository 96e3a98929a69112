package render

import (
	"strings"
	"testing"
)

func TestMessageRendererEmpty(t *testing.T) {
	r := NewMessageRenderer(true)
	if got := r.Snapshot(); got != "" {
		t.Errorf("expected empty snapshot, got %q", got)
	}
	if got := r.Finalize(); got != "" {
		t.Errorf("expected empty final fragment, got %q", got)
	}
}

func TestMessageRendererComposition(t *testing.T) {
	r := NewMessageRenderer(true)
	r.AppendReasoning(0, "first I considered alpha")
	r.AppendReasoning(1, "then beta")
	r.NoteToolUse("fetch_page")
	r.AppendText("body here")

	got := r.Snapshot()
	if !strings.Contains(got, `<details class="reasoning" open`) {
		t.Errorf("expected expanded reasoning sections, got %q", got)
	}
	if strings.Count(got, "<details") != 2 {
		t.Errorf("expected two reasoning sections, got %q", got)
	}
	if !strings.Contains(got, `<div class="tool-use">fetch_page</div>`) {
		t.Errorf("expected tool chip, got %q", got)
	}
	if !strings.Contains(got, "<p>body here</p>") {
		t.Errorf("expected body paragraph, got %q", got)
	}

	alpha := strings.Index(got, "alpha")
	beta := strings.Index(got, "beta")
	chip := strings.Index(got, "tool-use")
	body := strings.Index(got, "body here")
	if alpha < 0 || beta < 0 || chip < 0 || body < 0 {
		t.Fatalf("missing parts in %q", got)
	}
	if !(alpha < beta && beta < chip && chip < body) {
		t.Errorf("parts out of order: %q", got)
	}
}

func TestMessageRendererReasoningCollapsed(t *testing.T) {
	r := NewMessageRenderer(false)
	r.AppendReasoning(0, "hidden trace")
	r.AppendText("answer")

	got := r.Snapshot()
	if !strings.Contains(got, `<details class="reasoning">`) {
		t.Errorf("expected a collapsed reasoning section, got %q", got)
	}
	if strings.Contains(got, "open=") {
		t.Errorf("collapsed section must not carry open, got %q", got)
	}
	if !strings.Contains(got, "hidden trace") {
		t.Errorf("reasoning text must still be present, got %q", got)
	}
}

func TestMessageRendererSkipsEmptySegments(t *testing.T) {
	r := NewMessageRenderer(true)
	r.AppendReasoning(2, "only the third segment ever streamed")

	got := r.Snapshot()
	if strings.Count(got, "<details") != 1 {
		t.Errorf("expected one reasoning section, got %q", got)
	}
}

func TestMessageRendererToolNameEscaped(t *testing.T) {
	r := NewMessageRenderer(true)
	r.NoteToolUse("<script>")

	got := r.Snapshot()
	if strings.Contains(got, "<script>") {
		t.Errorf("tool name injected markup: %q", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Errorf("expected escaped tool name, got %q", got)
	}
}

func TestMessageRendererStreamedFence(t *testing.T) {
	r := NewMessageRenderer(true)
	r.AppendText("Look:\n\n```go\nfunc ma")

	mid := r.Snapshot()
	if strings.Contains(mid, "<span class=") {
		t.Errorf("open block must stay verbatim, got %q", mid)
	}
	if !strings.Contains(mid, "<code>func ma</code>") {
		t.Errorf("expected open block content, got %q", mid)
	}

	r.AppendText("in() {}\n```\n")
	closedSnap := r.Snapshot()
	if !strings.Contains(closedSnap, "<span class=") {
		t.Errorf("closed block should highlight, got %q", closedSnap)
	}

	final := r.Finalize()
	if final != closedSnap {
		t.Errorf("final fragment must match the last snapshot for closed input:\nsnapshot: %q\nfinal:    %q", closedSnap, final)
	}
}

func TestMessageRendererRetroactiveEmphasis(t *testing.T) {
	r := NewMessageRenderer(true)
	r.AppendText("**bo")
	if got := r.Snapshot(); strings.Contains(got, "<strong>") {
		t.Errorf("unterminated run rendered early: %q", got)
	}
	r.AppendText("ld**")
	if got := r.Snapshot(); !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("expected completed run, got %q", got)
	}
}

func TestMessageRendererFrozenAfterFinalize(t *testing.T) {
	r := NewMessageRenderer(true)
	r.AppendText("done")
	final := r.Finalize()

	r.AppendText(" ignored")
	r.AppendReasoning(0, "ignored")
	r.NoteToolUse("ignored")

	if got := r.Snapshot(); got != final {
		t.Errorf("snapshot changed after finalize:\nwas: %q\nnow: %q", final, got)
	}
	if got := r.Finalize(); got != final {
		t.Errorf("second finalize changed output:\nwas: %q\nnow: %q", final, got)
	}
	if r.Text() != "done" {
		t.Errorf("raw text mutated after finalize: %q", r.Text())
	}
}
