package render

import (
	"strings"
	"testing"
)

func TestEmptyInput(t *testing.T) {
	if got := ToHTML(""); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestParagraphAndEmphasis(t *testing.T) {
	got := ToHTML("Hello **world**")
	if got != "<p>Hello <strong>world</strong></p>" {
		t.Errorf("unexpected output: %q", got)
	}

	got = ToHTML("an *italic* word and ~~gone~~ text")
	if !strings.Contains(got, "<em>italic</em>") {
		t.Errorf("expected italic, got %q", got)
	}
	if !strings.Contains(got, "<del>gone</del>") {
		t.Errorf("expected strikethrough, got %q", got)
	}
}

func TestIncompleteEmphasisStaysLiteral(t *testing.T) {
	got := ToHTML("**bo")
	if strings.Contains(got, "<strong>") {
		t.Errorf("expected no strong for unterminated run, got %q", got)
	}
	if !strings.Contains(got, "**bo") {
		t.Errorf("expected literal markers, got %q", got)
	}

	// The closing delta retroactively completes the run.
	got = ToHTML("**bold**")
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("expected strong after completion, got %q", got)
	}
}

func TestSnakeCaseNotItalicized(t *testing.T) {
	got := ToHTML("use the var_with_underscores name")
	if strings.Contains(got, "<em>") {
		t.Errorf("expected no emphasis in identifiers, got %q", got)
	}
}

func TestInlineCodeProtectedFromLaterRules(t *testing.T) {
	got := ToHTML("run `go build` with `**not bold**` args")
	if !strings.Contains(got, "<code>go build</code>") {
		t.Errorf("expected inline code, got %q", got)
	}
	if !strings.Contains(got, "<code>**not bold**</code>") {
		t.Errorf("expected markers preserved inside code, got %q", got)
	}
	if strings.Contains(got, "<strong>not") {
		t.Errorf("bold rule corrupted a code span: %q", got)
	}
}

func TestFencedCodeHighlighted(t *testing.T) {
	got := ToHTML("Here:\n\n```go\nfunc main() {}\n```\n\ndone")
	if !strings.Contains(got, `<pre class="chroma">`) {
		t.Errorf("expected code block, got %q", got)
	}
	if !strings.Contains(got, `<span class=`) {
		t.Errorf("expected highlighted spans, got %q", got)
	}
	if !strings.Contains(got, "<p>Here:</p>") || !strings.Contains(got, "<p>done</p>") {
		t.Errorf("expected surrounding paragraphs, got %q", got)
	}
}

func TestFencedCodeUnknownLanguageVerbatim(t *testing.T) {
	got := ToHTML("```qqzz\nplain $ text < here\n```")
	if !strings.Contains(got, "plain $ text &lt; here") {
		t.Errorf("expected escaped verbatim source, got %q", got)
	}
}

func TestUnterminatedFenceStaysOpenBlock(t *testing.T) {
	got := ToHTML("Start\n\n```python\nimport os")
	if !strings.Contains(got, "<code>import os</code>") {
		t.Errorf("expected verbatim open block, got %q", got)
	}
	if strings.Contains(got, "<span class=") {
		t.Errorf("open block must not be highlighted yet: %q", got)
	}

	// The finalization pass treats end of input as the closing fence.
	final := FinalHTML("Start\n\n```python\nimport os")
	if !strings.Contains(final, "<span class=") {
		t.Errorf("expected finalized block to highlight, got %q", final)
	}
}

func TestFenceContentProtectedFromTransforms(t *testing.T) {
	got := ToHTML("```\n# not a heading\n- not a list\n```")
	if strings.Contains(got, "<h1>") || strings.Contains(got, "<ul>") {
		t.Errorf("code fence content leaked into block rules: %q", got)
	}
}

func TestPreviewPlaceholderUntilDocumentCompletes(t *testing.T) {
	got := ToHTML("```preview\n<!doctype html>\n<html><head>")
	if strings.Contains(got, "<iframe") {
		t.Errorf("incomplete document must never produce an iframe: %q", got)
	}
	if !strings.Contains(got, "preview-pending") {
		t.Errorf("expected placeholder, got %q", got)
	}
}

func TestPreviewIframeOnceDocumentCompletes(t *testing.T) {
	doc := "<!doctype html>\n<html><head><title>t</title></head><body>hi</body></html>"

	// Complete document inside a still-open fence already previews.
	got := ToHTML("```preview\n" + doc)
	if !strings.Contains(got, "<iframe") {
		t.Errorf("expected iframe for complete document, got %q", got)
	}
	if !strings.Contains(got, "allow-scripts") {
		t.Errorf("expected sandboxed iframe, got %q", got)
	}
	if !strings.Contains(got, "&lt;!doctype html&gt;") {
		t.Errorf("expected escaped srcdoc, got %q", got)
	}

	got = ToHTML("```preview\n" + doc + "\n```")
	if !strings.Contains(got, "<iframe") {
		t.Errorf("expected iframe for closed block, got %q", got)
	}
}

func TestPreviewClosedButIncomplete(t *testing.T) {
	got := FinalHTML("```preview\nnot a document\n```")
	if strings.Contains(got, "<iframe") {
		t.Errorf("expected no iframe for a non-document, got %q", got)
	}
	if !strings.Contains(got, "preview-incomplete") {
		t.Errorf("expected incomplete placeholder, got %q", got)
	}
}

func TestHeadingsAndRules(t *testing.T) {
	got := ToHTML("## Title\n\n---\n\ntext")
	if !strings.Contains(got, "<h2>Title</h2>") {
		t.Errorf("expected heading, got %q", got)
	}
	if !strings.Contains(got, "<hr") {
		t.Errorf("expected horizontal rule, got %q", got)
	}
	if !strings.Contains(got, "<p>text</p>") {
		t.Errorf("expected paragraph, got %q", got)
	}
}

func TestListsMergeIntoOneContainer(t *testing.T) {
	got := ToHTML("- one\n- two\n- three")
	if strings.Count(got, "<ul>") != 1 {
		t.Errorf("expected one list container, got %q", got)
	}
	if strings.Count(got, "<li>") != 3 {
		t.Errorf("expected three items, got %q", got)
	}

	got = ToHTML("1. first\n2. second")
	if strings.Count(got, "<ol>") != 1 || strings.Count(got, "<li>") != 2 {
		t.Errorf("expected one ordered list with two items, got %q", got)
	}
}

func TestTaskListCheckboxes(t *testing.T) {
	got := ToHTML("- [x] done\n- [ ] pending")
	if strings.Count(got, "<li>") != 2 {
		t.Errorf("expected two items, got %q", got)
	}
	if !strings.Contains(got, "checked") {
		t.Errorf("expected a checked checkbox, got %q", got)
	}
	if strings.Count(got, "checkbox") != 2 {
		t.Errorf("expected two checkboxes, got %q", got)
	}
	if strings.Index(got, "done") > strings.Index(got, "pending") {
		t.Errorf("items out of order: %q", got)
	}
}

func TestBlockquote(t *testing.T) {
	got := ToHTML("> quoted line\n> second")
	if !strings.Contains(got, "<blockquote>quoted line<br") {
		t.Errorf("expected blockquote, got %q", got)
	}
	if !strings.Contains(got, "second</blockquote>") {
		t.Errorf("expected merged quote lines, got %q", got)
	}
}

func TestTables(t *testing.T) {
	got := ToHTML("| Name | Qty |\n|------|----:|\n| Apple | 3 |")
	if !strings.Contains(got, "<table>") || !strings.Contains(got, "<th>Name</th>") {
		t.Errorf("expected table with header, got %q", got)
	}
	if !strings.Contains(got, `class="align-right"`) {
		t.Errorf("expected alignment class, got %q", got)
	}
	if !strings.Contains(got, "<td>Apple</td>") {
		t.Errorf("expected body cell, got %q", got)
	}
	if strings.Contains(got, "<p><table") {
		t.Errorf("table wrapped in paragraph: %q", got)
	}
}

func TestLinksAndAutolink(t *testing.T) {
	got := ToHTML("[docs](https://example.com/a) and https://foo.dev/x.")
	if !strings.Contains(got, `href="https://example.com/a"`) || !strings.Contains(got, ">docs</a>") {
		t.Errorf("expected explicit link, got %q", got)
	}
	if !strings.Contains(got, `href="https://foo.dev/x"`) {
		t.Errorf("expected autolink, got %q", got)
	}
	if !strings.Contains(got, "</a>.") {
		t.Errorf("expected trailing punctuation outside the link, got %q", got)
	}
}

func TestUnsafeLinkSchemeStripped(t *testing.T) {
	got := ToHTML("[click](javascript:alert%281%29)")
	if strings.Contains(got, "javascript:") {
		t.Errorf("unsafe scheme survived sanitization: %q", got)
	}
	if !strings.Contains(got, "click") {
		t.Errorf("expected link text preserved, got %q", got)
	}
}

func TestRawHTMLEscaped(t *testing.T) {
	got := ToHTML("try <script>alert(1)</script> now")
	if strings.Contains(got, "<script>") {
		t.Errorf("raw script tag survived: %q", got)
	}
	if !strings.Contains(got, "alert(1)") {
		t.Errorf("expected text content preserved, got %q", got)
	}
}

func TestFinalizationIdempotence(t *testing.T) {
	md := "# Title\n\nIntro with **bold**, *em*, `code`, ~~strike~~ and [a](https://a.dev/b).\n\n" +
		"```go\nfunc main() {}\n```\n\n- one\n- two\n\n> quote\n\n" +
		"| A | B |\n|---|---|\n| 1 | 2 |\n\ndone https://tail.example.com/p\n"

	partial := ToHTML(md)
	final := FinalHTML(md)
	if partial != final {
		t.Errorf("complete text must render identically in both passes:\npartial: %q\nfinal:   %q", partial, final)
	}
}

func TestSanitizeDropsEventHandlers(t *testing.T) {
	got := Sanitize(`<p onclick="steal()">hi</p><script>alert(1)</script>`)
	if strings.Contains(got, "onclick") || strings.Contains(got, "<script") {
		t.Errorf("sanitizer let dangerous markup through: %q", got)
	}
	if !strings.Contains(got, "hi") {
		t.Errorf("sanitizer dropped safe content: %q", got)
	}
}

func TestHighlightFallbackChain(t *testing.T) {
	// Tagged language wins.
	if out, ok := highlightHTML("func main() {}", "go"); !ok || !strings.Contains(out, "<span") {
		t.Errorf("expected highlighted go source, got ok=%v %q", ok, out)
	}

	// Nothing recognizable renders verbatim, escaped.
	out := codeBlockHTML("completely 4morphous <text>", "qqzz")
	if !strings.Contains(out, "completely 4morphous &lt;text&gt;") {
		t.Errorf("expected escaped verbatim fallback, got %q", out)
	}
}
