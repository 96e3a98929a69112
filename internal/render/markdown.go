// Package render converts streamed markdown into sanitized HTML fragments.
//
// The renderer is deliberately stateless between deltas: every call re-parses
// the entire accumulated text, because a later delta can retroactively
// complete an emphasis run, close a fence, or finish a live-preview document.
// Fenced blocks and inline code are lifted out before any other transform so
// later rules can never corrupt their contents; the remaining text is escaped
// and rewritten by one rule at a time in a fixed order.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

const previewLang = "preview"

// ToHTML renders accumulated, possibly mid-stream markdown into a sanitized
// fragment. An unterminated fence renders as a verbatim open block and a
// live-preview block shows a placeholder until its document is complete.
func ToHTML(text string) string {
	return Sanitize(transform(text, false))
}

// FinalHTML is the authoritative pass over committed text. It is the same
// pipeline as ToHTML except that an unterminated fence is treated as closed
// by end of input; for complete text the two are byte-identical.
func FinalHTML(text string) string {
	return Sanitize(transform(text, true))
}

var (
	strikeRe     = regexp.MustCompile(`~~([^~\n]+)~~`)
	boldRe       = regexp.MustCompile(`\*\*(\S(?:[^*\n]*\S)?)\*\*`)
	italicRe     = regexp.MustCompile(`\*(\S(?:[^*\n]*\S)?)\*`)
	headingRe    = regexp.MustCompile(`(?m)^(#{1,6}) +(.+)$`)
	taskItemRe   = regexp.MustCompile(`(?m)^([-*]) \[([ xX])\] (.+)$`)
	hrRe         = regexp.MustCompile(`(?m)^ {0,3}(?:-{3,}|\*{3,}|_{3,}) *$`)
	linkRe       = regexp.MustCompile(`\[([^\]\n]+)\]\(([^()\s]+)\)`)
	urlRe        = regexp.MustCompile(`(^|[\s(])(https?://[^\s<>"']*[^\s<>"'.,;:!?)])`)
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
	quoteLineRe  = regexp.MustCompile(`^&gt; ?(.*)$`)
	blankRunRe   = regexp.MustCompile(`\n{2,}`)
	tokenRe      = regexp.MustCompile("\x00[BI]([0-9]+)\x00")
	blockLeadRe  = regexp.MustCompile(`^(?:<(?:h[1-6]|ul|ol|pre|blockquote|table|hr|div|iframe|details)\b|` + "\x00B)")

	pOpenBeforeBlockRe = regexp.MustCompile(`<p>\s*(<(?:h[1-6]|ul|ol|pre|blockquote|table|div|iframe|details|hr)\b)`)
	pCloseAfterBlockRe = regexp.MustCompile(`(</(?:h[1-6]|ul|ol|pre|blockquote|table|div|iframe|details)>|<hr>)\s*</p>`)

	// NUL is stripped so the placeholder tokens can never collide with input.
	normalizeInput = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")
)

func transform(src string, final bool) string {
	t := normalizeInput.Replace(src)

	var protected []string
	t = extractBlocks(t, &protected, final)
	t = html.EscapeString(t)
	t = extractInlineCode(t, &protected)
	t = renderTables(t)
	t = strikeRe.ReplaceAllString(t, "<del>$1</del>")
	t = boldRe.ReplaceAllString(t, "<strong>$1</strong>")
	t = italicRe.ReplaceAllString(t, "<em>$1</em>")
	t = renderHeadings(t)
	t = renderTaskItems(t)
	t = renderLists(t)
	t = renderBlockquotes(t)
	t = hrRe.ReplaceAllString(t, "<hr>")
	t = linkRe.ReplaceAllString(t, `<a href="$2">$1</a>`)
	t = urlRe.ReplaceAllString(t, `$1<a href="$2">$2</a>`)
	t = renderParagraphs(t)
	t = restoreProtected(t, protected)
	t = pOpenBeforeBlockRe.ReplaceAllString(t, "$1")
	t = pCloseAfterBlockRe.ReplaceAllString(t, "$1")
	return t
}

func blockToken(n int) string  { return "\x00B" + strconv.Itoa(n) + "\x00" }
func inlineToken(n int) string { return "\x00I" + strconv.Itoa(n) + "\x00" }

// extractBlocks lifts fenced blocks out of the text, replacing each with a
// placeholder token. Live-preview fences take precedence over plain code
// fences. A fence that never closes consumes the rest of the input: its
// content is an open block, rendered verbatim (or highlighted when the
// finalization pass declares the input complete).
func extractBlocks(t string, protected *[]string, final bool) string {
	lines := strings.Split(t, "\n")
	var out []string
	for i := 0; i < len(lines); {
		lang, ok := fenceOpen(lines[i])
		if !ok {
			out = append(out, lines[i])
			i++
			continue
		}

		j := i + 1
		closed := false
		for ; j < len(lines); j++ {
			if fenceClose(lines[j]) {
				closed = true
				break
			}
		}
		body := strings.Join(lines[i+1:j], "\n")

		var rendered string
		switch {
		case lang == previewLang:
			rendered = previewHTML(body, closed || final)
		case closed || final:
			rendered = codeBlockHTML(body, lang)
		default:
			rendered = plainCodeHTML(body)
		}
		*protected = append(*protected, rendered)
		out = append(out, blockToken(len(*protected)-1))

		if closed {
			i = j + 1
		} else {
			i = j
		}
	}
	return strings.Join(out, "\n")
}

func fenceOpen(line string) (string, bool) {
	if !strings.HasPrefix(line, "```") {
		return "", false
	}
	lang := strings.TrimSpace(strings.TrimPrefix(line, "```"))
	if strings.Contains(lang, "`") {
		return "", false
	}
	return lang, true
}

func fenceClose(line string) bool {
	return strings.TrimSpace(line) == "```"
}

// previewHTML renders a live-preview block. The sandboxed iframe appears as
// soon as the accumulated content is a complete document, re-checked on
// every delta; anything less shows a placeholder instead of a broken
// preview.
func previewHTML(body string, done bool) string {
	if completeDocument(body) {
		return `<iframe class="preview" sandbox="allow-scripts" srcdoc="` +
			html.EscapeString(body) + `"></iframe>`
	}
	if done {
		return `<div class="preview preview-incomplete">Preview unavailable: the document never completed.</div>`
	}
	return `<div class="preview preview-pending">Rendering preview...</div>`
}

// completeDocument reports whether body is a well-formed standalone HTML
// document: a leading doctype and closing head/body/html structure.
func completeDocument(body string) bool {
	t := strings.ToLower(strings.TrimSpace(body))
	if !strings.HasPrefix(t, "<!doctype") {
		return false
	}
	return strings.Contains(t, "</head>") &&
		strings.Contains(t, "</body>") &&
		strings.Contains(t, "</html>")
}

func extractInlineCode(t string, protected *[]string) string {
	return inlineCodeRe.ReplaceAllStringFunc(t, func(m string) string {
		sub := inlineCodeRe.FindStringSubmatch(m)
		*protected = append(*protected, "<code>"+sub[1]+"</code>")
		return inlineToken(len(*protected) - 1)
	})
}

func restoreProtected(t string, protected []string) string {
	return tokenRe.ReplaceAllStringFunc(t, func(m string) string {
		sub := tokenRe.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil || n < 0 || n >= len(protected) {
			return m
		}
		return protected[n]
	})
}

func renderHeadings(t string) string {
	return headingRe.ReplaceAllStringFunc(t, func(m string) string {
		sub := headingRe.FindStringSubmatch(m)
		level := len(sub[1])
		return fmt.Sprintf("<h%d>%s</h%d>", level, strings.TrimSpace(sub[2]), level)
	})
}

// renderTaskItems rewrites task-list syntax into plain list items carrying a
// disabled checkbox, so the list pass merges them like any other item.
func renderTaskItems(t string) string {
	return taskItemRe.ReplaceAllStringFunc(t, func(m string) string {
		sub := taskItemRe.FindStringSubmatch(m)
		box := `<input type="checkbox" disabled>`
		if sub[2] != " " {
			box = `<input type="checkbox" checked disabled>`
		}
		return sub[1] + " " + box + " " + sub[3]
	})
}

var (
	bulletItemRe  = regexp.MustCompile(`^[-*] +(.+)$`)
	orderedItemRe = regexp.MustCompile(`^[0-9]+\. +(.+)$`)
)

// renderLists merges consecutive bullet or ordered items into a single
// container.
func renderLists(t string) string {
	lines := strings.Split(t, "\n")
	var out []string
	for i := 0; i < len(lines); {
		if bulletItemRe.MatchString(lines[i]) {
			var items []string
			for i < len(lines) {
				m := bulletItemRe.FindStringSubmatch(lines[i])
				if m == nil {
					break
				}
				items = append(items, "<li>"+m[1]+"</li>")
				i++
			}
			out = append(out, "<ul>"+strings.Join(items, "")+"</ul>")
			continue
		}
		if orderedItemRe.MatchString(lines[i]) {
			var items []string
			for i < len(lines) {
				m := orderedItemRe.FindStringSubmatch(lines[i])
				if m == nil {
					break
				}
				items = append(items, "<li>"+m[1]+"</li>")
				i++
			}
			out = append(out, "<ol>"+strings.Join(items, "")+"</ol>")
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n")
}

func renderBlockquotes(t string) string {
	lines := strings.Split(t, "\n")
	var out []string
	for i := 0; i < len(lines); {
		if quoteLineRe.MatchString(lines[i]) {
			var parts []string
			for i < len(lines) {
				m := quoteLineRe.FindStringSubmatch(lines[i])
				if m == nil {
					break
				}
				parts = append(parts, m[1])
				i++
			}
			out = append(out, "<blockquote>"+strings.Join(parts, "<br>")+"</blockquote>")
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n")
}

// renderParagraphs wraps blank-line separated runs in <p>, turning interior
// newlines into <br>. Runs that open with a block element (or a protected
// block token) stay unwrapped; the trailing cleanup regexes unwrap whatever
// this heuristic misses.
func renderParagraphs(t string) string {
	segments := blankRunRe.Split(t, -1)
	var out []string
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if blockLeadRe.MatchString(seg) {
			out = append(out, seg)
			continue
		}
		out = append(out, "<p>"+strings.ReplaceAll(seg, "\n", "<br>")+"</p>")
	}
	return strings.Join(out, "\n")
}
