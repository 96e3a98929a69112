package render

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var policy = buildPolicy()

// buildPolicy extends the UGC baseline with exactly the structures this
// renderer emits: chroma span classes, the sandboxed preview iframe,
// collapsible reasoning sections and task-list checkboxes. The sandbox
// attribute is pinned to allow-scripts so a sanitized fragment can never
// carry a same-origin or form-capable frame.
func buildPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	p.AllowElements("span", "div", "details", "summary")
	p.AllowAttrs("open").OnElements("details")
	p.AllowElements("iframe")
	p.AllowAttrs("srcdoc").OnElements("iframe")
	p.AllowAttrs("sandbox").Matching(regexp.MustCompile(`^allow-scripts$`)).OnElements("iframe")
	p.AllowElements("input")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	return p
}

// Sanitize runs the fragment policy. Every fragment the renderer hands out
// goes through here; markup of the model's own making never reaches the
// webview unfiltered.
func Sanitize(fragment string) string {
	return policy.Sanitize(fragment)
}
